package domain

type RoomID string
