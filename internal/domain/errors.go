package domain

import "errors"

// Expected protocol outcomes. Their text is what the client sees in an
// error frame, so it stays stable.
var (
	ErrRoleConflict     = errors.New("Room already has a teacher")
	ErrRoomFull         = errors.New("Room is full")
	ErrForbidden        = errors.New("Only teacher can share screen")
	ErrProducerNotFound = errors.New("Producer not found")
	ErrConsumerNotFound = errors.New("Consumer not found")
	ErrCannotConsume    = errors.New("Cannot consume")
	ErrNoTransport      = errors.New("Transport not created")
	ErrAlreadyJoined    = errors.New("Already joined")
	ErrNotJoined        = errors.New("Not joined")
	ErrBadPayload       = errors.New("Invalid message")
	ErrTooManyJoins     = errors.New("Too many join attempts")
	ErrEngineTimeout    = errors.New("Media engine did not respond in time")
)
