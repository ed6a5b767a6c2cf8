// Package domain contains entity types without logic, just meta-data.
package domain

const MaxDisplayNameLen = 36

type PeerID string

// Role of a participant inside a room. The teacher is the sole
// permitted producer; everyone else consumes.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func RoleFor(isTeacher bool) Role {
	if isTeacher {
		return RoleTeacher
	}
	return RoleStudent
}

// MediaKind of a stream, mirroring the engine's notion of it.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == KindAudio || k == KindVideo
}
