package core

import "context"

// Player defines the interface for controlling the playback session.
type Player interface {
	// Play starts the song, or toggles pause/resume if it is already current.
	Play(ctx context.Context, song Song) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error

	// Session returns a snapshot of the current session.
	Session() Session
}

// Backend identifies which storage served a history operation.
type Backend string

const (
	BackendNone   Backend = ""
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)
