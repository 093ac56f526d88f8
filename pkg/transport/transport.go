// Package transport defines the contract between the dispatcher and the
// component that actually streams audio into a live voice session.
//
// A [Transport] starts one stream per chat at a time and reports, exactly
// once, when that stream has ended. The dispatcher owns all queue state; a
// transport only plays what it is told to play.
//
// This package lives under pkg/ because voice platforms other than Discord
// are expected to implement [Transport].
package transport

import (
	"context"
	"errors"
)

// ErrNoChannel is returned by [Transport.Start] when the transport does not
// know where to play audio for the chat.
var ErrNoChannel = errors.New("transport: no voice channel bound for chat")

// Stream describes one playback.
type Stream struct {
	// ChatID is the chat the audio is played in.
	ChatID int64

	// SessionID identifies this playback. It is echoed back through the
	// finish callback so that stale signals can be discarded.
	SessionID string

	// AudioRef is a local path or URL the transport can read audio from.
	AudioRef string

	// Title is used for logging only.
	Title string
}

// FinishFunc is invoked when a started stream ends. err is nil when the audio
// played to the end or was stopped, and non-nil when playback broke off.
type FinishFunc func(s Stream, err error)

// Transport streams audio into voice sessions.
//
// Implementations must be safe for concurrent use.
type Transport interface {
	// Start begins streaming s. When Start returns a non-nil error, nothing is
	// playing and onFinish is never invoked. When it returns nil, onFinish is
	// invoked exactly once, later, from a goroutine other than the caller's.
	//
	// Starting a stream for a chat that is already streaming replaces the old
	// stream; the old stream's onFinish still fires.
	Start(ctx context.Context, s Stream, onFinish FinishFunc) error

	// Stop ends the chat's current stream, if any. The stream's onFinish fires
	// as usual. Stopping an idle chat is a no-op.
	Stop(ctx context.Context, chatID int64) error
}
