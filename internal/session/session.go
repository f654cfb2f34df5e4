// Package session implements the orchestration state machines behind the
// four interaction surfaces: chat, voice, image text-extraction, and PDF
// question answering.
//
// Each surface owns one machine with two independent axes. The
// recording/processing axis runs the pipeline triggered by a user action
// (capture → transcribe → respond → synthesize) strictly in order,
// single-flight, short-circuiting on the first failure and always returning
// to idle. The playback axis is the shared audio.Manager: starting sound
// from any surface pre-empts sound from any other.
//
// Pipeline invocations are tagged with a per-surface sequence number; a
// result is applied only while its invocation is still the latest, so a
// superseded call completes harmlessly instead of corrupting state.
package session

import (
	"context"
	"errors"
	"sync"
)

// Surface state on the recording/processing axis. Playback is orthogonal
// and reported by the audio manager.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
)

// State-machine errors.
var (
	ErrBusy             = errors.New("a pipeline is already in flight")
	ErrRecordingActive  = errors.New("a recording is already open")
	ErrNotRecording     = errors.New("no recording is open")
	ErrNoDocument       = errors.New("no document uploaded")
	ErrEmptyQuestion    = errors.New("empty question")
	ErrUnknownMessage   = errors.New("unknown message id")
	ErrNothingExtracted = errors.New("no extracted text to speak")
)

// Backend is the slice of assistant calls the surfaces drive.
type Backend interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
	Reply(ctx context.Context, text string) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
	ExtractText(ctx context.Context, image []byte) (string, error)
	UploadPDF(ctx context.Context, pdf []byte, filename, sessionID string) (string, error)
	Query(ctx context.Context, userMessage, chatHistory string) (string, error)
}

// Player is the surfaces' view of the shared playback manager.
type Player interface {
	Play(audio []byte, owner string) error
	PlayingOwner() (string, bool)
	CanReplay() bool
	ReplayLast() error
}

// Recording is an open microphone stream. Stop closes the stream
// unconditionally and hands back the accumulated audio.
type Recording interface {
	Stop() (audio []byte, contentType string, err error)
}

// Microphone opens recordings.
type Microphone interface {
	Start(ctx context.Context) (Recording, error)
}

// MicrophoneFunc adapts a capture function to the Microphone interface.
type MicrophoneFunc func(ctx context.Context) (Recording, error)

// Start calls f.
func (f MicrophoneFunc) Start(ctx context.Context) (Recording, error) { return f(ctx) }

// flight gates one surface's pipeline to single-flight and issues the
// sequence numbers used to discard superseded results.
type flight struct {
	mu         sync.Mutex
	processing bool
	seq        uint64
}

// begin claims the pipeline and returns this invocation's sequence number.
func (f *flight) begin() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processing {
		return 0, ErrBusy
	}
	f.processing = true
	f.seq++
	return f.seq, nil
}

// end releases the pipeline claimed by the given invocation.
func (f *flight) end(seq uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seq == seq {
		f.processing = false
	}
}

// supersede invalidates the in-flight invocation, if any: its results fail
// the latest check and the gate reopens for the next pipeline.
func (f *flight) supersede() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.processing = false
}

// latest reports whether the invocation is still the newest one.
func (f *flight) latest(seq uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq == seq
}

func (f *flight) busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processing
}
