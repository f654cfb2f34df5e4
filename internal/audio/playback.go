package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Playback errors.
var (
	ErrEmptyAudio      = errors.New("empty audio resource")
	ErrNothingToReplay = errors.New("no audio resource to replay")
	ErrPlaybackBusy    = errors.New("playback already in progress")
)

// Output plays an audio file to completion. Implementations block until the
// audio ends, fails, or the context is cancelled.
type Output interface {
	Play(ctx context.Context, path string) error
}

// FFPlay plays audio files through an ffplay subprocess.
type FFPlay struct {
	command string
}

// NewFFPlay creates an ffplay-backed output.
func NewFFPlay(command string) *FFPlay {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlay{command: command}
}

// Play blocks until the file has been played or the context is cancelled.
func (f *FFPlay) Play(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, f.command,
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		path,
	)
	if err := cmd.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("playing %s: %w", path, err)
	}
	return nil
}

// Manager owns the single active playback handle for the whole process.
//
// Starting a new playback first tears down any prior handle: its output is
// stopped and the temp file derived from its audio resource is removed.
// The same release runs on natural completion and on error, so no file
// outlives its playback whichever exit path is taken.
type Manager struct {
	output Output

	// playMu serializes admission: teardown of the displaced handle and
	// installation of its replacement happen as one step.
	playMu sync.Mutex

	mu        sync.Mutex
	current   *handle
	lastAudio []byte
	lastOwner string
}

// handle is one active audio-output instance bound to an ephemeral file.
type handle struct {
	owner  string
	path   string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a playback manager writing through the given output.
func NewManager(output Output) *Manager {
	return &Manager{output: output}
}

// Play starts playing the audio resource, pre-empting any active playback.
// owner identifies the message or exchange that is sounding; it may be empty.
// Play returns once playback has started.
func (m *Manager) Play(audio []byte, owner string) error {
	if len(audio) == 0 {
		return ErrEmptyAudio
	}

	m.playMu.Lock()
	defer m.playMu.Unlock()
	m.stopCurrent()

	f, err := os.CreateTemp("", "tlahtolli-*.audio")
	if err != nil {
		return fmt.Errorf("creating playback file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing playback file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing playback file: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		owner:  owner,
		path:   path,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.current = h
	m.lastAudio = audio
	m.lastOwner = owner
	m.mu.Unlock()

	go func() {
		err := m.output.Play(ctx, path)
		os.Remove(path)
		cancel()

		m.mu.Lock()
		if m.current == h {
			m.current = nil
		}
		m.mu.Unlock()
		close(h.done)

		if err != nil {
			slog.Warn("playback failed", "owner", owner, "error", err)
		}
	}()

	return nil
}

// Stop tears down the active playback, if any, and waits for its resource
// to be released.
func (m *Manager) Stop() {
	m.playMu.Lock()
	defer m.playMu.Unlock()
	m.stopCurrent()
}

func (m *Manager) stopCurrent() {
	m.mu.Lock()
	h := m.current
	m.current = nil
	m.mu.Unlock()

	if h != nil {
		h.cancel()
		<-h.done
	}
}

// PlayingOwner returns the owner ID of the sounding playback, if one is
// active.
func (m *Manager) PlayingOwner() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return "", false
	}
	return m.current.owner, true
}

// CanReplay reports whether a replay of the last resource is available:
// a resource must exist and nothing may currently be playing.
func (m *Manager) CanReplay() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAudio != nil && m.current == nil
}

// ReplayLast restarts the most recently played resource from the beginning.
func (m *Manager) ReplayLast() error {
	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return ErrPlaybackBusy
	}
	audio, owner := m.lastAudio, m.lastOwner
	m.mu.Unlock()

	if audio == nil {
		return ErrNothingToReplay
	}
	return m.Play(audio, owner)
}
