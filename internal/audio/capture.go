// Package audio owns the two media resources the surfaces share: the
// microphone (capture) and the speaker (playback).
//
// Capture spawns ffmpeg to stream raw PCM from the configured input device.
// Exactly one recording may be open at a time; stopping a recording always
// terminates the process and releases the stream, whatever else fails.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"tlahtolli/internal/config"
)

// ErrAlreadyRecording is returned when a recording is started while another
// one is still open.
var ErrAlreadyRecording = errors.New("a recording is already in progress")

// Recorder captures microphone audio via an ffmpeg subprocess.
type Recorder struct {
	cfg config.AudioConfig

	mu       sync.Mutex
	starting bool
	active   *Recording
}

// NewRecorder creates a recorder from audio config, applying capture defaults.
func NewRecorder(cfg config.AudioConfig) *Recorder {
	if cfg.CaptureCommand == "" {
		cfg.CaptureCommand = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Recorder{cfg: cfg}
}

// Start opens the microphone stream. It fails closed: on any acquisition
// error no recording exists and the recorder stays idle.
func (r *Recorder) Start(ctx context.Context) (*Recording, error) {
	// The claim covers the whole spin-up, including the early-exit probe,
	// so a concurrent Start cannot open a second stream meanwhile.
	r.mu.Lock()
	if r.active != nil || r.starting {
		r.mu.Unlock()
		return nil, ErrAlreadyRecording
	}
	r.starting = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.starting = false
		r.mu.Unlock()
	}()

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", r.cfg.InputFormat,
		"-i", r.cfg.InputDevice,
		"-ac", strconv.Itoa(r.cfg.Channels),
		"-ar", strconv.Itoa(r.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, r.cfg.CaptureCommand, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting capture: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Give the process a beat to fail fast on a missing device.
	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("capture exited before recording started: %w: %s",
				err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, errors.New("capture exited before recording started")
	case <-time.After(250 * time.Millisecond):
	}

	rec := &Recording{
		recorder:   r,
		process:    cmd.Process,
		waitErr:    waitErr,
		stderr:     &stderr,
		sampleRate: r.cfg.SampleRate,
		channels:   r.cfg.Channels,
		drained:    make(chan struct{}),
	}

	// Accumulate PCM chunks until the process ends or stdout closes.
	go func() {
		defer close(rec.drained)
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				rec.chunkMu.Lock()
				rec.pcm = append(rec.pcm, buf[:n]...)
				rec.chunkMu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()

	r.mu.Lock()
	r.active = rec
	r.mu.Unlock()
	return rec, nil
}

// Recording is an open microphone stream accumulating audio chunks. It exists
// only between Start and Stop.
type Recording struct {
	recorder *Recorder
	process  *os.Process
	waitErr  <-chan error
	stderr   *bytes.Buffer

	sampleRate int
	channels   int

	chunkMu sync.Mutex
	pcm     []byte
	drained chan struct{}

	stopOnce sync.Once
	audio    []byte
	stopErr  error
}

// Stop closes the stream unconditionally and returns the accumulated audio
// wrapped in a WAV container, together with its content type. Stop is
// idempotent; repeated calls return the first result.
func (rec *Recording) Stop() ([]byte, string, error) {
	rec.stopOnce.Do(func() {
		defer rec.recorder.release(rec)

		if rec.process != nil {
			_ = rec.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-rec.waitErr:
			if ok {
				rec.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if rec.process != nil {
				_ = rec.process.Kill()
			}
			err, ok := <-rec.waitErr
			if ok {
				rec.stopErr = normalizeStopErr(err)
			}
		}

		<-rec.drained

		if rec.stopErr != nil && rec.stderr.Len() > 0 {
			rec.stopErr = fmt.Errorf("%w: %s", rec.stopErr, bytes.TrimSpace(rec.stderr.Bytes()))
		}

		rec.chunkMu.Lock()
		pcm := rec.pcm
		rec.chunkMu.Unlock()
		rec.audio = WAVFromPCM(pcm, rec.sampleRate, rec.channels, 2)
	})

	return rec.audio, "audio/wav", rec.stopErr
}

func (r *Recorder) release(rec *Recording) {
	r.mu.Lock()
	if r.active == rec {
		r.active = nil
	}
	r.mu.Unlock()
}

// Recording reports whether a stream is currently open.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// An interrupted ffmpeg exits non-zero; that is the normal stop path, not an
// error.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
