package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// VoiceSession orchestrates the voice-only surface: the same record →
// transcribe → respond → synthesize pipeline as chat, but with no visible
// log — only the spoken reply and a replay of the last response.
type VoiceSession struct {
	backend Backend
	mic     Microphone
	player  Player

	flight flight

	mu        sync.Mutex
	recording Recording
	lastReply string
}

// NewVoiceSession creates a voice surface over the given collaborators.
func NewVoiceSession(backend Backend, mic Microphone, player Player) *VoiceSession {
	return &VoiceSession{backend: backend, mic: mic, player: player}
}

// StartRecording acquires the microphone stream, failing closed on device
// errors.
func (s *VoiceSession) StartRecording(ctx context.Context) error {
	if s.flight.busy() {
		return ErrBusy
	}

	s.mu.Lock()
	if s.recording != nil {
		s.mu.Unlock()
		return ErrRecordingActive
	}
	s.mu.Unlock()

	rec, err := s.mic.Start(ctx)
	if err != nil {
		slog.Error("microphone acquisition failed", "error", err)
		return fmt.Errorf("starting recording: %w", err)
	}

	s.mu.Lock()
	s.recording = rec
	s.mu.Unlock()
	return nil
}

// StopRecording closes the stream and runs the voice pipeline. An empty
// transcript ends the pipeline silently; a failed chat call is returned to
// the caller; a failed or empty synthesis leaves the reply unspoken.
func (s *VoiceSession) StopRecording(ctx context.Context) error {
	s.mu.Lock()
	rec := s.recording
	s.recording = nil
	s.mu.Unlock()

	if rec == nil {
		return ErrNotRecording
	}

	audio, contentType, stopErr := rec.Stop()

	seq, err := s.flight.begin()
	if err != nil {
		return err
	}
	defer s.flight.end(seq)

	if stopErr != nil {
		return fmt.Errorf("stopping recording: %w", stopErr)
	}

	transcript, err := s.backend.Transcribe(ctx, audio, contentType)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil
	}

	reply, err := s.backend.Reply(ctx, transcript)
	if err != nil {
		return fmt.Errorf("chat response failed: %w", err)
	}

	speech, err := s.backend.Synthesize(ctx, reply)
	if err != nil {
		slog.Warn("synthesis failed, reply left unspoken", "error", err)
		speech = nil
	}

	if !s.flight.latest(seq) {
		return nil
	}

	s.mu.Lock()
	s.lastReply = reply
	s.mu.Unlock()

	if len(speech) > 0 {
		if err := s.player.Play(speech, ""); err != nil {
			slog.Warn("playback failed", "error", err)
		}
	}
	return nil
}

// ReplayLast replays the most recent response audio. Available only when a
// playback resource exists and nothing is currently sounding.
func (s *VoiceSession) ReplayLast() error {
	return s.player.ReplayLast()
}

// CanReplay reports whether ReplayLast would start playback.
func (s *VoiceSession) CanReplay() bool {
	return s.player.CanReplay()
}

// LastReply returns the text of the most recent assistant reply.
func (s *VoiceSession) LastReply() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReply
}

// State reports the surface's position on the recording/processing axis.
func (s *VoiceSession) State() State {
	s.mu.Lock()
	recording := s.recording != nil
	s.mu.Unlock()

	switch {
	case recording:
		return StateRecording
	case s.flight.busy():
		return StateProcessing
	default:
		return StateIdle
	}
}
