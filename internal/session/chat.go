package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tlahtolli/internal/conversation"
)

// fallbackReply is appended to the log when the chat endpoint fails, so the
// user sees a response instead of a silent drop.
const fallbackReply = "Sorry, I encountered an error processing your request."

// ChatSession orchestrates the text+voice chat surface: an append-only
// message log fed by typed input or by the record → transcribe → respond →
// synthesize pipeline.
type ChatSession struct {
	backend Backend
	mic     Microphone
	player  Player

	log   conversation.Log
	audio *conversation.AudioCache

	flight flight

	mu        sync.Mutex
	recording Recording
}

// NewChatSession creates a chat surface over the given collaborators.
func NewChatSession(backend Backend, mic Microphone, player Player) *ChatSession {
	return &ChatSession{
		backend: backend,
		mic:     mic,
		player:  player,
		audio:   conversation.NewAudioCache(),
	}
}

// SubmitText runs the pipeline for typed input: the text is taken verbatim
// as the user turn and processing starts at the respond step.
func (s *ChatSession) SubmitText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	seq, err := s.flight.begin()
	if err != nil {
		return err
	}
	defer s.flight.end(seq)

	s.append(seq, conversation.NewMessage(text, true))
	s.respond(ctx, seq, text)
	return nil
}

// StartRecording acquires the microphone stream. It fails closed: on a
// device or permission error the surface stays idle.
func (s *ChatSession) StartRecording(ctx context.Context) error {
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

// StopRecording closes the microphone stream unconditionally and hands the
// accumulated audio to the pipeline. An empty or whitespace-only transcript
// ends the pipeline with no messages and no further backend calls.
func (s *ChatSession) StopRecording(ctx context.Context) error {
	s.mu.Lock()
	rec := s.recording
	s.recording = nil
	s.mu.Unlock()

	if rec == nil {
		return ErrNotRecording
	}

	// The stream is released before anything else can fail.
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
		slog.Error("transcription failed", "error", err)
		return err
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		slog.Debug("empty transcript, pipeline ended")
		return nil
	}

	s.append(seq, conversation.NewMessage(transcript, true))
	s.respond(ctx, seq, transcript)
	return nil
}

// respond runs the respond → synthesize → append → play tail of the
// pipeline. A chat failure surfaces the fallback reply; a synthesis failure
// is tolerated and the reply is appended without audio.
func (s *ChatSession) respond(ctx context.Context, seq uint64, text string) {
	reply, err := s.backend.Reply(ctx, text)
	if err != nil {
		slog.Error("chat response failed", "error", err)
		s.append(seq, conversation.NewMessage(fallbackReply, false))
		return
	}

	audio, err := s.backend.Synthesize(ctx, reply)
	if err != nil {
		slog.Warn("synthesis failed, reply shown without audio", "error", err)
		audio = nil
	}

	msg := conversation.NewMessage(reply, false)
	if !s.append(seq, msg) {
		return
	}
	if len(audio) > 0 {
		s.audio.Put(msg.ID, audio)
		if err := s.player.Play(audio, msg.ID); err != nil {
			slog.Warn("playback failed", "message_id", msg.ID, "error", err)
		}
	}
}

// append adds a message to the log unless the invocation has been
// superseded. It reports whether the message was applied.
func (s *ChatSession) append(seq uint64, msg conversation.Message) bool {
	if !s.flight.latest(seq) {
		slog.Debug("discarding superseded pipeline result", "message_id", msg.ID)
		return false
	}
	s.log.Append(msg)
	return true
}

// Replay plays a message's audio, synthesizing and backfilling it on first
// use. The backfill is idempotent: a second replay reuses the cached audio.
func (s *ChatSession) Replay(ctx context.Context, messageID string) error {
	msg, ok := s.log.Find(messageID)
	if !ok {
		return ErrUnknownMessage
	}

	if cached, ok := s.audio.Get(messageID); ok {
		return s.player.Play(cached, messageID)
	}

	audio, err := s.backend.Synthesize(ctx, msg.Text)
	if err != nil {
		return fmt.Errorf("synthesizing message audio: %w", err)
	}
	if len(audio) == 0 {
		return nil
	}

	audio = s.audio.Put(messageID, audio)
	return s.player.Play(audio, messageID)
}

// Messages returns a snapshot of the conversation log.
func (s *ChatSession) Messages() []conversation.Message {
	return s.log.Messages()
}

// AudioFor returns the synthesized audio cached for a message, if any.
func (s *ChatSession) AudioFor(messageID string) ([]byte, bool) {
	return s.audio.Get(messageID)
}

// State reports the surface's position on the recording/processing axis.
func (s *ChatSession) State() State {
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
