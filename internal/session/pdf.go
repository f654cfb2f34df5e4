package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tlahtolli/internal/conversation"
)

// PDFSession orchestrates the PDF question-answering surface. Uploading a
// document opens a session bound to a client-generated token; every query
// carries the full prior question/answer transcript so the backend can stay
// stateless per-request. Selecting a new document or resetting drops the
// token and the whole exchange history.
type PDFSession struct {
	backend Backend
	player  Player

	log   conversation.ExchangeLog
	audio *conversation.AudioCache

	flight flight

	mu        sync.Mutex
	sessionID string
	filename  string
	uploaded  bool
}

// NewPDFSession creates a PDF surface over the given collaborators.
func NewPDFSession(backend Backend, player Player) *PDFSession {
	return &PDFSession{
		backend: backend,
		player:  player,
		audio:   conversation.NewAudioCache(),
	}
}

// Upload registers a document under a fresh session token. Any previous
// document session and its exchange history are dropped first. A failed or
// non-JSON acknowledgment leaves the surface without an uploaded document.
func (s *PDFSession) Upload(ctx context.Context, pdf []byte, filename string) (string, error) {
	seq, err := s.flight.begin()
	if err != nil {
		return "", err
	}
	defer s.flight.end(seq)

	sessionID := "session_" + uuid.NewString()

	s.mu.Lock()
	s.sessionID = sessionID
	s.filename = filename
	s.uploaded = false
	s.mu.Unlock()
	s.log.Reset()
	s.audio.Flush()

	ack, err := s.backend.UploadPDF(ctx, pdf, filename, sessionID)
	if err != nil {
		slog.Error("pdf upload failed", "session_id", sessionID, "error", err)
		return "", err
	}

	if s.flight.latest(seq) {
		s.mu.Lock()
		s.uploaded = true
		s.mu.Unlock()
	}

	slog.Info("pdf uploaded", "session_id", sessionID, "file", filename)
	return ack, nil
}

// Ask queries the uploaded document. The question and answer are appended
// as one exchange; synthesis of the answer is attempted and tolerated to
// fail, and successful audio starts playing immediately.
func (s *PDFSession) Ask(ctx context.Context, question string) (conversation.Exchange, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return conversation.Exchange{}, ErrEmptyQuestion
	}

	s.mu.Lock()
	uploaded := s.uploaded
	s.mu.Unlock()
	if !uploaded {
		return conversation.Exchange{}, ErrNoDocument
	}

	seq, err := s.flight.begin()
	if err != nil {
		return conversation.Exchange{}, err
	}
	defer s.flight.end(seq)

	history := conversation.HistoryTranscript(s.log.Exchanges())

	answer, err := s.backend.Query(ctx, question, history)
	if err != nil {
		return conversation.Exchange{}, fmt.Errorf("querying document: %w", err)
	}

	audio, err := s.backend.Synthesize(ctx, answer)
	if err != nil {
		slog.Warn("synthesis failed, answer shown without audio", "error", err)
		audio = nil
	}

	ex := conversation.NewExchange(question, answer)
	if !s.flight.latest(seq) {
		return ex, nil
	}

	s.log.Append(ex)
	if len(audio) > 0 {
		s.audio.Put(ex.ID, audio)
		if err := s.player.Play(audio, ex.ID); err != nil {
			slog.Warn("playback failed", "exchange_id", ex.ID, "error", err)
		}
	}
	return ex, nil
}

// Replay plays an exchange's answer audio, synthesizing and backfilling it
// on first use. The backfill is idempotent.
func (s *PDFSession) Replay(ctx context.Context, exchangeID string) error {
	ex, ok := s.log.Find(exchangeID)
	if !ok {
		return ErrUnknownMessage
	}

	if cached, ok := s.audio.Get(exchangeID); ok {
		return s.player.Play(cached, exchangeID)
	}

	audio, err := s.backend.Synthesize(ctx, ex.Answer)
	if err != nil {
		return fmt.Errorf("synthesizing answer audio: %w", err)
	}
	if len(audio) == 0 {
		return nil
	}

	audio = s.audio.Put(exchangeID, audio)
	return s.player.Play(audio, exchangeID)
}

// Exchanges returns a snapshot of the question/answer history.
func (s *PDFSession) Exchanges() []conversation.Exchange {
	return s.log.Exchanges()
}

// SessionID returns the token binding queries to the uploaded document.
func (s *PDFSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Document returns the uploaded file's name and whether the upload has been
// acknowledged.
func (s *PDFSession) Document() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filename, s.uploaded
}

// Processing reports whether an upload or query pipeline is in flight.
func (s *PDFSession) Processing() bool {
	return s.flight.busy()
}

// Reset drops the document session: token, file, exchange history, and
// cached audio. An in-flight upload or query is superseded so its result
// cannot land in the reset session.
func (s *PDFSession) Reset() {
	s.flight.supersede()
	s.mu.Lock()
	s.sessionID = ""
	s.filename = ""
	s.uploaded = false
	s.mu.Unlock()
	s.log.Reset()
	s.audio.Flush()
}
