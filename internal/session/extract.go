package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tlahtolli/internal/camera"
)

// ExtractionErrorText is the deterministic indicator stored when OCR fails.
const ExtractionErrorText = "Error: Could not extract text from image"

// ExtractionResult is one extraction attempt. Each new capture replaces it
// wholesale.
type ExtractionResult struct {
	SourceImage []byte
	Text        string
	Audio       []byte
}

// FileSource supplies an image when the camera cannot: the file-picker
// fallback of the extraction surface.
type FileSource interface {
	Pick(ctx context.Context) ([]byte, error)
}

// FileSourceFunc adapts a function to the FileSource interface.
type FileSourceFunc func(ctx context.Context) ([]byte, error)

// Pick calls f.
func (f FileSourceFunc) Pick(ctx context.Context) ([]byte, error) { return f(ctx) }

// ExtractionSession orchestrates the image text-extraction surface:
// capture → OCR → automatic synthesis and playback of the extracted text.
type ExtractionSession struct {
	backend  Backend
	player   Player
	camera   camera.FrameSource
	fallback FileSource

	flight flight

	mu     sync.Mutex
	result *ExtractionResult
}

// NewExtractionSession creates an extraction surface. camera and fallback
// may be nil when the surface is fed through Extract directly.
func NewExtractionSession(backend Backend, player Player, cam camera.FrameSource, fallback FileSource) *ExtractionSession {
	return &ExtractionSession{
		backend:  backend,
		player:   player,
		camera:   cam,
		fallback: fallback,
	}
}

// CaptureAndExtract grabs a frame from the camera and extracts its text.
// When camera acquisition fails the surface falls back to the file picker
// instead of getting stuck.
func (s *ExtractionSession) CaptureAndExtract(ctx context.Context) error {
	image, err := s.capture(ctx)
	if err != nil {
		return err
	}
	return s.Extract(ctx, image)
}

func (s *ExtractionSession) capture(ctx context.Context) ([]byte, error) {
	if s.camera != nil {
		image, err := s.camera.Capture(ctx)
		if err == nil {
			return image, nil
		}
		slog.Warn("camera acquisition failed, falling back to file picker", "error", err)
	}

	if s.fallback == nil {
		return nil, fmt.Errorf("no image source available")
	}
	image, err := s.fallback.Pick(ctx)
	if err != nil {
		return nil, fmt.Errorf("picking image: %w", err)
	}
	return image, nil
}

// Extract runs OCR over the image. A failed call stores the deterministic
// error indicator and makes no synthesis call; a non-empty result is
// automatically synthesized and played.
func (s *ExtractionSession) Extract(ctx context.Context, image []byte) error {
	seq, err := s.flight.begin()
	if err != nil {
		return err
	}
	defer s.flight.end(seq)

	// Each attempt replaces the previous result wholesale.
	s.setResult(seq, &ExtractionResult{SourceImage: image})

	text, ocrErr := s.backend.ExtractText(ctx, image)
	if ocrErr != nil {
		slog.Error("text extraction failed", "error", ocrErr)
		s.setResult(seq, &ExtractionResult{SourceImage: image, Text: ExtractionErrorText})
		return ocrErr
	}

	text = strings.TrimSpace(text)
	result := &ExtractionResult{SourceImage: image, Text: text}
	s.setResult(seq, result)

	if text == "" {
		return nil
	}

	audio, err := s.backend.Synthesize(ctx, text)
	if err != nil {
		slog.Warn("synthesis failed, extracted text left unspoken", "error", err)
		return nil
	}
	if len(audio) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.result == result {
		s.result.Audio = audio
	}
	s.mu.Unlock()

	if err := s.player.Play(audio, ""); err != nil {
		slog.Warn("playback failed", "error", err)
	}
	return nil
}

func (s *ExtractionSession) setResult(seq uint64, result *ExtractionResult) {
	if !s.flight.latest(seq) {
		return
	}
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
}

// Speak re-synthesizes and plays the current extracted text.
func (s *ExtractionSession) Speak(ctx context.Context) error {
	s.mu.Lock()
	var text string
	if s.result != nil {
		text = s.result.Text
	}
	s.mu.Unlock()

	if text == "" || text == ExtractionErrorText {
		return ErrNothingExtracted
	}

	audio, err := s.backend.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesizing extracted text: %w", err)
	}
	if len(audio) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.result != nil && s.result.Text == text {
		s.result.Audio = audio
	}
	s.mu.Unlock()

	return s.player.Play(audio, "")
}

// Replay plays the stored synthesis of the current result.
func (s *ExtractionSession) Replay() error {
	s.mu.Lock()
	var audio []byte
	if s.result != nil {
		audio = s.result.Audio
	}
	s.mu.Unlock()

	if len(audio) == 0 {
		return ErrNothingExtracted
	}
	return s.player.Play(audio, "")
}

// Result returns the current extraction attempt, if any.
func (s *ExtractionSession) Result() (ExtractionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return ExtractionResult{}, false
	}
	return *s.result, true
}

// Reset discards the current result so a new capture can begin. An
// in-flight extraction is superseded so its result cannot be re-instated.
func (s *ExtractionSession) Reset() {
	s.flight.supersede()
	s.mu.Lock()
	s.result = nil
	s.mu.Unlock()
}

// Extracting reports whether an extraction pipeline is in flight.
func (s *ExtractionSession) Extracting() bool {
	return s.flight.busy()
}
