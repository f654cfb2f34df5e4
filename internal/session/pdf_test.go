package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadedPDFSession(t *testing.T, backend *fakeBackend, player *fakePlayer) *PDFSession {
	t.Helper()
	backend.mu.Lock()
	if backend.uploadAck == "" {
		backend.uploadAck = "PDF uploaded successfully"
	}
	backend.mu.Unlock()

	s := NewPDFSession(backend, player)
	_, err := s.Upload(context.Background(), []byte("%PDF-1.4"), "paper.pdf")
	require.NoError(t, err)
	return s
}

func TestUploadBindsDocumentToFreshToken(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{uploadAck: "PDF uploaded successfully"}
	s := NewPDFSession(backend, &fakePlayer{})

	ack, err := s.Upload(context.Background(), []byte("%PDF-1.4"), "paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, "PDF uploaded successfully", ack)

	assert.True(t, strings.HasPrefix(s.SessionID(), "session_"))
	require.Len(t, backend.uploadSessionIDs, 1)
	assert.Equal(t, s.SessionID(), backend.uploadSessionIDs[0])
	assert.Equal(t, "paper.pdf", backend.uploadNames[0])

	name, uploaded := s.Document()
	assert.True(t, uploaded)
	assert.Equal(t, "paper.pdf", name)
}

func TestUploadFailureLeavesNoDocument(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{uploadErr: errors.New("ingest down")}
	s := NewPDFSession(backend, &fakePlayer{})

	_, err := s.Upload(context.Background(), []byte("%PDF-1.4"), "paper.pdf")
	require.Error(t, err)

	_, uploaded := s.Document()
	assert.False(t, uploaded)
	_, err = s.Ask(context.Background(), "what is this about?")
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestAskRequiresDocumentAndQuestion(t *testing.T) {
	t.Parallel()

	s := NewPDFSession(&fakeBackend{}, &fakePlayer{})

	_, err := s.Ask(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = s.Ask(context.Background(), "anything?")
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestAskCarriesAccumulatedHistory(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{answer: "a1", speech: []byte("mp3")}
	player := &fakePlayer{}
	s := uploadedPDFSession(t, backend, player)

	ex1, err := s.Ask(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "q1", ex1.Question)
	assert.Equal(t, "a1", ex1.Answer)

	backend.mu.Lock()
	backend.answer = "a2"
	backend.mu.Unlock()

	_, err = s.Ask(context.Background(), "q2")
	require.NoError(t, err)

	require.Len(t, backend.histories, 2)
	assert.Equal(t, "", backend.histories[0])
	assert.Equal(t, "Human: q1\nAssistant: a1", backend.histories[1])

	exchanges := s.Exchanges()
	require.Len(t, exchanges, 2)
	assert.Equal(t, "a2", exchanges[1].Answer)

	plays := player.played()
	require.Len(t, plays, 2)
	assert.Equal(t, ex1.ID, plays[0].owner)
}

func TestAskQueryFailureAppendsNothing(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{queryErr: errors.New("rag down")}
	s := uploadedPDFSession(t, backend, &fakePlayer{})

	_, err := s.Ask(context.Background(), "q1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying document")

	assert.Empty(t, s.Exchanges())
	assert.False(t, s.Processing())
}

func TestAskSynthesisFailureKeepsAnswer(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{answer: "a1", speechErr: errors.New("tts down")}
	player := &fakePlayer{}
	s := uploadedPDFSession(t, backend, player)

	ex, err := s.Ask(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "a1", ex.Answer)

	require.Len(t, s.Exchanges(), 1)
	assert.Empty(t, player.played())
}

func TestUploadReplacesPreviousSession(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{answer: "a1"}
	s := uploadedPDFSession(t, backend, &fakePlayer{})

	_, err := s.Ask(context.Background(), "q1")
	require.NoError(t, err)
	firstToken := s.SessionID()

	_, err = s.Upload(context.Background(), []byte("%PDF-1.4"), "other.pdf")
	require.NoError(t, err)

	assert.NotEqual(t, firstToken, s.SessionID())
	assert.Empty(t, s.Exchanges())

	// The next question starts a fresh transcript.
	_, err = s.Ask(context.Background(), "q2")
	require.NoError(t, err)
	assert.Equal(t, "", backend.histories[len(backend.histories)-1])
}

func TestPDFReplayBackfillsAudioOnce(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{answer: "a1"}
	player := &fakePlayer{}
	s := uploadedPDFSession(t, backend, player)

	ex, err := s.Ask(context.Background(), "q1")
	require.NoError(t, err)

	backend.mu.Lock()
	backend.speech = []byte("voice")
	backend.mu.Unlock()

	require.NoError(t, s.Replay(context.Background(), ex.ID))
	require.NoError(t, s.Replay(context.Background(), ex.ID))

	// One live attempt plus one backfill.
	_, _, speech := backend.counts()
	assert.Equal(t, 2, speech)

	plays := player.played()
	require.Len(t, plays, 2)
	assert.Equal(t, ex.ID, plays[0].owner)
}

func TestPDFReplayUnknownExchange(t *testing.T) {
	t.Parallel()

	s := NewPDFSession(&fakeBackend{}, &fakePlayer{})
	assert.ErrorIs(t, s.Replay(context.Background(), "nope"), ErrUnknownMessage)
}

func TestResetSupersedesInFlightQuery(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		answer:       "stale answer from the old document",
		queryStarted: make(chan struct{}, 1),
		queryRelease: make(chan struct{}),
	}
	s := uploadedPDFSession(t, backend, &fakePlayer{})

	done := make(chan error, 1)
	go func() {
		_, err := s.Ask(context.Background(), "q1")
		done <- err
	}()
	<-backend.queryStarted

	s.Reset()

	close(backend.queryRelease)
	require.NoError(t, <-done)

	// The answer from the destroyed document session is discarded.
	assert.Empty(t, s.Exchanges())
	assert.Empty(t, s.SessionID())
	_, uploaded := s.Document()
	assert.False(t, uploaded)
	assert.False(t, s.Processing())
}

func TestResetReopensGateForNextPipeline(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		answer:       "stale",
		uploadAck:    "PDF uploaded successfully",
		queryStarted: make(chan struct{}, 1),
		queryRelease: make(chan struct{}),
	}
	s := uploadedPDFSession(t, backend, &fakePlayer{})

	done := make(chan error, 1)
	go func() {
		_, err := s.Ask(context.Background(), "q1")
		done <- err
	}()
	<-backend.queryStarted

	s.Reset()

	// A fresh upload may begin while the superseded query is still running.
	_, err := s.Upload(context.Background(), []byte("%PDF-1.4"), "next.pdf")
	require.NoError(t, err)

	close(backend.queryRelease)
	require.NoError(t, <-done)

	assert.Empty(t, s.Exchanges())
	name, uploaded := s.Document()
	assert.True(t, uploaded)
	assert.Equal(t, "next.pdf", name)
}

func TestResetDropsDocumentSession(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{answer: "a1"}
	s := uploadedPDFSession(t, backend, &fakePlayer{})

	_, err := s.Ask(context.Background(), "q1")
	require.NoError(t, err)

	s.Reset()

	assert.Empty(t, s.SessionID())
	assert.Empty(t, s.Exchanges())
	_, uploaded := s.Document()
	assert.False(t, uploaded)
	_, err = s.Ask(context.Background(), "q2")
	assert.ErrorIs(t, err, ErrNoDocument)
}
