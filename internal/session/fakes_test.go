package session

import (
	"context"
	"sync"
)

// fakeBackend scripts the assistant calls and records what it was given.
type fakeBackend struct {
	mu sync.Mutex

	transcript    string
	transcribeErr error
	reply         string
	replyErr      error
	speech        []byte
	speechErr     error
	ocrText       string
	ocrErr        error
	uploadAck     string
	uploadErr     error
	answer        string
	queryErr      error

	// When set, the call signals its started channel and blocks until the
	// matching release channel is closed.
	replyStarted chan struct{}
	replyRelease chan struct{}
	queryStarted chan struct{}
	queryRelease chan struct{}
	ocrStarted   chan struct{}
	ocrRelease   chan struct{}

	transcribeCalls int
	replyCalls      int
	speechCalls     int
	ocrCalls        int
	uploadCalls     int
	queryCalls      int

	transcribedAudio [][]byte
	contentTypes     []string
	prompts          []string
	spoken           []string
	ocrImages        [][]byte
	uploadNames      []string
	uploadSessionIDs []string
	questions        []string
	histories        []string
}

func (b *fakeBackend) Transcribe(_ context.Context, audio []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transcribeCalls++
	b.transcribedAudio = append(b.transcribedAudio, audio)
	b.contentTypes = append(b.contentTypes, contentType)
	return b.transcript, b.transcribeErr
}

func (b *fakeBackend) Reply(_ context.Context, text string) (string, error) {
	b.mu.Lock()
	b.replyCalls++
	b.prompts = append(b.prompts, text)
	started, release := b.replyStarted, b.replyRelease
	reply, err := b.reply, b.replyErr
	b.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	return reply, err
}

func (b *fakeBackend) Synthesize(_ context.Context, text string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speechCalls++
	b.spoken = append(b.spoken, text)
	return b.speech, b.speechErr
}

func (b *fakeBackend) ExtractText(_ context.Context, image []byte) (string, error) {
	b.mu.Lock()
	b.ocrCalls++
	b.ocrImages = append(b.ocrImages, image)
	started, release := b.ocrStarted, b.ocrRelease
	text, err := b.ocrText, b.ocrErr
	b.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	return text, err
}

func (b *fakeBackend) UploadPDF(_ context.Context, _ []byte, filename, sessionID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadCalls++
	b.uploadNames = append(b.uploadNames, filename)
	b.uploadSessionIDs = append(b.uploadSessionIDs, sessionID)
	return b.uploadAck, b.uploadErr
}

func (b *fakeBackend) Query(_ context.Context, userMessage, chatHistory string) (string, error) {
	b.mu.Lock()
	b.queryCalls++
	b.questions = append(b.questions, userMessage)
	b.histories = append(b.histories, chatHistory)
	started, release := b.queryStarted, b.queryRelease
	answer, err := b.answer, b.queryErr
	b.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	return answer, err
}

func (b *fakeBackend) counts() (transcribe, reply, speech int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transcribeCalls, b.replyCalls, b.speechCalls
}

type playedAudio struct {
	owner string
	audio []byte
}

// fakePlayer records playback requests without sounding anything.
type fakePlayer struct {
	mu sync.Mutex

	playErr     error
	canReplay   bool
	replayErr   error
	replayCalls int

	plays []playedAudio
}

func (p *fakePlayer) Play(audio []byte, owner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays = append(p.plays, playedAudio{owner: owner, audio: audio})
	return p.playErr
}

func (p *fakePlayer) PlayingOwner() (string, bool) {
	return "", false
}

func (p *fakePlayer) CanReplay() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canReplay
}

func (p *fakePlayer) ReplayLast() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replayCalls++
	return p.replayErr
}

func (p *fakePlayer) played() []playedAudio {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]playedAudio(nil), p.plays...)
}

// fakeRecording is an open stream with scripted Stop results.
type fakeRecording struct {
	mu      sync.Mutex
	data    []byte
	ct      string
	stopErr error
	stops   int
}

func (r *fakeRecording) Stop() ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return r.data, r.ct, r.stopErr
}

// fakeMic hands out a scripted recording.
type fakeMic struct {
	mu     sync.Mutex
	rec    Recording
	err    error
	starts int
}

func (m *fakeMic) Start(context.Context) (Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.err != nil {
		return nil, m.err
	}
	return m.rec, nil
}

// fakeCamera is a scripted frame source.
type fakeCamera struct {
	frame []byte
	err   error
	calls int
}

func (c *fakeCamera) Capture(context.Context) ([]byte, error) {
	c.calls++
	return c.frame, c.err
}
