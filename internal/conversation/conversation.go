// Package conversation defines the data types flowing through the session
// surfaces: chat messages, PDF question/answer exchanges, and their
// append-only logs.
//
// Messages and exchanges are immutable once appended. The one sanctioned
// enrichment — synthesized audio backfilled on first replay — lives outside
// the log entries, in an AudioCache keyed by entry identity.
package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// Message is a single entry in a chat surface's ordered log.
type Message struct {
	// ID is a unique identifier for this message (UUID).
	ID string `json:"id"`

	// Text is the message content.
	Text string `json:"text"`

	// IsUser is true for messages the user produced (typed or spoken),
	// false for assistant replies.
	IsUser bool `json:"is_user"`

	// Timestamp is when the message was appended.
	Timestamp time.Time `json:"timestamp"`
}

// Exchange is one question/answer pair in a PDF surface's log, scoped to the
// lifetime of a single uploaded-document session.
type Exchange struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// NewMessage builds a message with a fresh ID and timestamp.
func NewMessage(text string, isUser bool) Message {
	return Message{
		ID:        uuid.NewString(),
		Text:      text,
		IsUser:    isUser,
		Timestamp: time.Now(),
	}
}

// NewExchange builds an exchange with a fresh ID.
func NewExchange(question, answer string) Exchange {
	return Exchange{
		ID:       uuid.NewString(),
		Question: question,
		Answer:   answer,
	}
}

// Log is an append-only message log. Entries are never deleted or mutated.
type Log struct {
	mu       sync.Mutex
	messages []Message
}

// Append adds a message to the log and returns it unchanged.
func (l *Log) Append(msg Message) Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
	return msg
}

// Messages returns a snapshot of the log.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Find returns the message with the given ID.
func (l *Log) Find(id string) (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Len returns the number of messages in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// ExchangeLog is an append-only log of PDF exchanges. Reset drops the whole
// history when the owning document session ends.
type ExchangeLog struct {
	mu        sync.Mutex
	exchanges []Exchange
}

// Append adds an exchange to the log and returns it unchanged.
func (l *ExchangeLog) Append(ex Exchange) Exchange {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exchanges = append(l.exchanges, ex)
	return ex
}

// Exchanges returns a snapshot of the log.
func (l *ExchangeLog) Exchanges() []Exchange {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Exchange, len(l.exchanges))
	copy(out, l.exchanges)
	return out
}

// Find returns the exchange with the given ID.
func (l *ExchangeLog) Find(id string) (Exchange, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ex := range l.exchanges {
		if ex.ID == id {
			return ex, true
		}
	}
	return Exchange{}, false
}

// Len returns the number of exchanges in the log.
func (l *ExchangeLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.exchanges)
}

// Reset drops all exchanges.
func (l *ExchangeLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exchanges = nil
}

// HistoryTranscript serializes exchanges as alternating Human/Assistant
// turns, the format the query endpoint expects for stateless context.
func HistoryTranscript(exchanges []Exchange) string {
	turns := make([]string, 0, len(exchanges))
	for _, ex := range exchanges {
		turns = append(turns, fmt.Sprintf("Human: %s\nAssistant: %s", ex.Question, ex.Answer))
	}
	return strings.Join(turns, "\n\n")
}

// AudioCache memoizes synthesized audio by message or exchange identity.
// First write wins, so backfill is idempotent: replaying an entry twice
// synthesizes at most once.
type AudioCache struct {
	cache *gocache.Cache
}

// NewAudioCache creates a cache whose entries live as long as the process.
func NewAudioCache() *AudioCache {
	return &AudioCache{cache: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns the cached audio for an entry ID.
func (c *AudioCache) Get(id string) ([]byte, bool) {
	v, ok := c.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Put stores audio for an entry ID unless one is already cached. It returns
// the audio that ends up associated with the ID.
func (c *AudioCache) Put(id string, audio []byte) []byte {
	if err := c.cache.Add(id, audio, gocache.NoExpiration); err != nil {
		if existing, ok := c.Get(id); ok {
			return existing
		}
	}
	return audio
}

// Flush drops every cached entry.
func (c *AudioCache) Flush() {
	c.cache.Flush()
}
