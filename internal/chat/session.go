package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"gridd.sh/internal/gerrors"
	"gridd.sh/internal/inference"
	"gridd.sh/internal/metrics"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MaxContentChars caps message content before it is sent or stored.
const MaxContentChars = 2000

// Message is one entry in a user's transcript. Append-only, never
// mutated or reordered.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// State tracks the send lifecycle: Idle -> Sending -> (Idle | Failed).
type State int

const (
	StateIdle State = iota
	StateSending
	StateFailed
)

// Inferencer is the external inference collaborator.
type Inferencer interface {
	Chat(ctx context.Context, messages []inference.Message) (string, error)
}

// Store persists transcript rows.
type Store interface {
	InsertMessage(ctx context.Context, msg Message) error
	ListMessages(ctx context.Context, userID string) ([]Message, error)
}

// Session manages the ordered transcript for one user. While a send is
// in flight new submissions are rejected; that guard is the only
// backpressure in the system.
type Session struct {
	mu      sync.Mutex
	userID  string
	history []Message
	state   State
	infer   Inferencer
	store   Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewSession creates a session for one user.
func NewSession(userID string, infer Inferencer, store Store) *Session {
	return &Session{
		userID: userID,
		state:  StateIdle,
		infer:  infer,
		store:  store,
		logger: slog.Default().With("component", "chat-session", "user_id", userID),
		now:    time.Now,
	}
}

// LoadHistory replaces the in-memory transcript with the persisted rows,
// ordered by creation time.
func (s *Session) LoadHistory(ctx context.Context) error {
	msgs, err := s.store.ListMessages(ctx, s.userID)
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to load transcript")
	}

	s.mu.Lock()
	s.history = msgs
	s.mu.Unlock()
	return nil
}

// History returns a copy of the transcript.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// State returns the current send state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send validates and truncates text, forwards the full history plus the
// new message to the inference endpoint, and appends both sides of the
// exchange atomically. On any inference failure the transcript is left
// unchanged. A persistence failure after a successful exchange keeps the
// in-memory transcript and is surfaced as ErrCodePersistFailed so the
// caller can report it distinctly; the user's content is not lost.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	if text == "" {
		return Message{}, gerrors.New(gerrors.ErrCodeInvalidInput, "message is empty")
	}
	text = truncate(text)

	s.mu.Lock()
	if s.state == StateSending {
		s.mu.Unlock()
		metrics.ChatSendsTotal.WithLabelValues("busy").Inc()
		return Message{}, gerrors.New(gerrors.ErrCodeBusy, "a send is already in flight")
	}
	s.state = StateSending
	outbound := make([]inference.Message, 0, len(s.history)+1)
	for _, m := range s.history {
		outbound = append(outbound, inference.Message{Role: string(m.Role), Content: m.Content})
	}
	outbound = append(outbound, inference.Message{Role: string(RoleUser), Content: text})
	s.mu.Unlock()

	// Network round trip happens outside the lock; the Sending state
	// keeps re-submissions out.
	reply, err := s.infer.Chat(ctx, outbound)
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()
		metrics.ChatSendsTotal.WithLabelValues(string(gerrors.CodeOf(err))).Inc()
		return Message{}, err
	}

	now := s.now()
	userMsg := Message{
		ID:        uuid.New().String(),
		UserID:    s.userID,
		Role:      RoleUser,
		Content:   text,
		CreatedAt: now,
	}
	assistantMsg := Message{
		ID:        uuid.New().String(),
		UserID:    s.userID,
		Role:      RoleAssistant,
		Content:   truncate(reply),
		CreatedAt: now.Add(time.Millisecond),
	}

	s.mu.Lock()
	s.history = append(s.history, userMsg, assistantMsg)
	s.state = StateIdle
	s.mu.Unlock()

	if err := s.persist(ctx, userMsg, assistantMsg); err != nil {
		s.logger.Error("transcript persistence failed", "error", err)
		metrics.ChatSendsTotal.WithLabelValues("persist_failed").Inc()
		return assistantMsg, gerrors.Wrap(err, gerrors.ErrCodePersistFailed,
			"exchange completed but could not be saved")
	}

	metrics.ChatSendsTotal.WithLabelValues("ok").Inc()
	return assistantMsg, nil
}

func (s *Session) persist(ctx context.Context, msgs ...Message) error {
	for _, m := range msgs {
		if err := s.store.InsertMessage(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// truncate caps text at MaxContentChars bytes, backing off to the
// nearest rune boundary so the cut never produces invalid UTF-8.
func truncate(text string) string {
	if len(text) <= MaxContentChars {
		return text
	}
	cut := MaxContentChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
