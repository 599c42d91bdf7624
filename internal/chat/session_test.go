package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridd.sh/internal/gerrors"
	"gridd.sh/internal/inference"
)

type fakeInferencer struct {
	mu      sync.Mutex
	reply   string
	err     error
	got     [][]inference.Message
	started chan struct{} // closed when Chat is entered, if set
	release chan struct{} // Chat blocks until closed, if set
}

func (f *fakeInferencer) Chat(ctx context.Context, messages []inference.Message) (string, error) {
	f.mu.Lock()
	f.got = append(f.got, messages)
	started := f.started
	release := f.release
	f.mu.Unlock()

	if started != nil {
		close(started)
		f.mu.Lock()
		f.started = nil
		f.mu.Unlock()
	}
	if release != nil {
		<-release
	}
	return f.reply, f.err
}

type fakeStore struct {
	mu       sync.Mutex
	inserted []Message
	listed   []Message
	insErr   error
	listErr  error
}

func (f *fakeStore) InsertMessage(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insErr != nil {
		return f.insErr
	}
	f.inserted = append(f.inserted, msg)
	return nil
}

func (f *fakeStore) ListMessages(ctx context.Context, userID string) ([]Message, error) {
	return f.listed, f.listErr
}

func TestSendAppendsExchange(t *testing.T) {
	infer := &fakeInferencer{reply: "reserves are healthy"}
	st := &fakeStore{}
	sess := NewSession("user-1", infer, st)

	reply, err := sess.Send(context.Background(), "how are reserves?")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, reply.Role)
	assert.Equal(t, "reserves are healthy", reply.Content)

	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Equal(t, RoleUser, hist[0].Role)
	assert.Equal(t, "how are reserves?", hist[0].Content)
	assert.Equal(t, RoleAssistant, hist[1].Role)
	assert.True(t, hist[1].CreatedAt.After(hist[0].CreatedAt))
	assert.Equal(t, StateIdle, sess.State())

	// Both sides of the exchange were persisted.
	require.Len(t, st.inserted, 2)
	assert.Equal(t, hist[0].ID, st.inserted[0].ID)
	assert.Equal(t, hist[1].ID, st.inserted[1].ID)
}

func TestSendForwardsFullHistory(t *testing.T) {
	infer := &fakeInferencer{reply: "ok"}
	sess := NewSession("user-1", infer, &fakeStore{})

	_, err := sess.Send(context.Background(), "first")
	require.NoError(t, err)
	_, err = sess.Send(context.Background(), "second")
	require.NoError(t, err)

	require.Len(t, infer.got, 2)
	// Second call carries the first exchange plus the new message.
	require.Len(t, infer.got[1], 3)
	assert.Equal(t, "first", infer.got[1][0].Content)
	assert.Equal(t, "ok", infer.got[1][1].Content)
	assert.Equal(t, "second", infer.got[1][2].Content)
}

func TestSendEmptyMessage(t *testing.T) {
	sess := NewSession("user-1", &fakeInferencer{}, &fakeStore{})

	_, err := sess.Send(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeInvalidInput, gerrors.CodeOf(err))
	assert.Empty(t, sess.History())
}

func TestSendTruncatesLongMessage(t *testing.T) {
	infer := &fakeInferencer{reply: "noted"}
	sess := NewSession("user-1", infer, &fakeStore{})

	_, err := sess.Send(context.Background(), strings.Repeat("x", MaxContentChars+500))
	require.NoError(t, err)

	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Len(t, hist[0].Content, MaxContentChars)
}

func TestSendTruncationKeepsValidUTF8(t *testing.T) {
	infer := &fakeInferencer{reply: "noted"}
	sess := NewSession("user-1", infer, &fakeStore{})

	// A multi-byte rune straddling the byte cap must be dropped whole,
	// not cut in half.
	_, err := sess.Send(context.Background(), strings.Repeat("x", MaxContentChars-1)+"é")
	require.NoError(t, err)

	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Equal(t, MaxContentChars-1, len(hist[0].Content))
	assert.True(t, utf8.ValidString(hist[0].Content))

	// The outbound inference request carries the same clean text.
	require.Len(t, infer.got, 1)
	assert.True(t, utf8.ValidString(infer.got[0][0].Content))
}

func TestSendFailureLeavesHistoryUnchanged(t *testing.T) {
	infer := &fakeInferencer{err: gerrors.New(gerrors.ErrCodeUpstream, "endpoint down")}
	sess := NewSession("user-1", infer, &fakeStore{})

	_, err := sess.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeUpstream, gerrors.CodeOf(err))
	assert.Empty(t, sess.History())
	assert.Equal(t, StateFailed, sess.State())

	// A failed state does not wedge the session.
	infer.err = nil
	infer.reply = "back up"
	_, err = sess.Send(context.Background(), "hello again")
	require.NoError(t, err)
	assert.Len(t, sess.History(), 2)
}

func TestSendRejectedWhileInFlight(t *testing.T) {
	infer := &fakeInferencer{
		reply:   "slow reply",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	sess := NewSession("user-1", infer, &fakeStore{})

	done := make(chan error, 1)
	go func() {
		_, err := sess.Send(context.Background(), "first")
		done <- err
	}()

	select {
	case <-infer.started:
	case <-time.After(time.Second):
		t.Fatal("first send never reached the endpoint")
	}

	_, err := sess.Send(context.Background(), "second")
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeBusy, gerrors.CodeOf(err))

	close(infer.release)
	require.NoError(t, <-done)

	// Only the first exchange landed.
	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "first", hist[0].Content)
}

func TestSendPersistFailureKeepsTranscript(t *testing.T) {
	infer := &fakeInferencer{reply: "saved in memory only"}
	st := &fakeStore{insErr: gerrors.New(gerrors.ErrCodeInternal, "disk full")}
	sess := NewSession("user-1", infer, st)

	reply, err := sess.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodePersistFailed, gerrors.CodeOf(err))

	// The exchange succeeded: the caller still gets the reply and the
	// in-memory transcript keeps both messages.
	assert.Equal(t, "saved in memory only", reply.Content)
	assert.Len(t, sess.History(), 2)
	assert.Equal(t, StateIdle, sess.State())
}

func TestLoadHistory(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	st := &fakeStore{listed: []Message{
		{ID: "a", UserID: "user-1", Role: RoleUser, Content: "q", CreatedAt: base},
		{ID: "b", UserID: "user-1", Role: RoleAssistant, Content: "a", CreatedAt: base.Add(time.Second)},
	}}
	sess := NewSession("user-1", &fakeInferencer{}, st)

	require.NoError(t, sess.LoadHistory(context.Background()))
	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "a", hist[0].ID)
	assert.Equal(t, "b", hist[1].ID)
}

func TestLoadHistoryError(t *testing.T) {
	st := &fakeStore{listErr: gerrors.New(gerrors.ErrCodeInternal, "no such table")}
	sess := NewSession("user-1", &fakeInferencer{}, st)

	err := sess.LoadHistory(context.Background())
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodePersistFailed, gerrors.CodeOf(err))
}

func TestHistoryReturnsCopy(t *testing.T) {
	infer := &fakeInferencer{reply: "ok"}
	sess := NewSession("user-1", infer, &fakeStore{})

	_, err := sess.Send(context.Background(), "hello")
	require.NoError(t, err)

	hist := sess.History()
	hist[0].Content = "tampered"
	assert.Equal(t, "hello", sess.History()[0].Content)
}
