package annotations

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"gridd.sh/internal/gerrors"
	"gridd.sh/internal/metrics"
	"gridd.sh/internal/store"
)

// RecentWindow is how many annotations the feed reload returns.
const RecentWindow = 10

// MaxContentChars caps annotation text.
const MaxContentChars = 500

// Repository is the persistence surface the service needs.
type Repository interface {
	Insert(ctx context.Context, a store.Annotation) error
	Delete(ctx context.Context, id, userID string) error
	Recent(ctx context.Context, limit int) ([]store.Annotation, error)
}

// Service coordinates annotation writes with the realtime change feed.
type Service struct {
	repo Repository
	hub  *Hub
	now  func() time.Time
}

// NewService creates the annotation service.
func NewService(repo Repository, hub *Hub) *Service {
	return &Service{repo: repo, hub: hub, now: time.Now}
}

// Create validates and stores a new annotation, then notifies the feed.
func (s *Service) Create(ctx context.Context, userID, userName, content, chartID string, x, y float64) (store.Annotation, error) {
	if content == "" {
		return store.Annotation{}, gerrors.New(gerrors.ErrCodeInvalidInput, "annotation content is empty")
	}
	if len(content) > MaxContentChars {
		// Back off to a rune boundary so the cut never produces
		// invalid UTF-8.
		cut := MaxContentChars
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	if chartID == "" {
		return store.Annotation{}, gerrors.New(gerrors.ErrCodeInvalidInput, "chart id is required")
	}

	a := store.Annotation{
		ID:        uuid.New().String(),
		UserID:    userID,
		UserName:  userName,
		Content:   content,
		XPosition: x,
		YPosition: y,
		ChartID:   chartID,
		CreatedAt: s.now(),
	}

	if err := s.repo.Insert(ctx, a); err != nil {
		return store.Annotation{}, err
	}

	metrics.AnnotationEventsTotal.WithLabelValues(string(EventInsert)).Inc()
	s.hub.Broadcast(Event{Type: EventInsert, Annotation: &a, Timestamp: s.now()})
	return a, nil
}

// Delete removes an annotation owned by userID and notifies the feed.
// Ownership is enforced by the repository's SQL predicate.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return err
	}

	metrics.AnnotationEventsTotal.WithLabelValues(string(EventDelete)).Inc()
	s.hub.Broadcast(Event{Type: EventDelete, ID: id, Timestamp: s.now()})
	return nil
}

// Recent returns the newest annotations for a feed reload.
func (s *Service) Recent(ctx context.Context) ([]store.Annotation, error) {
	return s.repo.Recent(ctx, RecentWindow)
}
