package store

import (
	"context"
	"database/sql"
	"time"

	"gridd.sh/internal/gerrors"
	"gridd.sh/internal/metrics"
)

// Annotation is a collaborative marker pinned onto a chart.
type Annotation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Content   string    `json:"content"`
	XPosition float64   `json:"xPosition"`
	YPosition float64   `json:"yPosition"`
	ChartID   string    `json:"chartId"`
	CreatedAt time.Time `json:"createdAt"`
}

// AnnotationRepository persists chart annotations.
type AnnotationRepository struct {
	db *sql.DB
}

// NewAnnotationRepository creates an annotation repository.
func NewAnnotationRepository(db *sql.DB) *AnnotationRepository {
	return &AnnotationRepository{db: db}
}

// Insert stores a new annotation.
func (r *AnnotationRepository) Insert(ctx context.Context, a Annotation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO annotation (id, user_id, user_name, content, x_position, y_position, chart_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.UserName, a.Content, a.XPosition, a.YPosition, a.ChartID, a.CreatedAt,
	)
	metrics.RecordDBQuery("insert", "annotation", err)
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to insert annotation")
	}
	return nil
}

// Delete removes an annotation only if userID owns it. The ownership
// check lives in the SQL predicate, not in the handler: the client-side
// check is UX, this is the security boundary.
func (r *AnnotationRepository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM annotation WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	metrics.RecordDBQuery("delete", "annotation", err)
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to delete annotation")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to read delete result")
	}
	if affected > 0 {
		return nil
	}

	// Nothing deleted: either the row belongs to someone else or it
	// does not exist. Distinguish the two for the caller.
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM annotation WHERE id = ?`, id).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		return gerrors.Newf(gerrors.ErrCodeNotFound, "annotation %s not found", id)
	case err != nil:
		return gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to check annotation")
	default:
		return gerrors.New(gerrors.ErrCodeUnauthorized, "only the creator may delete an annotation")
	}
}

// Recent returns the newest annotations, creation time descending.
func (r *AnnotationRepository) Recent(ctx context.Context, limit int) ([]Annotation, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, user_name, content, x_position, y_position, chart_id, created_at
		 FROM annotation
		 ORDER BY created_at DESC
		 LIMIT ?`,
		limit,
	)
	metrics.RecordDBQuery("select", "annotation", err)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to query annotations")
	}
	defer rows.Close()

	var out []Annotation
	for rows.Next() {
		var a Annotation
		if err := rows.Scan(&a.ID, &a.UserID, &a.UserName, &a.Content,
			&a.XPosition, &a.YPosition, &a.ChartID, &a.CreatedAt); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to scan annotation")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodePersistFailed, "failed to read annotations")
	}

	return out, nil
}
