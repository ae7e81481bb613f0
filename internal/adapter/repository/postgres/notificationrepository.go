package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/port"
)

const notificationColumns = `id, recipient_id, recipient_email, type, channel, subject, content,
	status, retry_count, error_message, created_at, sent_at, delivered_at, is_read`

type NotificationRepository struct {
	DB *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{DB: pool}
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	exec := getExecutor(ctx, r.DB)
	_, err := exec.Exec(ctx,
		`INSERT INTO notifications (`+notificationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		n.ID, n.RecipientID, n.RecipientEmail, n.Type, string(n.Channel), n.Subject, n.Content,
		string(n.Status), n.RetryCount, n.ErrorMessage, n.CreatedAt, n.SentAt, n.DeliveredAt, n.IsRead)
	if err != nil {
		return fmt.Errorf("insert notification %s: %w", n.ID, err)
	}
	return nil
}

func (r *NotificationRepository) Get(ctx context.Context, id string) (*domain.Notification, error) {
	exec := getExecutor(ctx, r.DB)
	row := exec.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	return scanNotification(row, id)
}

// Update locks the row for the duration of fn.
func (r *NotificationRepository) Update(ctx context.Context, id string, fn func(n *domain.Notification) error) (*domain.Notification, error) {
	var out *domain.Notification
	err := pgx.BeginFunc(ctx, r.DB, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1 FOR UPDATE`, id)
		cur, err := scanNotification(row, id)
		if err != nil {
			return err
		}
		if err := fn(cur); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE notifications
			 SET subject = $2, content = $3, status = $4, retry_count = $5, error_message = $6,
			     sent_at = $7, delivered_at = $8, is_read = $9
			 WHERE id = $1`,
			id, cur.Subject, cur.Content, string(cur.Status), cur.RetryCount, cur.ErrorMessage,
			cur.SentAt, cur.DeliveredAt, cur.IsRead)
		if err != nil {
			return fmt.Errorf("update notification %s: %w", id, err)
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *NotificationRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*domain.Notification, error) {
	exec := getExecutor(ctx, r.DB)
	rows, err := exec.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE status = $1 AND retry_count < $2
		 ORDER BY created_at, id LIMIT $3`,
		string(domain.StatusFailed), maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, q port.RecipientQuery) ([]*domain.Notification, error) {
	exec := getExecutor(ctx, r.DB)
	sql := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
	args := []any{q.RecipientID}
	if q.Channel != "" {
		args = append(args, string(q.Channel))
		sql += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		sql += fmt.Sprintf(" AND created_at > $%d", len(args))
	}
	if q.UnreadOnly {
		sql += " AND NOT is_read"
	}
	sql += " ORDER BY created_at, id"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, id string) error {
	exec := getExecutor(ctx, r.DB)
	tag, err := exec.Exec(ctx, "UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2", id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanNotification(row pgx.Row, id string) (*domain.Notification, error) {
	var (
		n              domain.Notification
		channel, state string
	)
	err := row.Scan(&n.ID, &n.RecipientID, &n.RecipientEmail, &n.Type, &channel, &n.Subject, &n.Content,
		&state, &n.RetryCount, &n.ErrorMessage, &n.CreatedAt, &n.SentAt, &n.DeliveredAt, &n.IsRead)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	n.Channel = domain.Channel(channel)
	n.Status = domain.Status(state)
	return &n, nil
}

func collect(rows pgx.Rows) ([]*domain.Notification, error) {
	defer rows.Close()
	var items []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows, "")
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// Compile-time interface checks.
var _ port.NotificationRepository = (*NotificationRepository)(nil)
