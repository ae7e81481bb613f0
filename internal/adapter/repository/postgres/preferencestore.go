package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/port"
)

type PreferenceStore struct {
	DB *pgxpool.Pool
}

func NewPreferenceStore(pool *pgxpool.Pool) *PreferenceStore {
	return &PreferenceStore{DB: pool}
}

func (s *PreferenceStore) Get(ctx context.Context, userID string) (*domain.Preference, error) {
	exec := getExecutor(ctx, s.DB)
	var (
		p         domain.Preference
		freq      string
		overrides []byte
	)
	err := exec.QueryRow(ctx,
		`SELECT user_id, notifications_enabled, email_enabled, push_enabled, email_frequency, notification_types, updated_at
		 FROM notification_preferences WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.GlobalEnabled, &p.EmailEnabled, &p.PushEnabled, &freq, &overrides, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preference %s: %w", userID, err)
	}
	p.EmailFrequency = domain.EmailFrequency(freq)
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &p.PerTypeOverrides); err != nil {
			return nil, fmt.Errorf("decode preference overrides %s: %w", userID, err)
		}
	}
	return &p, nil
}

func (s *PreferenceStore) Save(ctx context.Context, p *domain.Preference) error {
	overrides, err := json.Marshal(p.PerTypeOverrides)
	if err != nil {
		return err
	}
	exec := getExecutor(ctx, s.DB)
	_, err = exec.Exec(ctx,
		`INSERT INTO notification_preferences
		   (user_id, notifications_enabled, email_enabled, push_enabled, email_frequency, notification_types, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		   notifications_enabled = $2, email_enabled = $3, push_enabled = $4,
		   email_frequency = $5, notification_types = $6, updated_at = NOW()`,
		p.UserID, p.GlobalEnabled, p.EmailEnabled, p.PushEnabled, string(p.EmailFrequency), overrides)
	return err
}

var _ port.PreferenceStore = (*PreferenceStore)(nil)
