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

type TemplateStore struct {
	DB *pgxpool.Pool
}

func NewTemplateStore(pool *pgxpool.Pool) *TemplateStore {
	return &TemplateStore{DB: pool}
}

func (s *TemplateStore) Get(ctx context.Context, name string) (*domain.Template, error) {
	exec := getExecutor(ctx, s.DB)
	var (
		t       domain.Template
		channel string
	)
	err := exec.QueryRow(ctx,
		"SELECT name, channel, subject, body, required_variables FROM notification_templates WHERE name = $1", name).
		Scan(&t.Name, &channel, &t.Subject, &t.Body, &t.RequiredVariables)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrTemplateNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.Channel = domain.Channel(channel)
	return &t, nil
}

func (s *TemplateStore) Save(ctx context.Context, t *domain.Template) error {
	exec := getExecutor(ctx, s.DB)
	_, err := exec.Exec(ctx,
		`INSERT INTO notification_templates (name, channel, subject, body, required_variables)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO UPDATE SET channel = $2, subject = $3, body = $4, required_variables = $5`,
		t.Name, string(t.Channel), t.Subject, t.Body, t.RequiredVariables)
	return err
}

var _ port.TemplateStore = (*TemplateStore)(nil)
