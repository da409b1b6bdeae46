package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	ports "github.com/ZanzyTHEbar/serenity/serenity/generation/harness/ports"
	"github.com/ZanzyTHEbar/serenity/serenity/memory"
	"github.com/google/uuid"
)

const (
	AlertPending  = "pending"
	AlertResolved = "resolved"
)

// Alert is a stored crisis escalation.
type Alert struct {
	ID        string
	Identity  string
	Message   string
	Status    string
	CreatedAt time.Time
}

// SQLArchive persists conversation turns and crisis alerts in the
// chat_turns and crisis_alerts tables created by db.Migrate.
type SQLArchive struct {
	db *sql.DB
}

// NewSQLArchive creates a new archive over an already migrated database.
func NewSQLArchive(db *sql.DB) *SQLArchive {
	return &SQLArchive{db: db}
}

// Persist stores one exchange with consecutive sequence numbers.
func (s *SQLArchive) Persist(ctx context.Context, identity string, user, assistant memory.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM chat_turns WHERE identity = ?`, identity).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}

	now := time.Now().UTC()
	for _, turn := range []memory.Turn{user, assistant} {
		seq++
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chat_turns (id, identity, role, content, seq, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), identity, string(turn.Role), turn.Content, seq, now)
		if err != nil {
			return fmt.Errorf("failed to save turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	return nil
}

// LoadRecent returns the last limit turns for identity, oldest first.
func (s *SQLArchive) LoadRecent(ctx context.Context, identity string, limit int) ([]memory.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM chat_turns
		WHERE identity = ?
		ORDER BY seq DESC
		LIMIT ?`, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []memory.Turn
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, memory.Turn{Role: memory.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	slices.Reverse(turns)
	return turns, nil
}

// Notify records a pending crisis alert.
func (s *SQLArchive) Notify(ctx context.Context, identity, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crisis_alerts (id, identity, message, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), identity, message, AlertPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record crisis alert: %w", err)
	}
	return nil
}

// Alerts lists alerts with status, newest first. An empty status lists all.
func (s *SQLArchive) Alerts(ctx context.Context, status string) ([]Alert, error) {
	query := `SELECT id, identity, message, status, created_at FROM crisis_alerts`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Identity, &a.Message, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ErrAlertNotFound is returned by ResolveAlert for unknown ids.
var ErrAlertNotFound = errors.New("alert not found")

// ResolveAlert marks an alert as handled.
func (s *SQLArchive) ResolveAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE crisis_alerts SET status = ? WHERE id = ?`, AlertResolved, id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// Ensure SQLArchive implements both ports.
var (
	_ ports.HistoryArchive = (*SQLArchive)(nil)
	_ ports.Escalator      = (*SQLArchive)(nil)
)
