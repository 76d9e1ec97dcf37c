// Package postgres implements the storage interface over PostgreSQL
// using database/sql with the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/playrival/rival-server/internal/model"
	"github.com/playrival/rival-server/internal/storage"
	"github.com/playrival/rival-server/internal/storage/postgres/migrations"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// so the same query methods serve both plain and transactional calls.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Storage is the PostgreSQL-backed implementation of the storage interface
type Storage struct {
	db *sql.DB
	q  querier
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// New opens a connection pool with the given configuration
func New(cfg Config) (*Storage, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Storage{db: db, q: db}, nil
}

// RunMigrations applies the embedded goose migrations
func (s *Storage) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect error: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// Ping verifies store connectivity
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) FindUser(ctx context.Context, id model.UserID) (*model.User, error) {
	query := `SELECT user_id, name, coins, COALESCE(image, '') FROM users WHERE user_id = $1`
	var user model.User
	err := s.q.QueryRowContext(ctx, query, string(id)).Scan(&user.ID, &user.Name, &user.Coins, &user.Image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

const challengeColumns = `id, creator_id, COALESCE(invitee_id, ''), is_open, game,
	COALESCE(description, ''), COALESCE(rules, 'null'::jsonb), coins, xp, status,
	COALESCE(winner_id, ''), created_at, updated_at,
	COALESCE(accepted_at, 'epoch'::timestamptz),
	COALESCE(expires_at, 'epoch'::timestamptz),
	COALESCE(completed_at, 'epoch'::timestamptz),
	COALESCE(claim_time, 'epoch'::timestamptz)`

func scanChallenge(row *sql.Row) (*model.Challenge, error) {
	var c model.Challenge
	err := row.Scan(
		&c.ID, &c.CreatorID, &c.InviteeID, &c.IsOpen, &c.Game,
		&c.Description, &c.Rules, &c.Coins, &c.XP, &c.Status,
		&c.WinnerID, &c.CreatedAt, &c.UpdatedAt,
		&c.AcceptedAt, &c.ExpiresAt, &c.CompletedAt, &c.ClaimTime,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Storage) FindChallenge(ctx context.Context, id model.ChallengeID) (*model.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`
	challenge, err := scanChallenge(s.q.QueryRowContext(ctx, query, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find challenge: %w", err)
	}
	return challenge, nil
}

func (s *Storage) CreateChallenge(ctx context.Context, c *model.Challenge) error {
	query := `
		INSERT INTO challenges
			(id, creator_id, invitee_id, is_open, game, description, rules,
			 coins, xp, status, created_at, updated_at, expires_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7,
			 $8, $9, $10, $11, $12, $13)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(c.ID), string(c.CreatorID), string(c.InviteeID), c.IsOpen,
		c.Game, c.Description, nullableJSON(c.Rules),
		c.Coins, c.XP, string(c.Status), c.CreatedAt, c.UpdatedAt, c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

// nullableJSON passes rules through as text so the parameter infers to
// jsonb; a []byte argument would arrive as bytea
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *Storage) UpdateChallenge(ctx context.Context, id model.ChallengeID, patch storage.ChallengePatch) error {
	set := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.InviteeID != nil {
		add("invitee_id", string(*patch.InviteeID))
	}
	if patch.IsOpen != nil {
		add("is_open", *patch.IsOpen)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.WinnerID != nil {
		add("winner_id", string(*patch.WinnerID))
	}
	if patch.UpdatedAt != nil {
		add("updated_at", *patch.UpdatedAt)
	}
	if patch.AcceptedAt != nil {
		add("accepted_at", *patch.AcceptedAt)
	}
	if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}
	if patch.ClaimTime != nil {
		add("claim_time", *patch.ClaimTime)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, string(id))
	query := fmt.Sprintf("UPDATE challenges SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update challenge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return model.ErrChallengeNotFound
	}
	return nil
}

func (s *Storage) UpsertSelection(ctx context.Context, sel *model.WinnerSelection) error {
	query := `
		INSERT INTO winner_selections (challenge_id, player_id, selected_winner, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT winner_selections_challenge_player_key
		DO UPDATE SET
			selected_winner = EXCLUDED.selected_winner,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.q.ExecContext(ctx, query,
		string(sel.ChallengeID), string(sel.PlayerID), string(sel.SelectedWinner), sel.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert selection: %w", err)
	}
	return nil
}

// LoadActiveSelections returns all selections joined to IN_PROGRESS challenges
func (s *Storage) LoadActiveSelections(ctx context.Context) ([]*model.WinnerSelection, error) {
	query := `
		SELECT ws.challenge_id, ws.player_id, ws.selected_winner, ws.updated_at
		FROM winner_selections ws
		JOIN challenges c ON c.id = ws.challenge_id
		WHERE c.status = $1
	`
	rows, err := s.q.QueryContext(ctx, query, string(model.StatusInProgress))
	if err != nil {
		return nil, fmt.Errorf("failed to load active selections: %w", err)
	}
	defer rows.Close()

	var result []*model.WinnerSelection
	for rows.Next() {
		var sel model.WinnerSelection
		if err := rows.Scan(&sel.ChallengeID, &sel.PlayerID, &sel.SelectedWinner, &sel.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan selection: %w", err)
		}
		result = append(result, &sel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("selection rows error: %w", err)
	}
	return result, nil
}

func (s *Storage) DeleteSelectionsFor(ctx context.Context, id model.ChallengeID) error {
	query := `DELETE FROM winner_selections WHERE challenge_id = $1`
	if _, err := s.q.ExecContext(ctx, query, string(id)); err != nil {
		return fmt.Errorf("failed to delete selections: %w", err)
	}
	return nil
}

// WithTransaction runs fn inside a repeatable-read transaction, committing
// on success and rolling back on error or panic. Panics are rethrown.
func (s *Storage) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Storage) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, &Storage{db: s.db, q: tx})
	return err
}

// Close releases the connection pool
func (s *Storage) Close() error {
	return s.db.Close()
}
