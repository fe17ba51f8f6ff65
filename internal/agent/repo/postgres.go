package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Chative-reservations/server/internal/agent/model"
	errx "github.com/Chative-reservations/server/internal/core/error"
	logx "github.com/Chative-reservations/server/pkg/logger"
)

// PgxConn is the subset of *pgxpool.Pool the store needs.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const createStateTable = `
CREATE TABLE IF NOT EXISTS conversation_states (
	id         TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	saved_at   TIMESTAMPTZ NOT NULL
)`

// PostgresStateStore keeps one JSONB row per conversation. Rows idle longer than ttl
// read as absent and are deleted on that read.
type PostgresStateStore struct {
	db  PgxConn
	ttl time.Duration
	now func() time.Time
}

func NewPostgresStateStore(db PgxConn, ttl time.Duration) *PostgresStateStore {
	return &PostgresStateStore{db: db, ttl: ttl, now: time.Now}
}

// EnsureSchema creates the backing table when missing.
func (p *PostgresStateStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createStateTable); err != nil {
		logx.Error().Err(err).Msg("failed to create conversation_states table")
		return errx.WrapPostgres(err)
	}
	return nil
}

func (p *PostgresStateStore) Get(ctx context.Context, id string) (*model.ConversationState, error) {
	var (
		raw     []byte
		savedAt time.Time
	)
	row := p.db.QueryRow(ctx, `SELECT state, saved_at FROM conversation_states WHERE id=$1`, id)
	if err := row.Scan(&raw, &savedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		logx.Error().Err(err).Str("conversation_id", id).Msg("failed to load conversation state from postgres")
		return nil, errx.WrapPostgres(err)
	}

	if p.ttl > 0 && p.now().Sub(savedAt) > p.ttl {
		if _, err := p.db.Exec(ctx, `DELETE FROM conversation_states WHERE id=$1 AND saved_at=$2`, id, savedAt); err != nil {
			logx.Warn().Err(err).Str("conversation_id", id).Msg("failed to drop expired conversation state")
		}
		return nil, nil
	}

	var st model.ConversationState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("unmarshal conversation state: %w", err)
	}
	return &st, nil
}

func (p *PostgresStateStore) Save(ctx context.Context, st *model.ConversationState) error {
	if st == nil || st.ID == "" {
		return errx.InvalidInput("conversation state without id")
	}
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal conversation state: %w", err)
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO conversation_states (id, state, saved_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, saved_at = EXCLUDED.saved_at
	`, st.ID, b, p.now().UTC())
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", st.ID).Msg("failed to save conversation state to postgres")
		return errx.WrapPostgres(err)
	}
	return nil
}

func (p *PostgresStateStore) Delete(ctx context.Context, id string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM conversation_states WHERE id=$1`, id); err != nil {
		logx.Error().Err(err).Str("conversation_id", id).Msg("failed to delete conversation state from postgres")
		return errx.WrapPostgres(err)
	}
	return nil
}

var _ model.StateStore = (*PostgresStateStore)(nil)
