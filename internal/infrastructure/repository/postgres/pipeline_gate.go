package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dealtrace/dealtrace/internal/core/domain"
)

// Clustering and its downstream stages follow single-writer discipline:
// two concurrent passes could independently promote or merge the same
// candidate deal. The gate takes a session advisory lock for the length
// of one pass; a pass that finds the lock held is skipped, not queued.
const pipelineLockKey = int64(2026052102)

type PipelineGate struct {
	db *sql.DB
}

func NewPipelineGate(db *sql.DB) *PipelineGate {
	return &PipelineGate{db: db}
}

func (g *PipelineGate) Run(ctx context.Context, fn func(context.Context) error) error {
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", pipelineLockKey).Scan(&acquired); err != nil {
		return fmt.Errorf("acquire pipeline lock: %w", err)
	}
	if !acquired {
		return domain.WrapError(domain.ErrConflict, "pipeline pass",
			errors.New("another pass holds the pipeline lock"))
	}
	defer func() {
		// Unlock must run even when ctx is already cancelled.
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", pipelineLockKey)
	}()

	return fn(ctx)
}
