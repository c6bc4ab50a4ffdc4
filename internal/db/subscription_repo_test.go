package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/types"
)

// recordingDBTX captures the SQL text of each call so query shape can be
// asserted without a live database.
type recordingDBTX struct {
	lastSQL  string
	lastArgs []any
	scanErr  error
}

func (d *recordingDBTX) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.lastSQL = sql
	d.lastArgs = args
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func (d *recordingDBTX) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.lastSQL = sql
	d.lastArgs = args
	return nil, pgx.ErrNoRows
}

func (d *recordingDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	d.lastSQL = sql
	d.lastArgs = args
	return errRow{err: d.scanErr}
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

// The partial unique index allows at most one active subscription, but the
// lookup still orders by expiry so a drifted dataset resolves to the most
// future row instead of an arbitrary one.
func TestGetActiveByStudent_OrdersByMostFutureExpiry(t *testing.T) {
	dbtx := &recordingDBTX{scanErr: pgx.ErrNoRows}
	repo := NewSubscriptionRepository(dbtx)

	_, err := repo.GetActiveByStudent(context.Background(), "stu_1", time.Now())
	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok, "expected *types.AppError, got %T", err)
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)

	assert.Contains(t, dbtx.lastSQL, "ORDER BY expires_at DESC")
	assert.Contains(t, dbtx.lastSQL, "LIMIT 1")
}

func TestGetActiveByStudentForUpdate_OrdersByMostFutureExpiry(t *testing.T) {
	dbtx := &recordingDBTX{scanErr: pgx.ErrNoRows}
	repo := NewSubscriptionRepository(dbtx)

	_, err := repo.GetActiveByStudentForUpdate(context.Background(), "stu_1", time.Now())
	require.Error(t, err)

	assert.Contains(t, dbtx.lastSQL, "ORDER BY expires_at DESC")
	assert.Contains(t, dbtx.lastSQL, "LIMIT 1")
	assert.Contains(t, dbtx.lastSQL, "FOR UPDATE")
}
