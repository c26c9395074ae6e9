package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSQL(t *testing.T) {
	tests := []struct {
		name      string
		sql       string
		operation string
		table     string
	}{
		{"select", "SELECT close FROM candles WHERE symbol = $1", "SELECT", "candles"},
		{"select lowercase", "select * from candles", "SELECT", "candles"},
		{"insert", "INSERT INTO symbol_blacklist (symbol) VALUES ($1)", "INSERT", "symbol_blacklist"},
		{"update", "UPDATE symbol_blacklist SET is_active = false", "UPDATE", "symbol_blacklist"},
		{"delete", "DELETE FROM candles WHERE bucket_ts < $1", "DELETE", "candles"},
		{"leading whitespace", "\n\t\tSELECT 1 FROM candles", "SELECT", "candles"},
		{"other", "VACUUM", "OTHER", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			operation, table := parseSQL(tt.sql)
			assert.Equal(t, tt.operation, operation)
			assert.Equal(t, tt.table, table)
		})
	}
}

func TestExtractTableName(t *testing.T) {
	assert.Equal(t, "candles", extractTableName("SELECT * FROM candles WHERE symbol = $1"))
	assert.Equal(t, "symbol_blacklist", extractTableName("INSERT INTO symbol_blacklist (symbol) VALUES ($1)"))
	assert.Equal(t, "candles", extractTableName("UPDATE candles SET close = $1"))
	assert.Equal(t, "", extractTableName("VACUUM"))
}

func TestTruncateSQL(t *testing.T) {
	assert.Equal(t, "SELECT 1", truncateSQL("  SELECT 1  ", 200))

	long := strings.Repeat("SELECT * FROM candles ", 20)
	truncated := truncateSQL(long, 20)
	assert.Len(t, truncated, 23)
	assert.True(t, strings.HasSuffix(truncated, "..."))
}

func TestNewTracedDB(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	db := NewTracedDB(mockPool)
	assert.NotNil(t, db)
}

func TestTracedDB_Exec(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	db := NewTracedDB(mockPool)

	mockPool.ExpectExec("DELETE FROM candles").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	tag, err := db.Exec(context.Background(), "DELETE FROM candles WHERE bucket_ts < $1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(7), tag.RowsAffected())

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestTracedDB_Exec_Error(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	db := NewTracedDB(mockPool)

	mockPool.ExpectExec("DELETE FROM candles").
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(assert.AnError)

	_, err = db.Exec(context.Background(), "DELETE FROM candles WHERE bucket_ts < $1", time.Now())
	assert.Error(t, err)
}

func TestTracedDB_Query(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	db := NewTracedDB(mockPool)

	mockPool.ExpectQuery("SELECT symbol FROM candles").
		WillReturnRows(pgxmock.NewRows([]string{"symbol"}).AddRow("AAPL").AddRow("MSFT"))

	rows, err := db.Query(context.Background(), "SELECT symbol FROM candles")
	require.NoError(t, err)
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		require.NoError(t, rows.Scan(&symbol))
		symbols = append(symbols, symbol)
	}
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestTracedDB_QueryRow(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	db := NewTracedDB(mockPool)

	mockPool.ExpectQuery("SELECT COUNT").
		WithArgs("AAPL", "1d").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(250)))

	var count int64
	err = db.QueryRow(context.Background(), "SELECT COUNT(*) FROM candles WHERE symbol = $1 AND timeframe = $2", "AAPL", "1d").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, int64(250), count)
}

// The wrapper must satisfy DatabasePool so stores can run through it unchanged.
func TestTracedDB_BacksCandleStore(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	store := NewCandleStore(NewTracedDB(mockPool))

	mockPool.ExpectQuery("SELECT COUNT").
		WithArgs("AAPL", "1d").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	count, err := store.CountCandles(context.Background(), "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}

func TestRecordDatabaseError(t *testing.T) {
	ctx := context.Background()

	// Nil and no-rows errors are not reported
	assert.NotPanics(t, func() {
		RecordDatabaseError(ctx, nil, "select")
		RecordDatabaseError(ctx, pgx.ErrNoRows, "select")
	})

	// Real errors are captured without an initialized SDK
	assert.NotPanics(t, func() {
		RecordDatabaseError(ctx, assert.AnError, "insert")
	})
}

func TestNewPostgresSentryTracer(t *testing.T) {
	tracer := NewPostgresSentryTracer("marketlens")
	assert.NotNil(t, tracer)
	assert.Equal(t, "marketlens", tracer.serviceName)

	// Empty service name falls back to a default
	tracer = NewPostgresSentryTracer("")
	assert.Equal(t, "postgresql", tracer.serviceName)
}

func TestPostgresSentryTracer_QueryLifecycle(t *testing.T) {
	tracer := NewPostgresSentryTracer("marketlens")
	ctx := context.Background()

	startData := pgx.TraceQueryStartData{
		SQL:  "SELECT close FROM candles WHERE symbol = $1",
		Args: []interface{}{"AAPL"},
	}

	ctx = tracer.TraceQueryStart(ctx, nil, startData)
	assert.NotNil(t, ctx)

	assert.NotPanics(t, func() {
		tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})
	})
}

func TestPostgresSentryTracer_QueryError(t *testing.T) {
	tracer := NewPostgresSentryTracer("marketlens")
	ctx := context.Background()

	ctx = tracer.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})

	assert.NotPanics(t, func() {
		tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: assert.AnError})
	})
}

func TestNewRedisSentryHook(t *testing.T) {
	hook := NewRedisSentryHook("marketlens")
	assert.NotNil(t, hook)
	assert.Equal(t, "marketlens", hook.serviceName)

	hook = NewRedisSentryHook("")
	assert.Equal(t, "redis", hook.serviceName)
}

func TestRedisSentryHook_ProcessHook(t *testing.T) {
	hook := NewRedisSentryHook("marketlens")

	var called bool
	next := func(ctx context.Context, cmd redis.Cmder) error {
		called = true
		return nil
	}

	cmd := redis.NewStringCmd(context.Background(), "get", "analytics:AAPL:1d")
	err := hook.ProcessHook(next)(context.Background(), cmd)
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestRedisSentryHook_ProcessHook_RedisNil(t *testing.T) {
	hook := NewRedisSentryHook("marketlens")

	// A cache miss is not an error worth reporting
	next := func(ctx context.Context, cmd redis.Cmder) error {
		return redis.Nil
	}

	cmd := redis.NewStringCmd(context.Background(), "get", "missing")
	err := hook.ProcessHook(next)(context.Background(), cmd)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestRedisSentryHook_ProcessPipelineHook(t *testing.T) {
	hook := NewRedisSentryHook("marketlens")

	var pipelineSize int
	next := func(ctx context.Context, cmds []redis.Cmder) error {
		pipelineSize = len(cmds)
		return nil
	}

	cmds := []redis.Cmder{
		redis.NewStringCmd(context.Background(), "get", "a"),
		redis.NewStringCmd(context.Background(), "get", "b"),
	}
	err := hook.ProcessPipelineHook(next)(context.Background(), cmds)
	assert.NoError(t, err)
	assert.Equal(t, 2, pipelineSize)
}
