package database

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lenslabs/marketlens-go/internal/telemetry"
)

// Context key for query start time
type queryStartTimeKey struct{}

// SlowQueryThreshold defines the duration after which a query is considered slow.
const SlowQueryThreshold = 500 * time.Millisecond

// PostgresSentryTracer implements pgx.QueryTracer for Sentry error tracking and tracing.
type PostgresSentryTracer struct {
	serviceName string
}

// NewPostgresSentryTracer creates a new PostgreSQL Sentry tracer.
func NewPostgresSentryTracer(serviceName string) *PostgresSentryTracer {
	if serviceName == "" {
		serviceName = "postgresql"
	}
	return &PostgresSentryTracer{serviceName: serviceName}
}

// TraceQueryStart is called at the beginning of a query execution.
func (t *PostgresSentryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	operation, table := parseSQL(data.SQL)

	span := sentry.StartSpan(ctx, "db.sql.query")
	span.Description = truncateSQL(data.SQL, 200)
	span.SetTag("db.system", "postgresql")
	span.SetTag("db.operation", operation)
	if table != "" {
		span.SetTag("db.table", table)
	}
	span.SetTag("service", t.serviceName)

	// Store span in context for TraceQueryEnd
	return context.WithValue(span.Context(), queryStartTimeKey{}, time.Now())
}

// TraceQueryEnd is called after a query execution.
func (t *PostgresSentryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	span := sentry.SpanFromContext(ctx)
	if span == nil {
		if data.Err != nil && data.Err != pgx.ErrNoRows {
			capturePostgresError(ctx, data.Err, data.CommandTag.String())
		}
		return
	}

	if startTime, ok := ctx.Value(queryStartTimeKey{}).(time.Time); ok {
		duration := time.Since(startTime)
		span.SetData("db.duration_ms", duration.Milliseconds())
		span.SetData("db.rows_affected", data.CommandTag.RowsAffected())

		if duration > SlowQueryThreshold {
			operation, table := parseSQL(span.Description)
			addPostgresBreadcrumb(ctx, operation, table, fmt.Sprintf("slow query: %dms", duration.Milliseconds()))
		}
	}

	if data.Err != nil && data.Err != pgx.ErrNoRows {
		span.Status = sentry.SpanStatusInternalError
		span.SetTag("error", "true")
		span.SetData("error.message", data.Err.Error())
		capturePostgresError(ctx, data.Err, data.CommandTag.String())
	} else {
		span.Status = sentry.SpanStatusOK
	}

	span.Finish()
}

// capturePostgresError captures a PostgreSQL error with context.
func capturePostgresError(ctx context.Context, err error, commandTag string) {
	if err == nil || err == pgx.ErrNoRows {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("db.system", "postgresql")
		scope.SetLevel(sentry.LevelError)
		scope.SetExtra("command_tag", commandTag)
		scope.SetExtra("error_type", fmt.Sprintf("%T", err))

		if pgErr, ok := err.(*pgconn.PgError); ok {
			scope.SetTag("pg.code", pgErr.Code)
			scope.SetTag("pg.severity", pgErr.Severity)
			scope.SetExtra("pg.message", pgErr.Message)
			scope.SetExtra("pg.detail", pgErr.Detail)
			scope.SetExtra("pg.hint", pgErr.Hint)
		}

		hub.CaptureException(err)
	})
}

// addPostgresBreadcrumb adds a breadcrumb for PostgreSQL operations.
func addPostgresBreadcrumb(ctx context.Context, operation string, table string, message string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	data := map[string]interface{}{
		"operation": operation,
	}
	if table != "" {
		data["table"] = table
	}

	hub.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  "postgresql",
		Message:   message,
		Level:     sentry.LevelInfo,
		Data:      data,
		Timestamp: time.Now(),
	}, nil)
}

// parseSQL extracts operation type and table name from SQL.
func parseSQL(sql string) (operation string, table string) {
	sql = strings.TrimSpace(strings.ToUpper(sql))

	switch {
	case strings.HasPrefix(sql, "SELECT"):
		operation = "SELECT"
	case strings.HasPrefix(sql, "INSERT"):
		operation = "INSERT"
	case strings.HasPrefix(sql, "UPDATE"):
		operation = "UPDATE"
	case strings.HasPrefix(sql, "DELETE"):
		operation = "DELETE"
	case strings.HasPrefix(sql, "CREATE"):
		operation = "CREATE"
	case strings.HasPrefix(sql, "BEGIN"):
		operation = "BEGIN"
	case strings.HasPrefix(sql, "COMMIT"):
		operation = "COMMIT"
	case strings.HasPrefix(sql, "ROLLBACK"):
		operation = "ROLLBACK"
	default:
		operation = "OTHER"
	}

	table = extractTableName(sql)
	return
}

// extractTableName attempts to extract the table name from SQL.
func extractTableName(sql string) string {
	sql = strings.ToUpper(sql)

	patterns := []struct {
		prefix string
		offset int
	}{
		{"FROM ", 5},
		{"INTO ", 5},
		{"UPDATE ", 7},
		{"TABLE ", 6},
		{"JOIN ", 5},
	}

	for _, p := range patterns {
		if idx := strings.Index(sql, p.prefix); idx != -1 {
			rest := sql[idx+p.offset:]
			// Extract until space, newline, or parenthesis
			end := strings.IndexAny(rest, " \t\n()")
			if end == -1 {
				end = len(rest)
			}
			if end > 0 {
				return strings.ToLower(strings.TrimSpace(rest[:end]))
			}
		}
	}
	return ""
}

// truncateSQL truncates SQL to a maximum length for display.
func truncateSQL(sql string, maxLen int) string {
	sql = strings.TrimSpace(sql)
	if len(sql) <= maxLen {
		return sql
	}
	return sql[:maxLen] + "..."
}

// RedisSentryHook implements redis.Hook for Sentry error tracking and tracing.
type RedisSentryHook struct {
	serviceName string
}

// NewRedisSentryHook creates a new Redis Sentry hook.
func NewRedisSentryHook(serviceName string) *RedisSentryHook {
	if serviceName == "" {
		serviceName = "redis"
	}
	return &RedisSentryHook{serviceName: serviceName}
}

// DialHook is called when a new connection is established.
func (h *RedisSentryHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		span := sentry.StartSpan(ctx, "db.redis.dial")
		span.Description = fmt.Sprintf("Redis dial %s", addr)
		span.SetTag("db.system", "redis")
		span.SetTag("net.peer.name", addr)
		defer span.Finish()

		conn, err := next(ctx, network, addr)
		if err != nil {
			span.Status = sentry.SpanStatusInternalError
			span.SetTag("error", "true")
			captureRedisError(ctx, err, "dial")
		} else {
			span.Status = sentry.SpanStatusOK
		}
		return conn, err
	}
}

// ProcessHook is called before processing a command.
func (h *RedisSentryHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		cmdName := cmd.Name()

		span := sentry.StartSpan(ctx, "db.redis")
		span.Description = cmdName
		span.SetTag("db.system", "redis")
		span.SetTag("db.operation", cmdName)
		span.SetTag("service", h.serviceName)

		start := time.Now()
		err := next(ctx, cmd)
		duration := time.Since(start)

		span.SetData("db.duration_ms", duration.Milliseconds())

		if err != nil && err != redis.Nil {
			span.Status = sentry.SpanStatusInternalError
			span.SetTag("error", "true")
			span.SetData("error.message", err.Error())
			captureRedisError(ctx, err, cmdName)
		} else {
			span.Status = sentry.SpanStatusOK
		}

		span.Finish()
		return err
	}
}

// ProcessPipelineHook is called before processing a pipeline.
func (h *RedisSentryHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		span := sentry.StartSpan(ctx, "db.redis.pipeline")
		span.Description = fmt.Sprintf("Redis pipeline (%d commands)", len(cmds))
		span.SetTag("db.system", "redis")
		span.SetTag("db.operation", "pipeline")
		span.SetData("db.pipeline_size", len(cmds))

		err := next(ctx, cmds)

		if err != nil && err != redis.Nil {
			span.Status = sentry.SpanStatusInternalError
			span.SetTag("error", "true")
			captureRedisError(ctx, err, "pipeline")
		} else {
			span.Status = sentry.SpanStatusOK
		}

		span.Finish()
		return err
	}
}

// captureRedisError captures a Redis error with context.
func captureRedisError(ctx context.Context, err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("db.system", "redis")
		scope.SetTag("db.operation", operation)
		scope.SetLevel(sentry.LevelError)
		scope.SetExtra("error_type", fmt.Sprintf("%T", err))
		hub.CaptureException(err)
	})
}

// TracedDB wraps a DatabasePool and records an OpenTelemetry span per call.
// Scan-time errors on QueryRow surface outside the span, so that span only
// covers dispatch.
type TracedDB struct {
	pool   DatabasePool
	tracer trace.Tracer
}

// NewTracedDB creates a new traced database connection.
//
// Parameters:
//
//	pool: Database pool.
//
// Returns:
//
//	*TracedDB: Traced database wrapper.
func NewTracedDB(pool DatabasePool) *TracedDB {
	return &TracedDB{
		pool:   pool,
		tracer: telemetry.GetDatabaseTracer(),
	}
}

// Query executes a query that returns rows, tracing the call.
func (db *TracedDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := db.startSpan(ctx, "db.query", sql)
	defer span.End()

	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return rows, err
}

// QueryRow executes a query that is expected to return at most one row, tracing the call.
func (db *TracedDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := db.startSpan(ctx, "db.query_row", sql)
	defer span.End()

	return db.pool.QueryRow(ctx, sql, args...)
}

// Exec executes a query without returning rows, tracing the call.
func (db *TracedDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := db.startSpan(ctx, "db.exec", sql)
	defer span.End()

	tag, err := db.pool.Exec(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return tag, err
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	return tag, nil
}

func (db *TracedDB) startSpan(ctx context.Context, name string, sql string) (context.Context, trace.Span) {
	operation, table := parseSQL(sql)
	ctx, span := db.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operation),
		attribute.String("db.statement", truncateSQL(sql, 200)),
	}
	if table != "" {
		attrs = append(attrs, attribute.String("db.table", table))
	}
	span.SetAttributes(attrs...)
	return ctx, span
}

// RecordDatabaseError records a database error to Sentry with full context.
//
// Parameters:
//
//	ctx: Context.
//	err: Error.
//	operation: Operation name.
func RecordDatabaseError(ctx context.Context, err error, operation string) {
	if err == nil || err == pgx.ErrNoRows {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("db.system", "postgresql")
		scope.SetTag("db.operation", operation)
		scope.SetLevel(sentry.LevelError)
		scope.SetExtra("error_type", fmt.Sprintf("%T", err))

		if pgErr, ok := err.(*pgconn.PgError); ok {
			scope.SetTag("pg.code", pgErr.Code)
			scope.SetTag("pg.severity", pgErr.Severity)
			scope.SetExtra("pg.message", pgErr.Message)
			scope.SetExtra("pg.detail", pgErr.Detail)
			scope.SetExtra("pg.hint", pgErr.Hint)
		}

		hub.CaptureException(err)
	})
}
