package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
)

// QueryHook logs every query at debug level and slow or failed ones at warn.
type QueryHook struct {
	SlowThreshold time.Duration
}

var _ bun.QueryHook = QueryHook{}

func (h QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)

	var e *zerolog.Event
	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		e = log.Ctx(ctx).Warn().Err(event.Err)
	case h.SlowThreshold > 0 && elapsed >= h.SlowThreshold:
		e = log.Ctx(ctx).Warn().Bool("slow", true)
	default:
		e = log.Ctx(ctx).Debug()
	}

	e.Str("operation", event.Operation()).
		Dur("elapsed", elapsed).
		Str("query", truncate(event.Query, 512)).
		Msg("sql query")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
