package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
	"github.com/jackc/pgx/v5"
)

// MetricsTracer implements pgx.QueryTracer to collect database metrics.
type MetricsTracer struct{}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

type queryContextKey struct{}

type queryContext struct {
	startTime time.Time
	queryName string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		startTime: time.Now(),
		queryName: queryName(data.SQL),
	})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	metrics.DBQueryDuration.WithLabelValues("postgres", qctx.queryName).Observe(time.Since(qctx.startTime).Seconds())
	if data.Err != nil {
		metrics.DBErrorsTotal.WithLabelValues("postgres", qctx.queryName).Inc()
	}
}

// queryName reduces a statement to its leading keyword to keep label
// cardinality low.
func queryName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToUpper(fields[0])
}
