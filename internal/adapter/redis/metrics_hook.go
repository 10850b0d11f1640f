package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// MetricsHook implements redis.Hook to collect metrics on all Redis operations.
type MetricsHook struct{}

var _ goredis.Hook = (*MetricsHook)(nil)

func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			metrics.RedisConnectionErrors.Inc()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)

		operation := cmd.Name()
		metrics.RedisOpsTotal.WithLabelValues(operation, status(err)).Inc()
		metrics.RedisOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		return err
	}
}

// ProcessPipelineHook records a pipeline as a single operation.
func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)

		metrics.RedisOpsTotal.WithLabelValues("pipeline", status(err)).Inc()
		metrics.RedisOpDuration.WithLabelValues("pipeline").Observe(time.Since(start).Seconds())
		return err
	}
}

func status(err error) string {
	if err != nil && !errors.Is(err, goredis.Nil) {
		return "error"
	}
	return "success"
}
