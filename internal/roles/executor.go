// Package roles applies and removes markers on community members. It is the
// only code path that mutates membership.
package roles

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
	"github.com/guilhermelawless/nano-discord-bot/internal/platform/retry"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 8
	defaultRetryDelay  = 5 * time.Second
)

type Options struct {
	// SelfID is the bot's own member ID.
	SelfID string
	// ExemptRoles are role names whose holders are never mutated.
	ExemptRoles []string
	// Override disables every skip rule. Used for testing against a live community.
	Override    bool
	Concurrency int
	RetryDelay  time.Duration
	Clock       clockwork.Clock
}

type Executor struct {
	provider    domain.MembershipProvider
	selfID      string
	exemptRoles []string
	override    bool
	concurrency int
	retry       retry.Policy
}

func NewExecutor(provider domain.MembershipProvider, opts Options) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	policy := retry.Fixed(opts.RetryDelay, opts.Clock)
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		metrics.RoleRemoveRetriesTotal.Inc()
		slog.Warn("Role removal failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	return &Executor{
		provider:    provider,
		selfID:      opts.SelfID,
		exemptRoles: opts.ExemptRoles,
		override:    opts.Override,
		concurrency: opts.Concurrency,
		retry:       policy,
	}
}

// skipReason returns why member must not be touched, or "" if it may be.
func (e *Executor) skipReason(member domain.Member) string {
	if e.override {
		return ""
	}
	switch {
	case member.Identity.MemberID == e.selfID:
		return "self"
	case member.Bot:
		return "bot"
	case member.HasAnyRoleName(e.exemptRoles):
		return "exempt"
	}
	return ""
}

// Apply adds (add=true) or removes marker on every eligible member
// concurrently and waits for all of them. A failure on one member never
// affects the others. Skipped members appear in neither result list; both
// lists keep the input order.
func (e *Executor) Apply(ctx context.Context, marker domain.Marker, members []domain.Member, add bool) domain.MutationResult {
	operation := "remove"
	mutate := e.provider.RemoveMarker
	if add {
		operation = "add"
		mutate = e.provider.AddMarker
	}

	outcomes := make([]error, len(members))
	attempted := make([]bool, len(members))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, member := range members {
		if reason := e.skipReason(member); reason != "" {
			metrics.RoleMutationsSkippedTotal.WithLabelValues(reason).Inc()
			slog.DebugContext(ctx, "Skipping role mutation", "member", member.Identity.MemberID, "reason", reason)
			continue
		}
		attempted[i] = true
		g.Go(func() error {
			outcomes[i] = mutate(ctx, member, marker)
			return nil
		})
	}
	_ = g.Wait()

	var result domain.MutationResult
	for i, member := range members {
		if !attempted[i] {
			continue
		}
		if err := outcomes[i]; err != nil {
			metrics.RoleMutationsTotal.WithLabelValues(operation, "error").Inc()
			slog.WarnContext(ctx, "Role mutation failed",
				"operation", operation,
				"role", marker.Name,
				"member", member.Identity.MemberID,
				"error", err)
			result.Errored = append(result.Errored, member)
			continue
		}
		metrics.RoleMutationsTotal.WithLabelValues(operation, "success").Inc()
		result.Successful = append(result.Successful, member)
	}
	return result
}

// RemoveSafely removes marker from member, retrying transient failures every
// few seconds until it succeeds or ctx is cancelled. A member who is no longer
// in the community counts as success.
func (e *Executor) RemoveSafely(ctx context.Context, member domain.Member, marker domain.Marker) error {
	err := retry.DoVoid(ctx, e.retry, classify, func() error {
		return e.provider.RemoveMarker(ctx, member, marker)
	})
	if err != nil {
		metrics.RoleMutationsTotal.WithLabelValues("remove_safely", "error").Inc()
		return err
	}
	metrics.RoleMutationsTotal.WithLabelValues("remove_safely", "success").Inc()
	return nil
}

func classify(err error) retry.Action {
	if errors.Is(err, domain.ErrMemberAbsent) {
		return retry.Done
	}
	return retry.Retry
}
