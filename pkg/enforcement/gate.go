package enforcement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"costwise-hq/costwise/pkg/ledger"
	"costwise-hq/costwise/pkg/pricing"
	"costwise-hq/costwise/pkg/telemetry/metrics"
)

// Gate is the synchronous pre-flight admission check.
//
// Check runs inline in the request path before any provider call. It
// reads spend only through the ledger's TTL cache, holds no long-lived
// locks, performs no mutation, and bounds its own latency with a
// timeout independent of the provider's.
//
// The gate is explicitly best-effort: cached spend can lag real spend
// by up to the cache TTL, so several concurrent requests can each see
// pre-update totals and all be admitted, transiently exceeding a limit.
// That trade favors latency over strict admission correctness and is
// documented, declared behavior.
type Gate struct {
	ledger    *ledger.Ledger
	resolver  *pricing.Resolver
	estimator *Estimator
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Config contains gate configuration.
type Config struct {
	// CheckTimeout bounds the latency of one admission check.
	// Default: 50ms.
	CheckTimeout time.Duration

	// FailClosed denies requests whose spend data is unreachable.
	// The default is fail-open: admit with a warning, since pricing
	// infrastructure unavailability should not halt all traffic.
	FailClosed bool
}

// NewGate creates an admission gate.
func NewGate(l *ledger.Ledger, r *pricing.Resolver, e *Estimator, cfg Config) *Gate {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 50 * time.Millisecond
	}
	return &Gate{
		ledger:    l,
		resolver:  r,
		estimator: e,
		cfg:       cfg,
		logger:    slog.Default().With("component", "enforcement.gate"),
		now:       time.Now,
	}
}

// SetMetrics installs pipeline metrics. Call before serving checks.
func (g *Gate) SetMetrics(m *metrics.Metrics) {
	g.metrics = m
}

// Check admits or denies a request against every limit in its scope
// chain.
//
// The walk is deterministic, first-violation-wins: scopes narrowest
// first, and within each scope windows narrowest first (per-request,
// daily, monthly). Per-request limits compare the estimate alone;
// accrual windows compare cached spend plus the estimate.
func (g *Gate) Check(ctx context.Context, req CheckRequest) Decision {
	start := g.now()
	decision := g.check(ctx, req)

	if g.metrics != nil {
		g.metrics.RecordCheck(decision.Allowed, g.now().Sub(start).Seconds())
		if !decision.Allowed {
			g.metrics.RecordDenial(string(decision.Scope.Kind), string(decision.Window))
		}
		if decision.FailedOpen {
			g.metrics.RecordFailOpen()
		}
	}

	return decision
}

func (g *Gate) check(ctx context.Context, req CheckRequest) Decision {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CheckTimeout)
	defer cancel()

	entry, _ := g.resolver.Resolve(req.Provider, req.Model)
	outputEstimate := g.estimator.EstimateOutput(req.Provider, req.Model, req.MaxOutputUnits)
	estimatedCost := pricing.Cost(entry, req.PromptUnits, outputEstimate)

	decision := Decision{
		Allowed:       true,
		EstimatedCost: estimatedCost,
	}

	for _, s := range req.Chain {
		for _, w := range ledger.Windows {
			limit, ok := g.ledger.Limit(s, w)
			if !ok {
				continue
			}

			if w == ledger.WindowPerRequest {
				if estimatedCost > limit {
					return Decision{
						Allowed:       false,
						Scope:         s,
						Window:        w,
						Reason:        fmt.Sprintf("estimated cost %.4f exceeds per-request limit %.4f", estimatedCost, limit),
						EstimatedCost: estimatedCost,
						Limit:         limit,
					}
				}
				continue
			}

			spend, err := g.ledger.CachedSpend(ctx, s, w)
			if err != nil {
				if g.cfg.FailClosed {
					return Decision{
						Allowed:       false,
						Scope:         s,
						Window:        w,
						Reason:        "spend data unavailable (fail-closed policy)",
						EstimatedCost: estimatedCost,
						Limit:         limit,
					}
				}
				g.logger.Warn("spend data unavailable, admitting under fail-open policy",
					"scope", s.Key(),
					"window", w,
					"error", err,
				)
				decision.FailedOpen = true
				continue
			}

			if spend+estimatedCost > limit {
				return Decision{
					Allowed:       false,
					Scope:         s,
					Window:        w,
					Reason:        fmt.Sprintf("spend %.4f + estimate %.4f exceeds %s limit %.4f", spend, estimatedCost, w, limit),
					EstimatedCost: estimatedCost,
					CurrentSpend:  spend,
					Limit:         limit,
				}
			}
		}
	}

	return decision
}

// Estimator exposes the gate's estimator so the cost recorder can feed
// observed output sizes back into it.
func (g *Gate) Estimator() *Estimator {
	return g.estimator
}
