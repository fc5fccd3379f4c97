package obs

import "github.com/prometheus/client_golang/prometheus"

// Domain counters for the token registry and scope resolver.
var (
	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_tokens_issued_total",
			Help: "Tokens issued, labelled by scoping mode.",
		},
		[]string{"mode"}, // "tenant" or "unscoped"
	)

	tokensRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_tokens_revoked_total",
		Help: "Tokens revoked.",
	})

	tokenResolves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_token_resolves_total",
			Help: "Token resolution attempts by outcome.",
		},
		[]string{"outcome"}, // "ok", "not_found", "error"
	)

	batchItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_batch_items_total",
			Help: "Batch issuance item outcomes.",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	allowSetCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_allowset_cache_total",
			Help: "Allow-set cache lookups by outcome.",
		},
		[]string{"outcome"}, // "hit", "miss", "write_error"
	)
)

// CountTokenIssued records one issued token. mode is "tenant" or "unscoped".
func CountTokenIssued(mode string) { tokensIssued.WithLabelValues(mode).Inc() }

// CountTokenRevoked records one revocation.
func CountTokenRevoked() { tokensRevoked.Inc() }

// CountTokenResolve records a resolution attempt.
func CountTokenResolve(outcome string) { tokenResolves.WithLabelValues(outcome).Inc() }

// CountBatchItem records one batch item outcome.
func CountBatchItem(outcome string) { batchItems.WithLabelValues(outcome).Inc() }

// CountAllowSetCache records a cache lookup outcome.
func CountAllowSetCache(outcome string) { allowSetCache.WithLabelValues(outcome).Inc() }
