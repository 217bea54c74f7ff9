package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Indicators 汇总治理、多签与凭证模块上报的业务指标。
type Indicators interface {
	VoteCast(voteType string)
	ProposalDecided(outcome string)
	ProposalExecuted(outcome string)
	SignatureCollected()
	MultisigExecuted(outcome string)
	ObserveBroadcastLatency(d time.Duration)
	CredentialIssued(schemaID string)
	ProofVerified(valid bool)
}

// PromIndicators 是 Indicators 的 Prometheus 实现。
type PromIndicators struct {
	votesCast          *prometheus.CounterVec
	proposalsDecided   *prometheus.CounterVec
	proposalsExecuted  *prometheus.CounterVec
	signatures         prometheus.Counter
	multisigExecutions *prometheus.CounterVec
	broadcastLatency   prometheus.Histogram
	credentialsIssued  *prometheus.CounterVec
	proofsVerified     *prometheus.CounterVec
}

var _ Indicators = (*PromIndicators)(nil)

// NewPromIndicators 在给定注册表上创建业务指标。
func NewPromIndicators(reg prometheus.Registerer) *PromIndicators {
	return &PromIndicators{
		votesCast: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "governance",
			Name:      "votes_cast_total",
			Help:      "votes accepted by the voting engine",
		}, []string{"vote_type"}),
		proposalsDecided: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "governance",
			Name:      "proposals_decided_total",
			Help:      "proposals closed by outcome",
		}, []string{"outcome"}),
		proposalsExecuted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "governance",
			Name:      "proposal_executions_total",
			Help:      "proposal execution attempts by outcome",
		}, []string{"outcome"}),
		signatures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "multisig",
			Name:      "signatures_collected_total",
			Help:      "valid co-signatures appended to multisig transactions",
		}),
		multisigExecutions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "multisig",
			Name:      "executions_total",
			Help:      "multisig broadcasts by outcome",
		}, []string{"outcome"}),
		broadcastLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "multisig",
			Name:      "broadcast_latency_seconds",
			Help:      "time spent broadcasting and confirming a multisig transaction",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		credentialsIssued: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "credentials",
			Name:      "issued_total",
			Help:      "credentials issued by schema",
		}, []string{"schema"}),
		proofsVerified: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "credentials",
			Name:      "proofs_verified_total",
			Help:      "proof verifications by result",
		}, []string{"result"}),
	}
}

func (p *PromIndicators) VoteCast(voteType string) { p.votesCast.WithLabelValues(voteType).Inc() }

func (p *PromIndicators) ProposalDecided(outcome string) {
	p.proposalsDecided.WithLabelValues(outcome).Inc()
}

func (p *PromIndicators) ProposalExecuted(outcome string) {
	p.proposalsExecuted.WithLabelValues(outcome).Inc()
}

func (p *PromIndicators) SignatureCollected() { p.signatures.Inc() }

func (p *PromIndicators) MultisigExecuted(outcome string) {
	p.multisigExecutions.WithLabelValues(outcome).Inc()
}

func (p *PromIndicators) ObserveBroadcastLatency(d time.Duration) {
	p.broadcastLatency.Observe(d.Seconds())
}

func (p *PromIndicators) CredentialIssued(schemaID string) {
	p.credentialsIssued.WithLabelValues(schemaID).Inc()
}

func (p *PromIndicators) ProofVerified(valid bool) {
	result := "rejected"
	if valid {
		result = "accepted"
	}
	p.proofsVerified.WithLabelValues(result).Inc()
}

var (
	defaultOnce       sync.Once
	defaultIndicators *PromIndicators
)

// Default 返回注册在共享注册表上的业务指标。
func Default() *PromIndicators {
	defaultOnce.Do(func() {
		defaultIndicators = NewPromIndicators(Registry)
	})
	return defaultIndicators
}

// Nop 是不做任何记录的 Indicators。
type Nop struct{}

func (Nop) VoteCast(string)                       {}
func (Nop) ProposalDecided(string)                {}
func (Nop) ProposalExecuted(string)               {}
func (Nop) SignatureCollected()                   {}
func (Nop) MultisigExecuted(string)               {}
func (Nop) ObserveBroadcastLatency(time.Duration) {}
func (Nop) CredentialIssued(string)               {}
func (Nop) ProofVerified(bool)                    {}
