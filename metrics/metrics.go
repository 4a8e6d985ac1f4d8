package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics is incremented by the pipeline as operations move through
// their lifecycle.
type PipelineMetrics interface {
	IncOpsBuilt(mode string)
	IncOpsSubmitted()
	IncOpsConfirmed()
	IncOpsReverted()
	IncOpsFailed(stage string)
	IncPaymasterDeclined()
	IncWalletsDeployed()
}

// WalletMetrics holds the instrument set; increment through the methods below.
type WalletMetrics struct {
	numOpsBuilt         *prometheus.CounterVec
	numOpsSubmitted     prometheus.Counter
	numOpsConfirmed     prometheus.Counter
	numOpsReverted      prometheus.Counter
	numOpsFailed        *prometheus.CounterVec
	numPaymasterDecline prometheus.Counter
	numWalletsDeployed  prometheus.Counter
}

const lwNamespace = "lw"

func NewWalletMetrics(reg prometheus.Registerer) *WalletMetrics {
	return &WalletMetrics{
		numOpsBuilt: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: lwNamespace,
				Name:      "num_userops_built_total",
				Help:      "The number of UserOperations fully built, by fee mode",
			}, []string{"mode"}),

		numOpsSubmitted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: lwNamespace,
				Name:      "num_userops_submitted_total",
				Help:      "The number of UserOperations acknowledged by a bundler. If this diverges from built, submissions are being rejected",
			}),

		numOpsConfirmed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: lwNamespace,
				Name:      "num_userops_confirmed_total",
				Help:      "The number of UserOperations included on-chain with success status",
			}),

		numOpsReverted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: lwNamespace,
				Name:      "num_userops_reverted_total",
				Help:      "The number of UserOperations included on-chain but reverted during execution",
			}),

		numOpsFailed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: lwNamespace,
				Name:      "num_userops_failed_total",
				Help:      "The number of pipeline runs ending in a terminal failure, by stage",
			}, []string{"stage"}),

		numPaymasterDecline: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: lwNamespace,
				Name:      "num_paymaster_declines_total",
				Help:      "The number of sponsorship requests the paymaster service declined",
			}),

		numWalletsDeployed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: lwNamespace,
				Name:      "num_wallets_deployed_total",
				Help:      "The number of counterfactual wallets observed transitioning to deployed",
			}),
	}
}

func (m *WalletMetrics) IncOpsBuilt(mode string) {
	m.numOpsBuilt.WithLabelValues(mode).Inc()
}

func (m *WalletMetrics) IncOpsSubmitted() {
	m.numOpsSubmitted.Inc()
}

func (m *WalletMetrics) IncOpsConfirmed() {
	m.numOpsConfirmed.Inc()
}

func (m *WalletMetrics) IncOpsReverted() {
	m.numOpsReverted.Inc()
}

func (m *WalletMetrics) IncOpsFailed(stage string) {
	m.numOpsFailed.WithLabelValues(stage).Inc()
}

func (m *WalletMetrics) IncPaymasterDeclined() {
	m.numPaymasterDecline.Inc()
}

func (m *WalletMetrics) IncWalletsDeployed() {
	m.numWalletsDeployed.Inc()
}

// NoopMetrics satisfies PipelineMetrics when no registry is wired, e.g. in
// one-shot CLI runs.
type NoopMetrics struct{}

func (NoopMetrics) IncOpsBuilt(string)    {}
func (NoopMetrics) IncOpsSubmitted()      {}
func (NoopMetrics) IncOpsConfirmed()      {}
func (NoopMetrics) IncOpsReverted()       {}
func (NoopMetrics) IncOpsFailed(string)   {}
func (NoopMetrics) IncPaymasterDeclined() {}
func (NoopMetrics) IncWalletsDeployed()   {}
