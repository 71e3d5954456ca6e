// Package metrics exposes the id-space layout and the override diagnostics
// as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sarchlab/circuitid/comm"
	"github.com/sarchlab/circuitid/hooking"
	"github.com/sarchlab/circuitid/nodeset"
	"github.com/sarchlab/circuitid/override"
)

// A Collector is a hook that keeps Prometheus metrics up to date.
type Collector struct {
	populations *prometheus.GaugeVec
	offsets     *prometheus.GaugeVec
	maxRawIDs   *prometheus.GaugeVec
	offsetMoves prometheus.Counter
	diagnostics *prometheus.CounterVec
	collectives prometheus.Histogram
}

// NewCollector registers the metrics in reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		populations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuitid_populations",
			Help: "Populations known to the registry",
		}, []string{"population"}),
		offsets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuitid_population_offset",
			Help: "Offset of each population in the global id space",
		}, []string{"population"}),
		maxRawIDs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuitid_population_max_raw_id",
			Help: "Highest raw id of each population over all ranks",
		}, []string{"population"}),
		offsetMoves: factory.NewCounter(prometheus.CounterOpts{
			Name: "circuitid_offset_moves_total",
			Help: "Times a population moved in the global id space",
		}),
		diagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "circuitid_override_diagnostics_total",
			Help: "Override diagnostics by kind",
		}, []string{"kind"}),
		collectives: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "circuitid_allreduce_duration_seconds",
			Help:    "Time spent in max reductions, waiting for other ranks included",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}

// Func updates the metrics from registry and resolver events.
func (c *Collector) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case nodeset.HookPosPopulationCreated:
		pop := ctx.Item.(*nodeset.Population)
		c.populations.WithLabelValues(pop.Name()).Set(1)
		c.offsets.WithLabelValues(pop.Name()).Set(float64(pop.Offset()))
	case nodeset.HookPosMaxRawIDChanged:
		pop := ctx.Item.(*nodeset.Population)
		c.maxRawIDs.WithLabelValues(pop.Name()).Set(float64(pop.MaxRawID()))
	case nodeset.HookPosOffsetChanged:
		pop := ctx.Item.(*nodeset.Population)
		c.offsets.WithLabelValues(pop.Name()).Set(float64(pop.Offset()))
		c.offsetMoves.Inc()
	case override.HookPosDiagnostic:
		d := ctx.Item.(override.Diagnostic)
		c.diagnostics.WithLabelValues(d.Kind.String()).Inc()
	}
}

// Instrument wraps a communicator to time its reductions.
func (c *Collector) Instrument(inner comm.Communicator) comm.Communicator {
	return &timedCommunicator{Communicator: inner, hist: c.collectives}
}

type timedCommunicator struct {
	comm.Communicator

	hist prometheus.Histogram
}

func (t *timedCommunicator) AllReduceMax(
	ctx context.Context,
	local uint64,
) (uint64, error) {
	start := time.Now()
	defer func() { t.hist.Observe(time.Since(start).Seconds()) }()

	return t.Communicator.AllReduceMax(ctx, local)
}
