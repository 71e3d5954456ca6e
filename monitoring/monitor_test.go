package monitoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarchlab/circuitid/comm"
	"github.com/sarchlab/circuitid/hooking"
	"github.com/sarchlab/circuitid/metrics"
	"github.com/sarchlab/circuitid/nodeset"
	"github.com/sarchlab/circuitid/override"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	handler.ServeHTTP(rec, req)

	return rec
}

var _ = Describe("Monitor", func() {
	var (
		ctx     context.Context
		reg     *nodeset.Registry
		m       *Monitor
		handler http.Handler
		sets    []*nodeset.NodeSet
	)

	register := func(pop string, ids ...uint64) {
		ns, err := nodeset.New(ids...).RegisterGlobal(ctx, reg, pop)
		Expect(err).ToNot(HaveOccurred())
		sets = append(sets, ns)
	}

	BeforeEach(func() {
		ctx = context.Background()
		reg = nodeset.MakeBuilder().
			WithCommunicator(comm.NewSingle()).
			Build()
		m = NewMonitor()
		m.RegisterRegistry(reg)
		handler = m.Router()
		sets = nil
	})

	It("should fall back to a random port below 1000", func() {
		Expect(m.WithPortNumber(80).portNumber).To(Equal(0))
		Expect(m.WithPortNumber(8080).portNumber).To(Equal(8080))
	})

	It("should follow the registry layout", func() {
		register("B", 1, 2, 3)
		register("A", 5, 1200)

		rec := get(handler, "/api/populations")

		Expect(rec.Code).To(Equal(http.StatusOK))
		var layout []map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &layout)).To(Succeed())
		Expect(layout).To(HaveLen(2))
		Expect(layout[0]["population"]).To(Equal("A"))
		Expect(layout[0]["offset"]).To(BeEquivalentTo(0))
		Expect(layout[0]["max_raw_id"]).To(BeEquivalentTo(1200))
		Expect(layout[1]["population"]).To(Equal("B"))
		Expect(layout[1]["offset"]).To(BeEquivalentTo(2000))
	})

	It("should keep a snapshot of the members", func() {
		register("A", 1, 2, 3)
		register("A", 7)

		Expect(m.populations["A"].NodeSets).To(ConsistOf(
			NodeSetDetail{Size: 3, Offset: 0, MaxRawID: 3},
			NodeSetDetail{Size: 1, Offset: 0, MaxRawID: 7},
		))
		Expect(m.populations["A"].MaxRawID).To(Equal(uint64(7)))
	})

	It("should serialize population details", func() {
		register("cortex", 4)

		rec := get(handler, "/api/population/cortex")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("cortex"))
	})

	It("should answer 404 for unknown populations", func() {
		rec := get(handler, "/api/population/nowhere")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(Equal("Population not found"))
	})

	It("should collect diagnostics from the resolver", func() {
		m.Func(hooking.HookCtx{
			Pos: override.HookPosDiagnostic,
			Item: override.Diagnostic{
				Kind:    override.KindZeroWeightUnused,
				Level:   slog.LevelWarn,
				Rule:    "silence",
				Message: "no later rule overrides it",
			},
		})

		rec := get(handler, "/api/diagnostics")

		var rsp []diagnosticRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(Equal([]diagnosticRsp{{
			Kind:    "ZeroWeightUnused",
			Level:   "WARN",
			Rule:    "silence",
			Message: "no later rule overrides it",
		}}))
	})

	It("should serve the report once published", func() {
		Expect(get(handler, "/api/report").Code).To(Equal(http.StatusNotFound))

		base := &override.Rule{Conn: override.Connection{
			Name: "base", Source: "A", Destination: "B", Weight: 0,
		}}
		m.SetReport(&override.Report{
			Rules:      []*override.Rule{base},
			ZeroWeight: []*override.Rule{base},
			Chains:     [][]*override.Rule{{base}},
		})

		rec := get(handler, "/api/report")

		Expect(rec.Code).To(Equal(http.StatusOK))
		var rsp reportRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Rules).To(Equal(1))
		Expect(rsp.ZeroWeight).To(Equal([]string{"base"}))
		Expect(rsp.Chains).To(HaveLen(1))
		Expect(rsp.Chains[0]).To(ContainSubstring("(base)"))
	})

	It("should track progress bars", func() {
		bar := m.CreateProgressBar("node sets", 3)
		bar.IncrementInProgress(2)
		bar.MoveInProgressToFinished(1)

		rec := get(handler, "/api/progress")

		var bars []map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0]["name"]).To(Equal("node sets"))
		Expect(bars[0]["finished"]).To(BeEquivalentTo(1))
		Expect(bars[0]["in_progress"]).To(BeEquivalentTo(1))

		m.CompleteProgressBar(bar)
		Expect(m.progressBars).To(BeEmpty())
	})

	It("should report process resources", func() {
		rec := get(handler, "/api/resource")

		var rsp resourceRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should serve the web page", func() {
		rec := get(handler, "/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
		Expect(rec.Body.String()).To(ContainSubstring(`"diagnostics":`))
		Expect(rec.Body.String()).NotTo(ContainSubstring("Prometheus metrics"))
	})

	It("should not serve unknown pages", func() {
		rec := get(handler, "/index.html")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})
})

var _ = Describe("Monitor with metrics", func() {
	It("should expose the gathered metrics", func() {
		promReg := prometheus.NewRegistry()
		collector := metrics.NewCollector(promReg)

		reg := nodeset.MakeBuilder().
			WithCommunicator(comm.NewSingle()).
			Build()
		reg.AcceptHook(collector)

		m := NewMonitor().WithMetrics(promReg)
		m.RegisterRegistry(reg)

		_, err := nodeset.New(1, 2).RegisterGlobal(context.Background(), reg, "thal")
		Expect(err).ToNot(HaveOccurred())

		rec := get(m.Router(), "/metrics")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(
			ContainSubstring(`circuitid_population_max_raw_id{population="thal"} 2`))

		page := get(m.Router(), "/")
		Expect(page.Body.String()).To(ContainSubstring(`<a href="/metrics">`))
	})
})
