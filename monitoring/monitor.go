// Package monitoring serves the state of a run over HTTP so that an operator
// can watch the id-space layout and the override diagnostics while node sets
// are materialized.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/sarchlab/circuitid/hooking"
	"github.com/sarchlab/circuitid/monitoring/web"
	"github.com/sarchlab/circuitid/nodeset"
	"github.com/sarchlab/circuitid/override"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// PopulationDetail is the view of a population served by the monitor.
type PopulationDetail struct {
	Name     string
	Offset   uint64
	MaxRawID uint64
	NodeSets []NodeSetDetail
}

// NodeSetDetail is the view of a live member of a population.
type NodeSetDetail struct {
	Size     int
	Offset   uint64
	MaxRawID uint64
}

// Monitor keeps a snapshot of the registry and of the override diagnostics and
// serves them as a web server. It is a hook: attach it to a nodeset.Registry
// and to an override.Resolver.
type Monitor struct {
	portNumber int
	gatherer   prometheus.Gatherer

	lock        sync.RWMutex
	layout      []nodeset.LayoutEntry
	populations map[string]PopulationDetail
	diagnostics []override.Diagnostic
	report      *override.Report

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		populations: make(map[string]PopulationDetail),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithMetrics serves the metrics of g under /metrics.
func (m *Monitor) WithMetrics(g prometheus.Gatherer) *Monitor {
	m.gatherer = g
	return m
}

// RegisterRegistry attaches the monitor to a registry and takes a first
// snapshot of it.
func (m *Monitor) RegisterRegistry(reg *nodeset.Registry) {
	reg.AcceptHook(m)
	m.snapshot(reg)
}

// SetReport publishes the outcome of a resolution.
func (m *Monitor) SetReport(report *override.Report) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.report = report
}

// Func refreshes the snapshot on registry events and collects diagnostics as
// the resolver emits them.
func (m *Monitor) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case nodeset.HookPosPopulationCreated,
		nodeset.HookPosMaxRawIDChanged,
		nodeset.HookPosOffsetChanged:
		if reg, ok := ctx.Domain.(*nodeset.Registry); ok {
			m.snapshot(reg)
		}
	case override.HookPosDiagnostic:
		m.lock.Lock()
		m.diagnostics = append(m.diagnostics, ctx.Item.(override.Diagnostic))
		m.lock.Unlock()
	}
}

// snapshot runs on the goroutine that mutates the registry, so handlers never
// touch the registry itself.
func (m *Monitor) snapshot(reg *nodeset.Registry) {
	layout := reg.Layout()
	populations := make(map[string]PopulationDetail, len(layout))

	for _, pop := range reg.Populations() {
		detail := PopulationDetail{
			Name:     pop.Name(),
			Offset:   pop.Offset(),
			MaxRawID: pop.MaxRawID(),
		}

		for _, ns := range pop.NodeSets() {
			detail.NodeSets = append(detail.NodeSets, NodeSetDetail{
				Size:     ns.Len(),
				Offset:   ns.Offset(),
				MaxRawID: ns.MaxRawID(),
			})
		}

		populations[pop.Name()] = detail
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.layout = layout
	m.populations = populations
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler serving the monitor API and web page.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/populations", m.listPopulations)
	r.HandleFunc("/api/population/{name}", m.populationDetails)
	r.HandleFunc("/api/population/{name}/{field}", m.populationField)
	r.HandleFunc("/api/diagnostics", m.listDiagnostics)
	r.HandleFunc("/api/report", m.reportSummary)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	endpoints := web.Endpoints{
		Populations: "/api/populations",
		Progress:    "/api/progress",
		Diagnostics: "/api/diagnostics",
		Report:      "/api/report",
	}

	if m.gatherer != nil {
		endpoints.Metrics = "/metrics"
		r.Handle(endpoints.Metrics,
			promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	}

	r.Handle("/", web.Dashboard(endpoints))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("monitoring: listen on %s: %w", actualPort, err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring circuit with %s\n", url)

	router := m.Router()
	go func() {
		err := http.Serve(listener, router)
		dieOnErr(err)
	}()

	return url, nil
}

func (m *Monitor) listPopulations(w http.ResponseWriter, _ *http.Request) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	type entry struct {
		Population string `json:"population"`
		Offset     uint64 `json:"offset"`
		MaxRawID   uint64 `json:"max_raw_id"`
	}

	entries := make([]entry, 0, len(m.layout))
	for _, e := range m.layout {
		entries = append(entries, entry{
			Population: e.Population,
			Offset:     e.Offset,
			MaxRawID:   e.MaxRawID,
		})
	}

	writeJSON(w, entries)
}

func (m *Monitor) populationDetails(w http.ResponseWriter, r *http.Request) {
	detail, found := m.findPopulationOr404(w, mux.Vars(r)["name"])
	if !found {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(detail)
	serializer.SetMaxDepth(2)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) populationField(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	detail, found := m.findPopulationOr404(w, vars["name"])
	if !found {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(detail)
	serializer.SetMaxDepth(1)

	err := serializer.SetEntryPoint(strings.Split(vars["field"], "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findPopulationOr404(
	w http.ResponseWriter,
	name string,
) (*PopulationDetail, bool) {
	m.lock.RLock()
	detail, found := m.populations[name]
	m.lock.RUnlock()

	if !found {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Population not found"))
		dieOnErr(err)

		return nil, false
	}

	return &detail, true
}

type diagnosticRsp struct {
	Kind    string `json:"kind"`
	Level   string `json:"level"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func toDiagnosticRsp(diagnostics []override.Diagnostic) []diagnosticRsp {
	rsp := make([]diagnosticRsp, 0, len(diagnostics))
	for _, d := range diagnostics {
		rsp = append(rsp, diagnosticRsp{
			Kind:    d.Kind.String(),
			Level:   d.Level.String(),
			Rule:    d.Rule,
			Message: d.Message,
		})
	}

	return rsp
}

func (m *Monitor) listDiagnostics(w http.ResponseWriter, _ *http.Request) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	writeJSON(w, toDiagnosticRsp(m.diagnostics))
}

type reportRsp struct {
	Rules       int             `json:"rules"`
	ZeroWeight  []string        `json:"zero_weight"`
	Chains      []string        `json:"chains"`
	Diagnostics []diagnosticRsp `json:"diagnostics"`
}

func (m *Monitor) reportSummary(w http.ResponseWriter, _ *http.Request) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if m.report == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("No report yet"))
		dieOnErr(err)

		return
	}

	rsp := reportRsp{
		Rules:       len(m.report.Rules),
		ZeroWeight:  []string{},
		Chains:      []string{},
		Diagnostics: toDiagnosticRsp(m.report.Diagnostics),
	}

	for _, rule := range m.report.ZeroWeight {
		rsp.ZeroWeight = append(rsp.ZeroWeight, rule.Name())
	}

	for _, chain := range m.report.Chains {
		rsp.Chains = append(rsp.Chains, override.FormatChain(chain))
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
