// Package web renders the dashboard page served by the monitor.
package web

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path"
	"runtime"
	"strings"
)

//go:embed dist/index.html
var dashboardPage string

const devModeEnv = "CIRCUITID_MONITOR_DEV"

// Endpoints tells the dashboard where the monitor API lives.
type Endpoints struct {
	Populations string `json:"populations"`
	Progress    string `json:"progress"`
	Diagnostics string `json:"diagnostics"`
	Report      string `json:"report"`

	// Metrics is left empty when the run exports no metrics.
	Metrics string `json:"metrics,omitempty"`

	// RefreshMillis is the polling period of the page.
	RefreshMillis int `json:"refresh_millis"`
}

type dashboard struct {
	endpoints Endpoints
	page      *template.Template
}

// Dashboard returns the handler that renders the page polling the given
// endpoints. In development mode, the page is re-read from the source tree on
// every request.
func Dashboard(e Endpoints) http.Handler {
	if e.RefreshMillis <= 0 {
		e.RefreshMillis = 2000
	}

	d := &dashboard{endpoints: e}

	if !isDevelopmentMode() {
		d.page = template.Must(template.New("dashboard").Parse(dashboardPage))
	}

	return d
}

func (d *dashboard) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	page := d.page
	if page == nil {
		var err error

		page, err = loadDevPage()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := page.Execute(w, d.endpoints); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func loadDevPage() (*template.Template, error) {
	_, source, _, ok := runtime.Caller(0)
	if !ok {
		return nil, fmt.Errorf("web: cannot locate the dashboard sources")
	}

	return template.ParseFiles(path.Join(path.Dir(source), "dist", "index.html"))
}

// isDevelopmentMode returns true if CIRCUITID_MONITOR_DEV is set to true or 1.
func isDevelopmentMode() bool {
	evValue, exist := os.LookupEnv(devModeEnv)
	if !exist {
		return false
	}

	return strings.ToLower(evValue) == "true" || evValue == "1"
}
