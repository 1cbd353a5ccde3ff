package capture

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/l508/internal/httputil"
	"github.com/banshee-data/l508/internal/monitoring"
)

var threatNames = map[int]string{
	1: "approaching",
	2: "fast approach",
	3: "reserved",
}

// AttachAdminRoutes attaches capture debugging endpoints to mux under
// /debug/capture/. These routes are accessible only over localhost/via
// Tailscale and are not publicly accessible.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// create a tailSQL instance and point it to the capture DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/capture/tailsql/",
	})
	if err != nil {
		monitoring.Logf("capture: failed to create tailsql server: %v", err)
	} else {
		tsql.SetDB("sqlite://"+s.path, s.db, &tailsql.DBOptions{
			Label: "L508 capture",
		})
		debug.Handle("capture/tailsql/", "SQL over captured frames", tsql.NewMux())
	}

	debug.HandleFunc("capture/sessions", "Captured sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := s.Sessions(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, sessions)
	})

	debug.HandleFunc("capture/summary", "Target statistics for the latest session", func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionParam(w, r)
		if !ok {
			return
		}
		sum, err := s.Summarize(r.Context(), id)
		if errors.Is(err, ErrNoSessions) {
			httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, sum)
	})

	debug.HandleFunc("capture/chart", "Target range over time for the latest session", s.handleRangeChart)
}

// sessionParam returns the optional session query parameter. A value that
// is not a session UUID is answered with 400.
func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("session")
	if id == "" {
		return "", true
	}
	if _, err := uuid.Parse(id); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid session %q", id))
		return "", false
	}
	return id, true
}

// handleRangeChart renders a scatter of target range against seconds since
// the session's first target, one series per threat level.
func (s *Store) handleRangeChart(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	sessionID, err := s.resolveSession(r.Context(), id)
	if errors.Is(err, ErrNoSessions) {
		httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	points, err := s.Targets(r.Context(), sessionID)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	series := make(map[int][]opts.ScatterData)
	for _, p := range points {
		t := p.Received.Sub(points[0].Received).Seconds()
		series[p.ThreatLevel] = append(series[p.ThreatLevel], opts.ScatterData{
			Value: []interface{}{t, p.Range, p.TargetID},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "L508 capture", Theme: "dark", Width: "1000px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Target range", Subtitle: fmt.Sprintf("session=%s targets=%d", sessionID, len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "range (m)", NameLocation: "middle", NameGap: 30, Min: 0}),
	)
	for level := 1; level <= 3; level++ {
		if data := series[level]; len(data) > 0 {
			scatter.AddSeries(threatNames[level], data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
		}
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
