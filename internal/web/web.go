package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"calendarex/internal/calendar"
	"calendarex/internal/config"
	"calendarex/internal/ics"
	appLog "calendarex/internal/log"
	"calendarex/internal/model"
	"calendarex/internal/portlet"
	"calendarex/internal/query"
)

// Refresher re-imports the configured calendar sources.
type Refresher interface {
	Run(ctx context.Context) ([]ics.Result, error)
}

// Server exposes rendered portlets, their month grids and source refresh
// over HTTP.
type Server struct {
	cfg      *config.Config
	renderer *portlet.Renderer
	sources  Refresher
	mux      *http.ServeMux
}

// NewServer constructs a new Server. sources may be nil when no source is
// configured.
func NewServer(cfg *config.Config, renderer *portlet.Renderer, sources Refresher) *Server {
	s := &Server{
		cfg:      cfg,
		renderer: renderer,
		sources:  sources,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials disable it.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calendarex", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /portlets/{id}", s.handlePortlet)
	s.mux.HandleFunc("GET /portlets/{id}/preview.png", s.handlePreview)
	s.mux.HandleFunc("GET /api/portlets", s.handlePortlets)
	s.mux.HandleFunc("GET /api/portlets/{id}/calendar", s.handleCalendar)
	s.mux.HandleFunc("POST /api/sources/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// lookup resolves the {id} path value and the year/month parameters,
// writing the error response itself when they are invalid.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (config.PortletConfig, query.Month, bool) {
	p, err := s.cfg.Portlet(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return p, query.Month{}, false
	}
	m, err := s.month(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return p, query.Month{}, false
	}
	return p, m, true
}

// month reads the year and month parameters; missing values default to the
// current month.
func (s *Server) month(r *http.Request) (query.Month, error) {
	cur := s.renderer.CurrentMonth()
	q := r.URL.Query()
	year, err := parseIntDefault(q.Get("year"), cur.Year)
	if err != nil || year < 1 || year > 9999 {
		return query.Month{}, errors.New("invalid year")
	}
	month, err := parseIntDefault(q.Get("month"), int(cur.Month))
	if err != nil || month < 1 || month > 12 {
		return query.Month{}, errors.New("invalid month")
	}
	return s.renderer.Month(year, time.Month(month)), nil
}

// handlePortlet serves the compressed portlet HTML.
//
// GET /portlets/{id}?year=2024&month=11
func (s *Server) handlePortlet(w http.ResponseWriter, r *http.Request) {
	p, m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	html, err := s.renderer.Render(r.Context(), p, m)
	if err != nil {
		appLog.Error("portlet render failed", err, "portlet", p.ID)
		writeError(w, http.StatusInternalServerError, "failed to render portlet")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

// handlePreview serves the last PNG snapshot of a portlet.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, err := s.cfg.Portlet(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	http.ServeFile(w, r, filepath.Join(s.cfg.SnapshotDir, p.ID+".png"))
}

type portletDTO struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Name    string `json:"name"`
	Root    string `json:"root"`
	NoCache bool   `json:"no_cache"`
}

func (s *Server) handlePortlets(w http.ResponseWriter, _ *http.Request) {
	out := make([]portletDTO, 0, len(s.cfg.Portlets))
	for _, p := range s.cfg.Portlets {
		out = append(out, portletDTO{
			ID:      p.ID,
			Title:   p.Title(),
			Name:    p.Name,
			Root:    s.renderer.Root(p),
			NoCache: p.NoCache,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// calendarResponse is the JSON response shape for the calendar endpoint.
type calendarResponse struct {
	Portlet         string     `json:"portlet"`
	Title           string     `json:"title,omitempty"`
	Year            int        `json:"year"`
	Month           int        `json:"month"`
	Root            string     `json:"root"`
	RootFound       bool       `json:"root_found"`
	SavedSearch     string     `json:"saved_search,omitempty"`
	Weekdays        []string   `json:"weekdays"`
	Weeks           model.Grid `json:"weeks"`
	Events          int        `json:"events"`
	ReviewStates    string     `json:"review_state_string"`
	CollectionQuery string     `json:"collection_query,omitempty"`
	Previous        string     `json:"previous"`
	Next            string     `json:"next"`
}

// handleCalendar returns the decorated month grid.
//
// GET /api/portlets/{id}/calendar?year=2024&month=11
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	p, m, ok := s.lookup(w, r)
	if !ok {
		return
	}
	q, err := s.renderer.Resolve(r.Context(), p, m)
	if err != nil {
		appLog.Error("calendar query failed", err, "portlet", p.ID)
		writeError(w, http.StatusInternalServerError, "failed to query events")
		return
	}

	resp := calendarResponse{
		Portlet:      p.ID,
		Year:         m.Year,
		Month:        int(m.Month),
		Root:         q.Root,
		RootFound:    q.RootFound,
		Weeks:        s.renderer.Grid(q),
		Events:       len(q.Records),
		ReviewStates: s.renderer.ReviewStateString(p),
		Previous:     portlet.MonthURL(p.ID, m.Prev()),
		Next:         portlet.MonthURL(p.ID, m.Next()),
	}
	if p.HasName() {
		resp.Title = p.Name
	}
	for _, wd := range calendar.WeekdayHeaders(calendar.WeekdayFromString(s.cfg.WeekStart)) {
		resp.Weekdays = append(resp.Weekdays, wd.String())
	}
	if q.Saved != nil {
		resp.SavedSearch = q.Saved.Kind()
		resp.CollectionQuery = portlet.CollectionQueryString(q)
	}
	writeJSON(w, http.StatusOK, resp)
}

type refreshResponse struct {
	Results []ics.Result `json:"results"`
	Error   string       `json:"error,omitempty"`
}

// handleRefresh re-imports all sources. Partial failures are reported with
// status 502 alongside the per-source results.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.sources == nil {
		writeJSON(w, http.StatusOK, refreshResponse{Results: []ics.Result{}})
		return
	}
	results, err := s.sources.Run(r.Context())
	if err != nil {
		appLog.Error("manual source refresh failed", err)
		writeJSON(w, http.StatusBadGateway, refreshResponse{Results: results, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Results: results})
}

func parseIntDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
