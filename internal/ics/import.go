package ics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"calendarex/internal/config"
	appLog "calendarex/internal/log"
	"calendarex/internal/model"
)

// Store receives imported events. ReplaceFolder swaps everything below
// folder for items and reports whether anything changed.
type Store interface {
	ReplaceFolder(folder string, items []model.Content) bool
}

// Result describes the import of one source.
type Result struct {
	SourceID string `json:"source_id"`
	Folder   string `json:"folder"`
	Events   int    `json:"events"`
	Changed  bool   `json:"changed"`
	Cached   bool   `json:"cached"`
	Error    string `json:"error,omitempty"`
}

// Importer loads configured sources into repository folders.
type Importer struct {
	fetcher *Fetcher
	loc     *time.Location
	months  int
	now     func() time.Time
}

// NewImporter creates an importer expanding recurrences months around now
// and reading floating times in loc.
func NewImporter(fetcher *Fetcher, loc *time.Location, months int) *Importer {
	if loc == nil {
		loc = time.Local
	}
	return &Importer{fetcher: fetcher, loc: loc, months: months, now: time.Now}
}

// SetClock overrides the clock of the expansion window.
func (im *Importer) SetClock(now func() time.Time) {
	im.now = now
}

// Refresh imports every source. A failing source keeps its previous folder
// contents; the errors are joined.
func (im *Importer) Refresh(ctx context.Context, store Store, sources []config.SourceConfig) ([]Result, error) {
	results := make([]Result, 0, len(sources))
	var errs []error
	for _, src := range sources {
		res, err := im.RefreshOne(ctx, store, src)
		if err != nil {
			appLog.Error("source refresh failed", err, "id", src.ID)
			res.Error = err.Error()
			errs = append(errs, fmt.Errorf("source %s: %w", src.ID, err))
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// RefreshOne imports a single source.
func (im *Importer) RefreshOne(ctx context.Context, store Store, src config.SourceConfig) (Result, error) {
	res := Result{SourceID: src.ID, Folder: src.Folder}
	w := WindowAround(im.now(), im.months)

	var events []Event
	switch src.Type {
	case config.SourceCalDAV:
		dav := CalDAVSource{
			ID:       src.ID,
			Endpoint: src.URL,
			Username: src.Username,
			Password: src.Password,
			Calendar: src.CalendarPath,
		}
		evs, err := dav.Events(ctx, w, im.loc)
		if err != nil {
			return res, err
		}
		events = evs
	default:
		payload, err := im.fetcher.Fetch(ctx, Feed{ID: src.ID, URL: src.URL})
		if err != nil {
			return res, err
		}
		res.Cached = payload.Cached
		evs, err := Parse(src.ID, payload.Body, im.loc)
		if err != nil {
			return res, err
		}
		events = evs
	}

	occs, err := Expand(events, w)
	if err != nil {
		return res, err
	}
	items := Contents(src, occs)
	res.Events = len(items)
	res.Changed = store.ReplaceFolder(src.Folder, items)
	appLog.Info("source refreshed", "id", src.ID, "folder", src.Folder, "events", res.Events, "changed", res.Changed)
	return res, nil
}

// Contents converts occurrences into repository events below src.Folder.
// Instances of a series get the start time appended to their id.
func Contents(src config.SourceConfig, occs []Occurrence) []model.Content {
	folder := strings.TrimRight(src.Folder, "/")
	seen := make(map[string]bool, len(occs))
	out := make([]model.Content, 0, len(occs))
	for _, o := range occs {
		id := slug(o.UID)
		if o.Recurring {
			id += "-" + o.Start.UTC().Format("20060102t150405")
		}
		p := folder + "/" + id
		if seen[p] {
			appLog.Debug("duplicate occurrence", "path", p)
			continue
		}
		seen[p] = true

		out = append(out, model.Content{
			Path:        p,
			PortalType:  model.TypeEvent,
			Title:       o.Summary,
			Subject:     mergeSubjects(src.Subject, o.Categories),
			ReviewState: src.ReviewState,
			Start:       o.Start,
			End:         o.End,
		})
	}
	return out
}

func mergeSubjects(a, b []string) []string {
	if len(a)+len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// slug turns a UID into a path segment.
func slug(uid string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(uid) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), "-.")
	if s == "" {
		return "event"
	}
	return s
}

// Sync binds an importer to a store and the configured sources. Runs are
// serialized.
type Sync struct {
	Importer *Importer
	Store    Store
	Sources  []config.SourceConfig

	mu sync.Mutex
}

// Run refreshes every source.
func (s *Sync) Run(ctx context.Context) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Importer.Refresh(ctx, s.Store, s.Sources)
}
