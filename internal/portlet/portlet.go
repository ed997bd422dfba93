package portlet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"

	"calendarex/internal/calendar"
	"calendarex/internal/config"
	appLog "calendarex/internal/log"
	"calendarex/internal/model"
	"calendarex/internal/query"
	"calendarex/internal/repository"
)

// Repository is the content store the renderer reads from.
type Repository interface {
	calendar.Searcher
	query.SavedQueryLoader
	Resolve(ctx context.Context, p string) (model.Content, error)
	UniqueValuesFor(index string) []string
}

// Settings are the site-wide values every portlet render shares.
type Settings struct {
	// NavigationRoot is the repository path portlet roots are appended to.
	NavigationRoot string
	Location       *time.Location
	FirstWeekday   time.Weekday
	Locale         language.Tag
	DateLayout     string
	CalendarTypes  []string
	CalendarStates []string
}

// SettingsFromConfig derives render settings from the application config.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Settings{}, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		appLog.Warn("invalid locale, using und", "locale", cfg.Locale, "err", err)
		tag = language.Und
	}
	return Settings{
		NavigationRoot: cfg.NavigationRoot,
		Location:       loc,
		FirstWeekday:   calendar.WeekdayFromString(cfg.WeekStart),
		Locale:         tag,
		DateLayout:     cfg.DateFormat,
		CalendarTypes:  cfg.CalendarTypes,
		CalendarStates: cfg.CalendarStates,
	}, nil
}

// Renderer computes month grids and HTML for configured portlets.
type Renderer struct {
	repo     Repository
	settings Settings
	cache    *Cache
	now      func() time.Time
	tmpl     *pageTemplate
}

// NewRenderer constructs a renderer. cache may be nil to disable caching.
func NewRenderer(repo Repository, settings Settings, cache *Cache) (*Renderer, error) {
	if settings.Location == nil {
		settings.Location = time.Local
	}
	if settings.DateLayout == "" {
		settings.DateLayout = calendar.DefaultDateLayout
	}
	tmpl, err := newPageTemplate()
	if err != nil {
		return nil, err
	}
	return &Renderer{
		repo:     repo,
		settings: settings,
		cache:    cache,
		now:      time.Now,
		tmpl:     tmpl,
	}, nil
}

// SetClock overrides the clock used for the default month and is_today.
func (r *Renderer) SetClock(now func() time.Time) {
	r.now = now
}

// Cache returns the result cache, which may be nil.
func (r *Renderer) Cache() *Cache {
	return r.cache
}

// CurrentMonth is the month containing "now" in the configured location.
func (r *Renderer) CurrentMonth() query.Month {
	return query.MonthOf(r.now().In(r.settings.Location))
}

// Month builds a month in the configured location.
func (r *Renderer) Month(year int, month time.Month) query.Month {
	return query.NewMonth(year, month, r.settings.Location)
}

// Root returns the search root of p: the navigation root plus p.Root.
func (r *Renderer) Root(p config.PortletConfig) string {
	nav := strings.TrimRight(r.settings.NavigationRoot, "/")
	if p.Root == "" {
		return repository.CleanPath(nav)
	}
	return repository.CleanPath(nav + "/" + strings.TrimLeft(p.Root, "/"))
}

// Query is the resolved search of one portlet render.
type Query struct {
	Portlet config.PortletConfig
	Month   query.Month
	Root    string

	// RootFound is false when Root did not resolve; the grid is empty.
	RootFound   bool
	RootContent model.Content
	// Saved is set when the root is a topic or collection.
	Saved query.SavedQuery

	Options query.Criteria
	Records []model.Record
}

// Resolve resolves the portlet root, builds the search options and runs
// the search.
func (r *Renderer) Resolve(ctx context.Context, p config.PortletConfig, m query.Month) (*Query, error) {
	q := &Query{Portlet: p, Month: m, Root: r.Root(p)}

	root, err := r.repo.Resolve(ctx, q.Root)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			appLog.Debug("portlet root not found", "portlet", p.ID, "root", q.Root)
			return q, nil
		}
		return nil, fmt.Errorf("resolve root %s: %w", q.Root, err)
	}
	q.RootFound = true
	q.RootContent = root

	var saved query.Criteria
	if root.PortalType == model.TypeTopic || root.PortalType == model.TypeCollection {
		sq, err := r.repo.LoadSavedQuery(ctx, q.Root)
		if err != nil {
			return nil, fmt.Errorf("load saved search %s: %w", q.Root, err)
		}
		q.Saved = sq
		saved = sq.Criteria(m, r.now())
	}

	q.Options = query.DefineSearchOptions(query.Options{
		Root:            q.Root,
		Keywords:        p.Keywords,
		ReviewStates:    p.ReviewState,
		AllReviewStates: r.repo.UniqueValuesFor("review_state"),
		Saved:           saved,
		Month:           m,
	})

	args := calendar.QueryArgs(r.request(q))
	q.Records, err = calendar.Search(ctx, r.repo, args, p.Exclude)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *Renderer) request(q *Query) calendar.Request {
	return calendar.Request{
		Options:        q.Options,
		Exclude:        q.Portlet.Exclude,
		Month:          q.Month,
		FirstWeekday:   r.settings.FirstWeekday,
		CalendarTypes:  r.settings.CalendarTypes,
		CalendarStates: r.settings.CalendarStates,
	}
}

// Grid returns the decorated month grid of q.
func (r *Renderer) Grid(q *Query) model.Grid {
	var grid model.Grid
	if q.RootFound {
		grid = calendar.BuildGrid(calendar.Aggregate(q.Records, q.Month), q.Month, r.settings.FirstWeekday)
	} else {
		grid = calendar.EmptyGrid(q.Month, r.settings.FirstWeekday)
	}
	calendar.Decorate(grid, q.Month, r.now(), r.settings.DateLayout)
	return grid
}

// MonthGrid resolves p for month m and returns the decorated grid.
func (r *Renderer) MonthGrid(ctx context.Context, p config.PortletConfig, m query.Month) (model.Grid, error) {
	q, err := r.Resolve(ctx, p, m)
	if err != nil {
		return nil, err
	}
	return r.Grid(q), nil
}

// CacheKey returns the render cache key of q.
func (r *Renderer) CacheKey(q *Query) string {
	in := KeyInput{
		Portlet:      q.Portlet,
		BaseURL:      r.settings.NavigationRoot,
		Locale:       r.settings.Locale.String(),
		FirstWeekday: r.settings.FirstWeekday,
		Month:        q.Month,
		Today:        r.now().In(r.settings.Location),
		Records:      q.Records,
	}
	if q.RootFound {
		in.RootFound = true
		in.RootModified = q.RootContent.Modified
	}
	return CacheKey(in)
}

// Render returns the compressed portlet HTML for month m, served from the
// result cache unless the portlet disables it.
func (r *Renderer) Render(ctx context.Context, p config.PortletConfig, m query.Month) (string, error) {
	q, err := r.Resolve(ctx, p, m)
	if err != nil {
		return "", err
	}

	var key string
	if !p.NoCache && r.cache != nil {
		key = r.CacheKey(q)
		if html, ok := r.cache.Get(key); ok {
			appLog.Debug("portlet cache hit", "portlet", p.ID, "year", m.Year, "month", int(m.Month))
			return html, nil
		}
		appLog.Debug("portlet cache miss", "portlet", p.ID, "year", m.Year, "month", int(m.Month))
	}

	html, err := r.tmpl.render(r.page(q))
	if err != nil {
		return "", fmt.Errorf("render portlet %s: %w", p.ID, err)
	}
	if key != "" {
		r.cache.Add(key, html)
	}
	return html, nil
}

// ReviewStateString returns the review states of p as a query string
// prefix, "review_state=a&review_state=b&". Without portlet states the
// site calendar states are used.
func (r *Renderer) ReviewStateString(p config.PortletConfig) string {
	states := p.ReviewState
	if len(states) == 0 {
		states = r.settings.CalendarStates
	}
	var b strings.Builder
	for _, s := range states {
		b.WriteString("review_state=")
		b.WriteString(url.QueryEscape(s))
		b.WriteString("&")
	}
	return b.String()
}

// CollectionQueryString encodes the resolved search options of q.
func CollectionQueryString(q *Query) string {
	return query.MakeQuery(q.Options)
}

// TopicQueryString encodes the stored query of a legacy topic root.
func TopicQueryString(q *Query, now time.Time) (string, error) {
	if q.Saved == nil {
		return "", fmt.Errorf("%w: %s is not a saved search", query.ErrUnsupportedSavedQuery, q.Root)
	}
	return query.LegacyQueryString(q.Saved, now)
}
