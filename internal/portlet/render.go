package portlet

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/tdewolff/minify/v2"
	minhtml "github.com/tdewolff/minify/v2/html"

	"calendarex/internal/calendar"
	"calendarex/internal/query"
)

//go:embed templates/portlet.html
var templateFS embed.FS

type pageTemplate struct {
	tmpl *template.Template
	min  *minify.M
}

func newPageTemplate() (*pageTemplate, error) {
	t, err := template.ParseFS(templateFS, "templates/portlet.html")
	if err != nil {
		return nil, fmt.Errorf("parse portlet template: %w", err)
	}
	m := minify.New()
	m.Add("text/html", &minhtml.Minifier{KeepDocumentTags: true, KeepEndTags: true})
	return &pageTemplate{tmpl: t, min: m}, nil
}

func (p *pageTemplate) render(data page) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	out, err := p.min.String("text/html", buf.String())
	if err != nil {
		return "", fmt.Errorf("compress html: %w", err)
	}
	return out, nil
}

type page struct {
	ID        string
	Name      string
	HasName   bool
	MonthName string
	Year      int
	Weekdays  []string
	Weeks     [][]cell
	PrevURL   string
	NextURL   string
	MoreURL   string
}

type cell struct {
	Day      int
	HasEvent bool
	Class    string
	Title    string
	Link     string
}

func (r *Renderer) page(q *Query) page {
	p := q.Portlet
	pg := page{
		ID:        p.ID,
		Name:      p.Name,
		HasName:   p.HasName(),
		MonthName: q.Month.Month.String(),
		Year:      q.Month.Year,
		PrevURL:   MonthURL(p.ID, q.Month.Prev()),
		NextURL:   MonthURL(p.ID, q.Month.Next()),
	}
	for _, wd := range calendar.WeekdayHeaders(r.settings.FirstWeekday) {
		pg.Weekdays = append(pg.Weekdays, wd.String()[:2])
	}
	if q.Saved != nil {
		pg.MoreURL = r.searchURL() + CollectionQueryString(q)
	}

	states := r.ReviewStateString(p)
	for _, week := range r.Grid(q) {
		row := make([]cell, 0, len(week))
		for _, d := range week {
			c := cell{Day: d.Day, HasEvent: d.HasEvent}
			switch {
			case d.HasEvent && d.IsToday:
				c.Class = "todayevent"
			case d.HasEvent:
				c.Class = "event"
			case d.IsToday:
				c.Class = "todaynoevent"
			}
			if d.HasEvent {
				c.Title = d.EventString
				c.Link = r.searchURL() + states + dayQuery(q.Month, d.Day)
			}
			row = append(row, c)
		}
		pg.Weeks = append(pg.Weeks, row)
	}
	return pg
}

func (r *Renderer) searchURL() string {
	return strings.TrimRight(r.settings.NavigationRoot, "/") + "/search?"
}

// dayQuery selects events overlapping one day.
func dayQuery(m query.Month, day int) string {
	d := m.Date(day)
	return query.MakeQuery(query.Criteria{
		"start": query.Range{Query: []any{d.AddDate(0, 0, 1).Add(-time.Second)}, Range: query.RangeMax},
		"end":   query.Range{Query: []any{d}, Range: query.RangeMin},
	})
}

// MonthURL is the portlet page URL of month m.
func MonthURL(id string, m query.Month) string {
	return fmt.Sprintf("/portlets/%s?year=%d&month=%d", id, m.Year, int(m.Month))
}
