package model

import "time"

// Portal types known to the content repository.
const (
	TypeFolder     = "Folder"
	TypeEvent      = "Event"
	TypeTopic      = "Topic"
	TypeCollection = "Collection"
)

// Content is a single item stored in the hierarchical content repository.
// Folders and saved searches are content too; only items with a non-zero
// Start/End show up on the calendar.
type Content struct {
	// Path is the absolute slash-separated path, e.g. "/site/folder1/e1".
	Path string
	// UID is a repository-wide unique identifier (uuid).
	UID string

	PortalType  string
	Title       string
	Subject     []string
	ReviewState string

	Modified time.Time

	Start time.Time
	End   time.Time

	// Criteria holds the stored query of a saved search. For a Topic each
	// entry is one criterion object; for a Collection each entry is a raw
	// {i, o, v} row.
	Criteria []map[string]any
}

// ID returns the last path segment.
func (c *Content) ID() string {
	for i := len(c.Path) - 1; i >= 0; i-- {
		if c.Path[i] == '/' {
			return c.Path[i+1:]
		}
	}
	return c.Path
}

// Record is a lightweight search result row.
type Record struct {
	// RID is stable for a given row within one query and is used to detect
	// repeated rows.
	RID int64

	Path        string
	ID          string
	Title       string
	PortalType  string
	ReviewState string
	Subject     []string

	Modified time.Time
	Start    time.Time
	End      time.Time
}

// TitleOrID returns the title, falling back to the item id.
func (r Record) TitleOrID() string {
	if r.Title != "" {
		return r.Title
	}
	return r.ID
}

// Fragment is the part of an event rendered on one calendar day. A nil
// Start or End means the event starts or ends on another day.
type Fragment struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
	Title string  `json:"title"`
}

// Day is one cell of the month grid. Day == 0 is padding.
type Day struct {
	Day         int        `json:"day"`
	HasEvent    bool       `json:"has_event"`
	Events      []Fragment `json:"events"`
	IsToday     bool       `json:"is_today"`
	EventString string     `json:"event_string,omitempty"`
	DateString  string     `json:"date_string,omitempty"`
}

// Week is always 7 days long.
type Week []Day

// Grid is the full month.
type Grid []Week

// Days returns the non-padding days in order.
func (g Grid) Days() []Day {
	out := make([]Day, 0, 31)
	for _, w := range g {
		for _, d := range w {
			if d.Day > 0 {
				out = append(out, d)
			}
		}
	}
	return out
}

// FragmentCount returns the total number of fragments across all days.
func (g Grid) FragmentCount() int {
	n := 0
	for _, d := range g.Days() {
		n += len(d.Events)
	}
	return n
}
