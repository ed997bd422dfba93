package repository

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	appLog "calendarex/internal/log"
	"calendarex/internal/model"
)

// SeedItem is the YAML shape of one content item in a seed file:
//
//	- path: /site/folder1/e1
//	  type: Event
//	  title: Team meeting
//	  subject: [Meeting]
//	  review_state: published
//	  start: 2024-11-29T23:00:00+09:00
//	  end: 2024-11-29T23:30:00+09:00
//
// Topics carry `criteria` (criterion objects), collections carry `query`
// ({i, o, v} rows) and optionally `sort_on`.
type SeedItem struct {
	Path        string           `yaml:"path"`
	Type        string           `yaml:"type"`
	Title       string           `yaml:"title,omitempty"`
	Subject     []string         `yaml:"subject,omitempty"`
	ReviewState string           `yaml:"review_state,omitempty"`
	Start       time.Time        `yaml:"start,omitempty"`
	End         time.Time        `yaml:"end,omitempty"`
	Modified    time.Time        `yaml:"modified,omitempty"`
	Criteria    []map[string]any `yaml:"criteria,omitempty"`
	Query       []map[string]any `yaml:"query,omitempty"`
	SortOn      string           `yaml:"sort_on,omitempty"`
}

// SeedFile is the top-level seed document.
type SeedFile struct {
	Content []SeedItem `yaml:"content"`
}

// LoadSeed reads a YAML seed file and stores every item. A missing file is
// not an error; the repository simply stays empty.
func (r *Repository) LoadSeed(path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			appLog.Warn("seed content file not found", "path", path)
			return 0, nil
		}
		return 0, err
	}
	return r.LoadSeedData(data)
}

// LoadSeedData stores the items of a YAML seed document.
func (r *Repository) LoadSeedData(data []byte) (int, error) {
	var doc SeedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse seed content: %w", err)
	}
	for i, it := range doc.Content {
		if it.Path == "" {
			return i, fmt.Errorf("seed item %d: path is required", i)
		}
		r.Put(it.toContent())
	}
	appLog.Info("seed content loaded", "items", len(doc.Content))
	return len(doc.Content), nil
}

func (it SeedItem) toContent() model.Content {
	c := model.Content{
		Path:        it.Path,
		PortalType:  it.Type,
		Title:       it.Title,
		Subject:     it.Subject,
		ReviewState: it.ReviewState,
		Start:       it.Start,
		End:         it.End,
		Modified:    it.Modified,
	}
	switch it.Type {
	case model.TypeTopic:
		c.Criteria = it.Criteria
	case model.TypeCollection:
		c.Criteria = append(c.Criteria, it.Query...)
		if it.SortOn != "" {
			c.Criteria = append(c.Criteria, map[string]any{"i": "sort_on", "v": it.SortOn})
		}
	}
	if c.ReviewState == "" {
		c.ReviewState = "private"
	}
	return c
}
