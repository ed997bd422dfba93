package repository

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "calendarex/internal/log"
	"calendarex/internal/model"
	"calendarex/internal/query"
)

var (
	// ErrNotFound is returned when a path does not resolve to content.
	ErrNotFound = errors.New("content not found")
	// ErrNotSavedQuery is returned when a path resolves to content that is
	// not a saved search.
	ErrNotSavedQuery = errors.New("content is not a saved search")
)

// Repository is an in-memory hierarchical content store with a small
// catalog-style search. It is safe for concurrent use.
type Repository struct {
	mu      sync.RWMutex
	items   map[string]*entry
	nextRID int64
	now     func() time.Time
}

type entry struct {
	rid     int64
	content model.Content
}

// New constructs an empty repository.
func New() *Repository {
	return &Repository{
		items: make(map[string]*entry),
		now:   time.Now,
	}
}

// SetClock overrides the clock used for Modified stamps.
func (r *Repository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// CleanPath normalizes a content path to an absolute, slash-separated form
// without a trailing slash.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + strings.TrimSpace(p))
}

// Put inserts or replaces content at c.Path. Missing parent folders are
// created. A zero Modified is stamped with the current time and a missing
// UID is generated.
func (r *Repository) Put(c model.Content) model.Content {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putLocked(c)
}

func (r *Repository) putLocked(c model.Content) model.Content {
	c.Path = CleanPath(c.Path)
	if c.Modified.IsZero() {
		c.Modified = r.now()
	}
	if c.UID == "" {
		c.UID = uuid.NewString()
	}
	if c.PortalType == "" {
		c.PortalType = model.TypeFolder
	}
	r.ensureParentsLocked(c.Path, c.Modified)

	if e, ok := r.items[c.Path]; ok {
		e.content = c
		return c
	}
	r.nextRID++
	r.items[c.Path] = &entry{rid: r.nextRID, content: c}
	return c
}

func (r *Repository) ensureParentsLocked(p string, modified time.Time) {
	parent := path.Dir(p)
	if parent == p || parent == "/" {
		return
	}
	if _, ok := r.items[parent]; ok {
		return
	}
	r.ensureParentsLocked(parent, modified)
	r.nextRID++
	r.items[parent] = &entry{
		rid: r.nextRID,
		content: model.Content{
			Path:        parent,
			UID:         uuid.NewString(),
			PortalType:  model.TypeFolder,
			ReviewState: "published",
			Modified:    modified,
		},
	}
}

// Delete removes the content at p and everything below it.
func (r *Repository) Delete(p string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(CleanPath(p))
}

func (r *Repository) deleteLocked(p string) int {
	n := 0
	for k := range r.items {
		if under(k, p) {
			delete(r.items, k)
			n++
		}
	}
	return n
}

// ReplaceFolder atomically replaces all content below folder with items.
// Items whose fields did not change keep their Modified stamp and RID, so a
// refresh that brings nothing new does not invalidate cached renders. The
// folder itself is touched only when its children changed.
func (r *Repository) ReplaceFolder(folder string, items []model.Content) (changed bool) {
	folder = CleanPath(folder)

	r.mu.Lock()
	defer r.mu.Unlock()

	keep := make(map[string]bool, len(items))
	for _, c := range items {
		c.Path = CleanPath(c.Path)
		if !under(c.Path, folder) || c.Path == folder {
			appLog.Warn("skipping item outside folder", "folder", folder, "path", c.Path)
			continue
		}
		keep[c.Path] = true
		if e, ok := r.items[c.Path]; ok && sameContent(e.content, c) {
			continue
		}
		c.Modified = time.Time{}
		r.putLocked(c)
		changed = true
	}
	for k, e := range r.items {
		if k == folder || !under(k, folder) || keep[k] {
			continue
		}
		// Intermediate folders created for kept items stay.
		if e.content.PortalType == model.TypeFolder && hasKeptChild(k, keep) {
			continue
		}
		delete(r.items, k)
		changed = true
	}

	if _, ok := r.items[folder]; !ok {
		r.putLocked(model.Content{Path: folder, PortalType: model.TypeFolder, ReviewState: "published"})
	} else if changed {
		r.items[folder].content.Modified = r.now()
	}
	return changed
}

func hasKeptChild(folder string, keep map[string]bool) bool {
	for k := range keep {
		if under(k, folder) && k != folder {
			return true
		}
	}
	return false
}

func sameContent(a, b model.Content) bool {
	if a.PortalType != b.PortalType || a.Title != b.Title || a.ReviewState != b.ReviewState {
		return false
	}
	if !a.Start.Equal(b.Start) || !a.End.Equal(b.End) {
		return false
	}
	if strings.Join(a.Subject, "\x00") != strings.Join(b.Subject, "\x00") {
		return false
	}
	if b.UID != "" && a.UID != b.UID {
		return false
	}
	return true
}

// Get returns the content at p.
func (r *Repository) Get(p string) (model.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[CleanPath(p)]
	if !ok {
		return model.Content{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return e.content, nil
}

// Resolve is Get with a context, matching the other read operations.
func (r *Repository) Resolve(_ context.Context, p string) (model.Content, error) {
	return r.Get(p)
}

// Len returns the number of stored items.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// UniqueValuesFor returns the sorted distinct values of an index over all
// stored content. Only review_state, portal_type and Subject are indexed.
func (r *Repository) UniqueValuesFor(index string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, e := range r.items {
		for _, v := range indexValues(e.content, index) {
			if v != "" {
				seen[v] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// LoadSavedQuery resolves ref to a topic or collection.
func (r *Repository) LoadSavedQuery(ctx context.Context, ref string) (query.SavedQuery, error) {
	c, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	switch c.PortalType {
	case model.TypeTopic:
		return query.LegacyQuery{Path: c.Path, Criterion: c.Criteria}, nil
	case model.TypeCollection:
		sq := query.StructuredQuery{Path: c.Path}
		for _, raw := range c.Criteria {
			row := query.Row{Value: raw["v"]}
			row.Index, _ = raw["i"].(string)
			row.Operation, _ = raw["o"].(string)
			if row.Index == "sort_on" {
				sq.SortOn, _ = raw["v"].(string)
				continue
			}
			sq.Rows = append(sq.Rows, row)
		}
		return sq, nil
	default:
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotSavedQuery, c.Path, c.PortalType)
	}
}

func under(p, root string) bool {
	if root == "/" {
		return true
	}
	return p == root || strings.HasPrefix(p, root+"/")
}
