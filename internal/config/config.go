package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source types.
const (
	SourceICS    = "ics"
	SourceCalDAV = "caldav"
)

// ErrUnknownPortlet is returned by Portlet when no portlet has the id.
var ErrUnknownPortlet = errors.New("unknown portlet")

// SourceConfig describes a calendar feed that is imported into a folder of
// the content repository.
type SourceConfig struct {
	// ID is an internal identifier used for logging and the fetch cache.
	ID string `yaml:"id" json:"id"`
	// Type is "ics" (default) or "caldav".
	Type string `yaml:"type" json:"type"`
	// URL is the ICS endpoint or the CalDAV server endpoint.
	URL string `yaml:"url" json:"url"`
	// Folder is the repository path the events are stored under.
	Folder string `yaml:"folder" json:"folder"`
	// ReviewState is assigned to imported events. Defaults to "published".
	ReviewState string `yaml:"review_state" json:"review_state"`
	// Subject keywords assigned to every imported event.
	Subject []string `yaml:"subject,omitempty" json:"subject,omitempty"`

	// CalDAV only.
	Username     string `yaml:"username,omitempty" json:"username,omitempty"`
	Password     string `yaml:"password,omitempty" json:"-"`
	CalendarPath string `yaml:"calendar_path,omitempty" json:"calendar_path,omitempty"`
}

// PortletConfig is one calendar portlet assignment.
type PortletConfig struct {
	ID string `yaml:"id" json:"id"`
	// Name is the displayed title; blank hides the title.
	Name string `yaml:"name" json:"name"`
	// Root is a sub-path below the navigation root. It may point at a
	// folder or at a saved search (topic or collection).
	Root string `yaml:"root" json:"root"`
	// ReviewState filters on workflow state. Ignored for saved searches.
	ReviewState []string `yaml:"review_state" json:"review_state"`
	// Keywords filters on Subject. Ignored for saved searches.
	Keywords []string `yaml:"kw" json:"kw"`
	// Exclude inverts the root path filter.
	Exclude bool `yaml:"exclude" json:"exclude"`
	// NoCache disables result caching for this portlet.
	NoCache bool `yaml:"no_cache" json:"no_cache"`
}

// Title returns the assignment title shown in management screens.
func (p PortletConfig) Title() string {
	name := p.Name
	if name == "" {
		name = "unnamed"
	}
	return "Calendar Extended: " + name
}

// HasName reports whether the portlet title should be rendered.
func (p PortletConfig) HasName() bool {
	return strings.TrimSpace(p.Name) != ""
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone months are displayed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls the first grid column:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// Locale is a BCP 47 tag; it is part of the render cache key.
	Locale string `yaml:"locale" json:"locale"`

	// DateFormat is the Go time layout of the day summary header.
	DateFormat string `yaml:"date_format" json:"date_format"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// NavigationRoot is the repository path portlet roots are relative to.
	NavigationRoot string `yaml:"navigation_root" json:"navigation_root"`

	// CalendarTypes and CalendarStates are the default portal_type and
	// review_state filters of every calendar query.
	CalendarTypes  []string `yaml:"calendar_types" json:"calendar_types"`
	CalendarStates []string `yaml:"calendar_states" json:"calendar_states"`

	// CacheSize bounds the number of cached renders.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// RefreshCron is a cron schedule for re-importing sources.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// ExpandMonths is how far around "now" recurring events are expanded.
	ExpandMonths int `yaml:"expand_months" json:"expand_months"`

	// CacheDir holds the HTTP cache of ICS feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// SnapshotDir holds PNG snapshots of rendered portlets.
	SnapshotDir string `yaml:"snapshot_dir" json:"snapshot_dir"`

	// Content is an optional YAML seed file with repository content.
	Content string `yaml:"content" json:"content"`

	Sources  []SourceConfig  `yaml:"sources" json:"sources"`
	Portlets []PortletConfig `yaml:"portlets" json:"portlets"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8080",
		Timezone:       "UTC",
		WeekStart:      "monday",
		Locale:         "en",
		DateFormat:     "Jan 2, 2006",
		LogLevel:       "info",
		NavigationRoot: "/site",
		CalendarTypes:  []string{"Event"},
		CalendarStates: []string{"published"},
		CacheSize:      256,
		RefreshCron:    "*/15 * * * *",
		ExpandMonths:   12,
		CacheDir:       "./cache/ics-cache",
		SnapshotDir:    "./cache/snapshots",
		Sources:        []SourceConfig{},
		Portlets: []PortletConfig{
			{ID: "calendar", Name: "Calendar"},
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.Locale == "" {
		c.Locale = def.Locale
	}
	if c.DateFormat == "" {
		c.DateFormat = def.DateFormat
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.NavigationRoot == "" {
		c.NavigationRoot = def.NavigationRoot
	}
	if len(c.CalendarTypes) == 0 {
		c.CalendarTypes = def.CalendarTypes
	}
	if len(c.CalendarStates) == 0 {
		c.CalendarStates = def.CalendarStates
	}
	if c.CacheSize <= 0 {
		c.CacheSize = def.CacheSize
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.ExpandMonths <= 0 {
		c.ExpandMonths = def.ExpandMonths
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = def.SnapshotDir
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Type == "" {
			s.Type = SourceICS
		}
		if s.ReviewState == "" {
			s.ReviewState = "published"
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("source-%d", i+1)
		}
		if s.Folder == "" {
			s.Folder = strings.TrimRight(c.NavigationRoot, "/") + "/" + s.ID
		}
	}
	if c.Portlets == nil {
		c.Portlets = []PortletConfig{}
	}
}

// Validate reports configuration errors Normalize cannot fix.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, p := range c.Portlets {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("portlets[%d]: id is required", i))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("portlets[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
	}
	for i, s := range c.Sources {
		switch s.Type {
		case SourceICS, SourceCalDAV:
		default:
			errs = append(errs, fmt.Errorf("sources[%d]: unknown type %q", i, s.Type))
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: url is required", i))
		}
	}
	return errors.Join(errs...)
}

// Portlet returns the portlet with the given id.
func (c *Config) Portlet(id string) (PortletConfig, error) {
	for _, p := range c.Portlets {
		if p.ID == id {
			return p, nil
		}
	}
	return PortletConfig{}, fmt.Errorf("%w: %s", ErrUnknownPortlet, id)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calendarex-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
