package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Listen, cfg.Listen)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Portlets, again.Portlets)
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
week_start: tuesday
navigation_root: /portal
sources:
  - url: https://example.com/team.ics
portlets:
  - id: team
    name: Team
    root: /team
    kw: [Meeting]
    exclude: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monday", cfg.WeekStart)
	assert.Equal(t, []string{"Event"}, cfg.CalendarTypes)
	assert.Equal(t, []string{"published"}, cfg.CalendarStates)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, SourceICS, cfg.Sources[0].Type)
	assert.Equal(t, "source-1", cfg.Sources[0].ID)
	assert.Equal(t, "/portal/source-1", cfg.Sources[0].Folder)

	p, err := cfg.Portlet("team")
	require.NoError(t, err)
	assert.Equal(t, []string{"Meeting"}, p.Keywords)
	assert.True(t, p.Exclude)
	assert.True(t, p.HasName())
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - type: ftp
    url: ftp://example.com
portlets:
  - id: a
  - id: a
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestPortletLookup(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.Portlet("missing")
	assert.ErrorIs(t, err, ErrUnknownPortlet)
}

func TestPortletTitle(t *testing.T) {
	assert.Equal(t, "Calendar Extended: unnamed", PortletConfig{}.Title())
	assert.Equal(t, "Calendar Extended: Team", PortletConfig{Name: "Team"}.Title())
	assert.False(t, PortletConfig{Name: "   "}.HasName())
}
