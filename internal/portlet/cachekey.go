package portlet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"calendarex/internal/config"
	"calendarex/internal/model"
	"calendarex/internal/query"
)

// KeyInput is everything a rendered portlet depends on.
type KeyInput struct {
	Portlet      config.PortletConfig
	BaseURL      string
	Locale       string
	FirstWeekday time.Weekday
	Month        query.Month
	Today        time.Time

	// RootFound is false when the root path did not resolve.
	RootFound    bool
	RootModified time.Time

	Records []model.Record
}

// CacheKey builds the composite render key and returns its SHA-256 digest.
// Any change to a matching item's modification time, or to the set of
// matching items, changes the key.
func CacheKey(in KeyInput) string {
	var b strings.Builder
	p := in.Portlet

	fmt.Fprintln(&b, p.ID)
	fmt.Fprintf(&b, "%q\n", p.Keywords)
	fmt.Fprintf(&b, "%q\n", p.ReviewState)
	fmt.Fprintln(&b, p.Name)
	fmt.Fprintln(&b, p.Exclude)
	fmt.Fprintln(&b, in.BaseURL)
	fmt.Fprintln(&b, in.Locale)
	fmt.Fprintln(&b, int(in.FirstWeekday))
	fmt.Fprintln(&b, in.Month.Year)
	fmt.Fprintln(&b, int(in.Month.Month))
	// is_today highlighting depends on the current date.
	fmt.Fprintln(&b, in.Today.Format("2006-01-02"))
	if in.RootFound {
		fmt.Fprintln(&b, in.RootModified.UTC().Format(time.RFC3339Nano))
	}
	for _, r := range in.Records {
		b.WriteString(r.Path)
		b.WriteString("\n")
		b.WriteString(r.Modified.UTC().Format(time.RFC3339Nano))
		b.WriteString("\n\n")
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
