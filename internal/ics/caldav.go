package ics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	appLog "calendarex/internal/log"
)

// CalDAVSource reads events from one calendar collection on a CalDAV server.
type CalDAVSource struct {
	ID       string
	Endpoint string
	Username string
	Password string
	// Calendar is a collection path ("/calendars/me/work/") or a display
	// name. Empty selects the first calendar of the user.
	Calendar string
}

type caldavTransport struct {
	next http.RoundTripper
}

func (t *caldavTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "calendarex/1.0")
	return t.next.RoundTrip(req)
}

func (s CalDAVSource) client() (*caldav.Client, error) {
	var hc webdav.HTTPClient = &http.Client{
		Timeout:   30 * time.Second,
		Transport: &caldavTransport{next: http.DefaultTransport},
	}
	if s.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, s.Username, s.Password)
	}
	c, err := caldav.NewClient(hc, s.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}
	return c, nil
}

// Events queries the VEVENTs overlapping w and parses them like an ICS
// feed.
func (s CalDAVSource) Events(ctx context.Context, w Window, loc *time.Location) ([]Event, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	calPath, err := s.findCalendar(ctx, c)
	if err != nil {
		return nil, err
	}

	q := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: w.Start.UTC(),
				End:   w.End.UTC(),
			}},
		},
	}
	objs, err := c.QueryCalendar(ctx, calPath, q)
	if err != nil {
		return nil, fmt.Errorf("query calendar %s: %w", calPath, err)
	}

	var events []Event
	for _, obj := range objs {
		if obj.Data == nil {
			continue
		}
		body, err := encodeCalendar(obj.Data)
		if err != nil {
			appLog.Warn("skipping caldav object", "id", s.ID, "path", obj.Path, "err", err)
			continue
		}
		evs, err := Parse(s.ID, body, loc)
		if err != nil {
			appLog.Warn("skipping caldav object", "id", s.ID, "path", obj.Path, "err", err)
			continue
		}
		events = append(events, evs...)
	}
	appLog.Info("caldav query completed", "id", s.ID, "objects", len(objs), "events", len(events))
	return events, nil
}

func (s CalDAVSource) findCalendar(ctx context.Context, c *caldav.Client) (string, error) {
	if strings.HasPrefix(s.Calendar, "/") {
		return s.Calendar, nil
	}
	principal, err := c.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	home, err := c.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home set: %w", err)
	}
	cals, err := c.FindCalendars(ctx, home)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}
	for _, cal := range cals {
		if s.Calendar == "" || cal.Name == s.Calendar {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar named %q", s.Calendar)
}

// encodeCalendar serializes a CalDAV object back to ICS text.
func encodeCalendar(cal *ical.Calendar) ([]byte, error) {
	if cal.Props.Get(ical.PropVersion) == nil {
		cal.Props.SetText(ical.PropVersion, "2.0")
	}
	if cal.Props.Get(ical.PropProductID) == nil {
		cal.Props.SetText(ical.PropProductID, "-//calendarex//EN")
	}
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
