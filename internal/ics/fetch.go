package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "calendarex/internal/log"
)

// Feed is one ICS subscription.
type Feed struct {
	ID  string
	URL string
}

// Payload is the body of a fetched feed.
type Payload struct {
	Feed Feed
	Body []byte
	// Cached is true when the body came from the disk cache (304, network
	// error or non-OK status with a previous copy).
	Cached bool
}

// cacheMeta holds the validators of the last successful download.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads ICS feeds with conditional requests and keeps the last
// good body on disk, one directory per URL.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./cache/ics-cache"
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// Fetch downloads feed, honoring ETag and Last-Modified. When the server is
// unreachable or answers with an error status the cached body is returned
// instead, if there is one.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) (Payload, error) {
	if feed.URL == "" {
		return Payload{}, errors.New("feed url is empty")
	}

	dir := f.cacheDirFor(feed.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Payload{}, err
	}
	meta, _ := readMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	fallback := func(cause error) (Payload, error) {
		if len(cached) == 0 {
			return Payload{}, cause
		}
		appLog.Error("ics fetch failed, using cached body", cause, "id", feed.ID, "url", redactURL(feed.URL))
		return Payload{Feed: feed, Body: cached, Cached: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return Payload{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("ics fetch start", "id", feed.ID, "url", redactURL(feed.URL))
	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fallback(err)
		}
		meta = cacheMeta{
			URL:          feed.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := writeCache(dir, meta, body); err != nil {
			appLog.Error("ics cache save failed", err, "id", feed.ID)
		}
		appLog.Info("ics fetch success", "id", feed.ID, "url", redactURL(feed.URL), "bytes", len(body))
		return Payload{Feed: feed, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Payload{}, errors.New("304 Not Modified without a cached body")
		}
		appLog.Debug("ics not modified", "id", feed.ID)
		return Payload{Feed: feed, Body: cached, Cached: true}, nil

	default:
		return fallback(fmt.Errorf("unexpected status %s", resp.Status))
	}
}

func (f *Fetcher) cacheDirFor(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func readMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// writeCache stores the body before the metadata so the metadata never
// refers to a missing body.
func writeCache(dir string, meta cacheMeta, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; feed paths and query strings often
// carry access tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
