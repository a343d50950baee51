// Package lkgr fetches the downstream "last known good revision", the
// stability marker that gates bumps, and keeps an append-only audit log of
// every value seen.
package lkgr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const timeLayout = "2006-01-02 15:04:05"

// Client fetches the marker over HTTP
type Client struct {
	url     string
	logPath string
	fs      afero.Fs
	http    *http.Client
	log     *zap.Logger
	now     func() time.Time
}

// NewClient creates a Client. An empty logPath disables the audit log.
func NewClient(url, logPath string, timeout time.Duration, fs afero.Fs, log *zap.Logger) *Client {
	return &Client{
		url:     url,
		logPath: logPath,
		fs:      fs,
		http:    &http.Client{Timeout: timeout},
		log:     log,
		now:     time.Now,
	}
}

// Fetch returns the current marker and records it in the audit log
func (c *Client) Fetch(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching lkgr: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("lkgr server returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return 0, fmt.Errorf("reading lkgr: %w", err)
	}
	rev, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("lkgr server returned %q: %w", strings.TrimSpace(string(body)), err)
	}

	if c.logPath != "" {
		if err := c.appendLog(Entry{Revision: rev, Time: c.now()}); err != nil {
			return 0, err
		}
	}
	c.log.Debug("fetched lkgr", zap.Int64("rev", rev))
	return rev, nil
}

// Entry is one line of the audit log
type Entry struct {
	Revision int64
	Time     time.Time
}

// String formats the entry as "<rev>,<unix>,<YYYY-MM-DD HH:MM:SS>" in UTC
func (e Entry) String() string {
	return fmt.Sprintf("%d,%d,%s", e.Revision, e.Time.Unix(), e.Time.UTC().Format(timeLayout))
}

func (c *Client) appendLog(e Entry) error {
	f, err := c.fs.OpenFile(c.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening lkgr log: %w", err)
	}
	if _, err := fmt.Fprintln(f, e.String()); err != nil {
		f.Close()
		return fmt.Errorf("writing lkgr log: %w", err)
	}
	return f.Close()
}

// ReadLog parses the audit log. A missing file yields no entries.
func ReadLog(fs afero.Fs, path string) ([]Entry, error) {
	data, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, ",", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: malformed entry %q", path, i+1, line)
		}
		rev, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad revision: %w", path, i+1, err)
		}
		// Older logs wrote fractional seconds.
		secs, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad time: %w", path, i+1, err)
		}
		entries = append(entries, Entry{Revision: rev, Time: time.Unix(int64(secs), 0).UTC()})
	}
	return entries, nil
}
