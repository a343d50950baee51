package lkgr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, fs afero.Fs, logPath string) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(server.URL, logPath, 5*time.Second, fs, zap.NewNop())
	c.now = func() time.Time { return time.Date(2012, 5, 2, 23, 4, 5, 0, time.UTC) }
	return c
}

func TestFetch_AppendsAuditLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	values := []string{"134000\n", "  134050  "}
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, values[calls])
		calls++
	}, fs, "chromium_lkgr.log")

	rev, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(134000), rev)

	rev, err = c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(134050), rev)

	data, err := afero.ReadFile(fs, "chromium_lkgr.log")
	require.NoError(t, err)
	assert.Equal(t,
		"134000,1335999845,2012-05-02 23:04:05\n134050,1335999845,2012-05-02 23:04:05\n",
		string(data))
}

func TestFetch_NoLogPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "7")
	}, fs, "")

	rev, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), rev)

	entries, err := afero.ReadDir(fs, "/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}, "status 503"},
		{"not a number", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html>")
		}, `returned "<html>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			c := newTestClient(t, tt.handler, fs, "lkgr.log")

			_, err := c.Fetch(context.Background())
			assert.ErrorContains(t, err, tt.want)

			exists, _ := afero.Exists(fs, "lkgr.log")
			assert.False(t, exists, "failed fetch must not be logged")
		})
	}
}

func TestReadLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "133900,1335900000.25,2012-05-01 19:20:00\n\n134000,1335999845,2012-05-02 23:04:05\n"
	require.NoError(t, afero.WriteFile(fs, "lkgr.log", []byte(content), 0644))

	entries, err := ReadLog(fs, "lkgr.log")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(133900), entries[0].Revision)
	assert.Equal(t, time.Date(2012, 5, 2, 23, 4, 5, 0, time.UTC), entries[1].Time)
	assert.Equal(t, "134000,1335999845,2012-05-02 23:04:05", entries[1].String())
}

func TestReadLog_Missing(t *testing.T) {
	entries, err := ReadLog(afero.NewMemMapFs(), "nope.log")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadLog_Malformed(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "lkgr.log", []byte("garbage\n"), 0644))

	_, err := ReadLog(fs, "lkgr.log")
	assert.ErrorContains(t, err, "lkgr.log:1")
}
