package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"likesync/pkg/config"
	"likesync/pkg/logger"
	"likesync/pkg/syncer"
	"likesync/pkg/twitter"
	"likesync/pkg/ui"
)

// mockAPI serves the user lookup, two pages of likes and their media
type mockAPI struct {
	server   *httptest.Server
	requests int32
}

func newMockAPI(t *testing.T) *mockAPI {
	t.Helper()
	m := &mockAPI{}
	mux := http.NewServeMux()

	mux.HandleFunc("/2/users/by/username/alice", func(w http.ResponseWriter, r *http.Request) {
		if !m.authorized(w, r) {
			return
		}
		writeJSON(w, twitter.UserResponse{Data: &twitter.User{ID: "42", Username: "alice"}})
	})

	mux.HandleFunc("/2/users/42/liked_tweets", func(w http.ResponseWriter, r *http.Request) {
		if !m.authorized(w, r) {
			return
		}
		w.Header().Set("x-rate-limit-limit", "75")
		w.Header().Set("x-rate-limit-remaining", "74")

		switch r.URL.Query().Get("pagination_token") {
		case "":
			writeJSON(w, m.page("p2",
				twitter.Tweet{ID: "1", AuthorID: "100", Attachments: &twitter.Attachments{MediaKeys: []string{"3_A"}}},
				twitter.Tweet{ID: "2", AuthorID: "101", Entities: &twitter.Entities{URLs: []twitter.URLEntity{
					{URL: "https://t.co/x", ExpandedURL: "https://example.com/article"},
				}}},
			))
		case "p2":
			writeJSON(w, m.page("",
				twitter.Tweet{ID: "3", AuthorID: "100", Attachments: &twitter.Attachments{MediaKeys: []string{"3_B"}}},
			))
		default:
			http.Error(w, "unknown token", http.StatusBadRequest)
		}
	})

	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image bytes of " + r.URL.Path))
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	atomic.AddInt32(&m.requests, 1)
	if r.Header.Get("Authorization") != "Bearer test-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func (m *mockAPI) page(next string, tweets ...twitter.Tweet) twitter.LikedTweetsResponse {
	for i := range tweets {
		tweets[i].CreatedAt = mustTime("2023-04-05T10:00:00Z")
	}
	return twitter.LikedTweetsResponse{
		Data: tweets,
		Includes: twitter.Includes{
			Users: []twitter.User{{ID: "100", Username: "bob"}, {ID: "101", Username: "carol"}},
			Media: []twitter.Media{
				{MediaKey: "3_A", Type: "photo", URL: m.server.URL + "/media/A.jpg"},
				{MediaKey: "3_B", Type: "photo", URL: m.server.URL + "/media/B.png"},
			},
		},
		Meta: twitter.Meta{ResultCount: len(tweets), NextToken: next},
	}
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Twitter.APIBaseURL = apiURL
	cfg.Output.BaseDirectory = filepath.Join(dir, "out")
	cfg.Download.NativeHosts = []string{"127.0.0.1"}
	cfg.RateLimit.MaxRequestsPerRun = 0
	cfg.Metrics.Textfile = filepath.Join(dir, "likesync.prom")
	return cfg
}

func captureUI(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevQuiet := ui.Output, quiet
	ui.Output, quiet = &buf, true
	t.Cleanup(func() { ui.Output, quiet = prevOut, prevQuiet })
	return &buf
}

func TestExecuteSyncEndToEnd(t *testing.T) {
	captureUI(t)
	api := newMockAPI(t)
	cfg := testConfig(t, api.server.URL)

	result, err := executeSync(context.Background(), cfg, "test-token", syncer.Options{User: "@alice"}, logger.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, syncer.StopDone, result.StopReason)
	assert.Equal(t, "42", result.UserID)
	assert.Equal(t, 3, result.Requests, "lookup plus two pages")
	assert.Equal(t, int64(3), result.Counters.TotalLikedSeen)
	assert.Equal(t, int64(2), result.Counters.ImagesDownloaded)
	assert.Equal(t, int64(1), result.Counters.NonNativeURLCount)

	images := filepath.Join(cfg.Output.BaseDirectory, "42", "downloaded images")
	data, err := os.ReadFile(filepath.Join(images, "(bob)[twitter]A_20230405.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "image bytes of /media/A.jpg", string(data))
	assert.FileExists(t, filepath.Join(images, "(bob)[twitter]B_20230405.png"))

	links, err := os.ReadFile(filepath.Join(cfg.Output.BaseDirectory, "42", "external_urls.txt"))
	require.NoError(t, err)
	assert.Equal(t, "https://twitter.com/carol/status/2\n", string(links))

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `likesync_pages_committed_total{user="@alice"} 2`)
	assert.Contains(t, string(prom), `likesync_cursor_counter{counter="images_downloaded",user="@alice"} 2`)

	second, err := executeSync(context.Background(), cfg, "test-token", syncer.Options{User: "42"}, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Requests, "numeric id needs no lookup")
	assert.Zero(t, second.Counters.TotalLikedSeen)
	assert.Equal(t, 3, second.AlreadyKnown)
	assert.Equal(t, int64(3), second.Totals.TotalLikedSeen)
}

func TestExecuteSyncRejectedToken(t *testing.T) {
	captureUI(t)
	api := newMockAPI(t)
	cfg := testConfig(t, api.server.URL)
	cfg.Metrics.Textfile = ""

	result, err := executeSync(context.Background(), cfg, "wrong", syncer.Options{User: "42"}, logger.NewNopLogger())
	require.Error(t, err)
	assert.Equal(t, syncer.StopError, result.StopReason)
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.requests), "auth errors are not retried")
}

func TestPrintStatus(t *testing.T) {
	buf := captureUI(t)
	api := newMockAPI(t)
	cfg := testConfig(t, api.server.URL)

	_, err := executeSync(context.Background(), cfg, "test-token", syncer.Options{User: "42"}, logger.NewNopLogger())
	require.NoError(t, err)
	buf.Reset()

	require.NoError(t, printStatus(cfg, "42", 2, logger.NewNopLogger()))
	out := buf.String()
	assert.Contains(t, out, ui.Yellow("3 (shards)"))
	assert.Contains(t, out, "https://twitter.com/i/web/status/3")
	assert.Contains(t, out, "https://twitter.com/i/web/status/2")
	assert.NotContains(t, out, "https://twitter.com/i/web/status/1")
	assert.Contains(t, out, "none, last pass completed")

	users, err := listUsers(cfg.Output.BaseDirectory)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, users)

	buf.Reset()
	require.NoError(t, printStatus(cfg, "7", 0, logger.NewNopLogger()))
	assert.Contains(t, buf.String(), "No state for user 7")
}

func TestListUsersMissingDir(t *testing.T) {
	users, err := listUsers(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "likesync.yaml")
	require.NoError(t, writeDefaultConfig(path))

	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = "changed"
	require.NoError(t, cfg.LoadFromFile(path))
	assert.Equal(t, config.DefaultConfig().Output.BaseDirectory, cfg.Output.BaseDirectory)
	assert.Equal(t, config.DefaultConfig().RateLimit.Window, cfg.RateLimit.Window)
}

func TestConfigWarnings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	assert.Empty(t, configWarnings(cfg))

	cfg.RateLimit.MaxRequestsPerRun = 0
	cfg.RateLimit.RequestsPerWindow = 300
	assert.Len(t, configWarnings(cfg), 2)
}

func TestSyncFlagOverrides(t *testing.T) {
	t.Cleanup(func() {
		verbose = false
		maxRequests = 0
		syncCmd.Flags().Lookup("verbose").Changed = false
		syncCmd.Flags().Lookup("max-requests").Changed = false
	})

	assert.Empty(t, syncFlagOverrides(syncCmd))

	require.NoError(t, syncCmd.Flags().Set("verbose", "true"))
	require.NoError(t, syncCmd.Flags().Set("max-requests", "0"))
	flags := syncFlagOverrides(syncCmd)
	assert.Equal(t, true, flags["verbose"])
	assert.Equal(t, 0, flags["max-requests"])

	cfg := config.DefaultConfig()
	cfg.MergeCommandLineFlags(flags)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 0, cfg.RateLimit.MaxRequestsPerRun)
}
