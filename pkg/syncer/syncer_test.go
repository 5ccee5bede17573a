package syncer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"likesync/pkg/config"
	"likesync/pkg/cursor"
	likeerrors "likesync/pkg/errors"
	"likesync/pkg/knownposts"
	"likesync/pkg/linksink"
	"likesync/pkg/logger"
	"likesync/pkg/retry"
	"likesync/pkg/storage"
	"likesync/pkg/twitter"
)

const userID = "42"

// fakeAPI serves liked posts pages keyed by pagination token ("" is the
// newest page) and media bodies keyed by URL
type fakeAPI struct {
	mu          sync.Mutex
	pages       map[string]*twitter.LikedTweetsResponse
	errs        map[string][]error
	missing     map[string]bool
	fetches     []string
	mediaCalls  map[string]int
	lookups     int
	beforeFetch func(token string)
	onMedia     func()
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages:      make(map[string]*twitter.LikedTweetsResponse),
		errs:       make(map[string][]error),
		missing:    make(map[string]bool),
		mediaCalls: make(map[string]int),
	}
}

func (f *fakeAPI) LookupUser(ctx context.Context, username string) (*twitter.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if username != "alice" {
		return nil, &likeerrors.Error{Type: likeerrors.ErrorTypeNotFound, Message: "user not found"}
	}
	return &twitter.User{ID: userID, Username: "alice"}, nil
}

func (f *fakeAPI) LikedTweets(ctx context.Context, id, token string, maxResults int) (*twitter.LikedTweetsResponse, error) {
	if f.beforeFetch != nil {
		f.beforeFetch(token)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, token)

	if queued := f.errs[token]; len(queued) > 0 {
		f.errs[token] = queued[1:]
		return &twitter.LikedTweetsResponse{}, queued[0]
	}
	page, ok := f.pages[token]
	if !ok {
		return nil, &likeerrors.Error{Type: likeerrors.ErrorTypeUnknown, Message: "unexpected token " + token, Code: 400}
	}
	return page, nil
}

func (f *fakeAPI) OpenMedia(ctx context.Context, url string) (io.ReadCloser, error) {
	if f.onMedia != nil {
		f.onMedia()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaCalls[url]++
	if f.missing[url] {
		return nil, &likeerrors.Error{Type: likeerrors.ErrorTypeNotFound, Code: 404}
	}
	return io.NopCloser(strings.NewReader("bytes of " + url)), nil
}

func (f *fakeAPI) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetches...)
}

func (f *fakeAPI) totalMediaCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.mediaCalls {
		n += c
	}
	return n
}

// like describes one liked post in a fixture page
type like struct {
	id     string
	photos []string
	link   string
}

func photo(name string) string {
	return "https://pbs.twimg.com/media/" + name + ".jpg"
}

func buildPage(next string, likes ...like) *twitter.LikedTweetsResponse {
	resp := &twitter.LikedTweetsResponse{
		Includes: twitter.Includes{Users: []twitter.User{{ID: "7", Username: "alice"}}},
		Meta:     twitter.Meta{ResultCount: len(likes), NextToken: next},
	}
	for _, l := range likes {
		tweet := twitter.Tweet{
			ID:        l.id,
			AuthorID:  "7",
			CreatedAt: time.Date(2023, 4, 5, 10, 0, 0, 0, time.UTC),
		}
		if len(l.photos) > 0 {
			tweet.Attachments = &twitter.Attachments{}
			for i, u := range l.photos {
				key := l.id + "_" + string(rune('a'+i))
				tweet.Attachments.MediaKeys = append(tweet.Attachments.MediaKeys, key)
				resp.Includes.Media = append(resp.Includes.Media, twitter.Media{MediaKey: key, Type: "photo", URL: u})
			}
		}
		if l.link != "" {
			tweet.Entities = &twitter.Entities{URLs: []twitter.URLEntity{{ExpandedURL: l.link}}}
		}
		resp.Data = append(resp.Data, tweet)
	}
	return resp
}

// threePages is p1..p4 over three pages, the last one empty
func threePages(api *fakeAPI) {
	api.pages[""] = buildPage("t2",
		like{id: "p1", photos: []string{photo("A"), photo("B")}},
		like{id: "p2", link: "https://www.pixiv.net/artworks/1"},
	)
	api.pages["t2"] = buildPage("t3",
		like{id: "p3"},
		like{id: "p4", photos: []string{photo("C")}},
	)
	api.pages["t3"] = buildPage("")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Download.DownloadsPerSecond = 0
	cfg.RateLimit.MaxRequestsPerRun = 0
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Store.ShardCapacity = config.MinShardCapacity
	return cfg
}

func newTestSyncer(cfg *config.Config, api *fakeAPI, sleeps *[]time.Duration) *Syncer {
	s := New(cfg, api, logger.NewTestLogger())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return ctx.Err()
	}
	return s
}

func userLayout(t *testing.T, cfg *config.Config) storage.Layout {
	t.Helper()
	layout, err := storage.NewLayout(cfg.Output.BaseDirectory, userID)
	require.NoError(t, err)
	return layout
}

func loadCursor(t *testing.T, cfg *config.Config) cursor.State {
	t.Helper()
	state, err := cursor.NewManager(userLayout(t, cfg).CursorPath(), nil).Load(userID)
	require.NoError(t, err)
	return state
}

func knownIDs(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	store, err := knownposts.Open(cfg.Store, userLayout(t, cfg), nil)
	require.NoError(t, err)
	defer store.Close()
	ids, err := store.Identifiers()
	require.NoError(t, err)
	return ids
}

func externalLinks(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	lines, err := linksink.New(userLayout(t, cfg).ExternalLinksPath()).Lines()
	require.NoError(t, err)
	return lines
}

func TestRunFullPass(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)
	s := newTestSyncer(cfg, api, nil)

	var states []State
	var reports []PageReport
	s.SetHooks(Hooks{
		OnStateChange: func(from, to State) { states = append(states, to) },
		OnPage:        func(r PageReport) { reports = append(reports, r) },
	})

	result, err := s.Run(context.Background(), Options{User: userID})
	require.NoError(t, err)

	assert.Equal(t, StopDone, result.StopReason)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 3, result.Requests)
	assert.Equal(t, cursor.Counters{
		TotalLikedSeen:    4,
		NonNativeURLCount: 2,
		ImagesDownloaded:  3,
		APIRequestsMade:   3,
	}, result.Counters)
	assert.Equal(t, result.Counters, result.Totals)
	assert.Equal(t, []string{"", "t2", "t3"}, api.fetched())
	assert.Equal(t, 0, api.lookups, "numeric ids need no lookup")

	state := loadCursor(t, cfg)
	assert.True(t, state.IsComplete())
	assert.Equal(t, result.Totals, state.Counters)

	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, knownIDs(t, cfg))
	assert.Equal(t, []string{
		"https://twitter.com/alice/status/p2",
		"https://twitter.com/alice/status/p3",
	}, externalLinks(t, cfg))

	images := userLayout(t, cfg).ImagesDir(cfg.Output.ImagesFolder)
	for _, name := range []string{"A", "B", "C"} {
		_, err := os.Stat(filepath.Join(images, "(alice)[twitter]"+name+"_20230405.jpg"))
		assert.NoError(t, err, name)
	}

	require.Len(t, reports, 3)
	assert.Equal(t, PageReport{Page: 1, Posts: 2, New: 2, Downloaded: 2, ExternalLinks: 1, NextToken: "t2"}, reports[0])
	assert.Equal(t, cursor.EndOfPages, reports[2].NextToken)

	assert.Equal(t, []State{
		StateLoading,
		StateFetching, StateClassifying, StateCommitting,
		StateFetching, StateClassifying, StateCommitting,
		StateFetching, StateClassifying, StateCommitting,
		StateDone, StateTerminated,
	}, states)
	assert.Equal(t, StateTerminated, s.State())
}

func TestRunResolvesUsername(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: "@alice"})
	require.NoError(t, err)

	assert.Equal(t, 1, api.lookups)
	assert.Equal(t, userID, result.UserID)
	assert.Equal(t, "alice", result.Username)
	assert.Equal(t, 4, result.Requests)
	assert.Equal(t, int64(4), loadCursor(t, cfg).Counters.APIRequestsMade)
}

func TestRunUnknownUser(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: "ghost"})
	require.Error(t, err)
	assert.Equal(t, StopError, result.StopReason)

	entries, err := os.ReadDir(cfg.Output.BaseDirectory)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResumeAfterInterruption(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)

	ctx, cancel := context.WithCancel(context.Background())
	api.beforeFetch = func(token string) {
		if token == "t2" {
			cancel()
		}
	}

	result, err := newTestSyncer(cfg, api, nil).Run(ctx, Options{User: userID})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopCancelled, result.StopReason)
	assert.Equal(t, 1, result.Pages)

	token, ok := loadCursor(t, cfg).Token()
	require.True(t, ok)
	assert.Equal(t, "t2", token)
	assert.Equal(t, []string{"p1", "p2"}, knownIDs(t, cfg))

	api.beforeFetch = nil
	api.fetches = nil
	result, err = newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID})
	require.NoError(t, err)

	assert.Equal(t, []string{"t2", "t3"}, api.fetched(), "committed pages are not fetched again")
	assert.Equal(t, 2, result.Pages)

	// Same totals as one uninterrupted pass
	state := loadCursor(t, cfg)
	assert.True(t, state.IsComplete())
	assert.Equal(t, int64(4), state.Counters.TotalLikedSeen)
	assert.Equal(t, int64(2), state.Counters.NonNativeURLCount)
	assert.Equal(t, int64(3), state.Counters.ImagesDownloaded)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, knownIDs(t, cfg))
	assert.Len(t, externalLinks(t, cfg), 2, "each external post recorded exactly once")
	assert.Equal(t, 3, api.totalMediaCalls())
}

func TestCancelDuringDownloadsDropsPage(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)

	ctx, cancel := context.WithCancel(context.Background())
	api.onMedia = cancel

	result, err := newTestSyncer(cfg, api, nil).Run(ctx, Options{User: userID})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopCancelled, result.StopReason)
	assert.Equal(t, 0, result.Pages)
	assert.Empty(t, knownIDs(t, cfg))
	assert.Empty(t, externalLinks(t, cfg), "links of a dropped page are not recorded")

	_, err = os.Stat(userLayout(t, cfg).CursorPath())
	assert.True(t, os.IsNotExist(err))
}

func TestSecondPassSkipsKnownPosts(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)

	_, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID})
	require.NoError(t, err)
	before := loadCursor(t, cfg).Counters

	api.fetches = nil
	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID})
	require.NoError(t, err)

	assert.Equal(t, []string{"", "t2", "t3"}, api.fetched(), "a completed cursor restarts from the newest page")
	assert.Equal(t, 4, result.AlreadyKnown)
	assert.Equal(t, 3, api.totalMediaCalls(), "known posts are never downloaded again")
	assert.Equal(t, cursor.Counters{APIRequestsMade: 3}, result.Counters)

	after := loadCursor(t, cfg).Counters
	assert.Equal(t, before.TotalLikedSeen, after.TotalLikedSeen)
	assert.Equal(t, before.ImagesDownloaded, after.ImagesDownloaded)
	assert.Len(t, externalLinks(t, cfg), 2)
	assert.Len(t, knownIDs(t, cfg), 4)
}

func TestIgnoreProcessedRedownloads(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)

	_, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(userLayout(t, cfg).ImagesDir(cfg.Output.ImagesFolder)))

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID, IgnoreProcessed: true})
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.Counters.ImagesDownloaded)
	assert.Equal(t, int64(0), result.Counters.TotalLikedSeen)
	assert.Equal(t, int64(0), result.Counters.NonNativeURLCount)
	assert.Equal(t, 6, api.totalMediaCalls())
	assert.Len(t, externalLinks(t, cfg), 2, "known posts are not re-recorded")
	assert.Len(t, knownIDs(t, cfg), 4)
}

func TestRetryCeiling(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)
	throttled := &likeerrors.Error{Type: likeerrors.ErrorTypeRateLimit, Code: 429, RetryAfter: 7 * time.Second}
	api.errs[""] = []error{throttled, throttled, throttled, throttled}

	var sleeps []time.Duration
	var retries int
	s := newTestSyncer(cfg, api, &sleeps)
	s.SetHooks(Hooks{OnRetry: func(int, time.Duration, error) { retries++ }})

	result, err := s.Run(context.Background(), Options{User: userID, MaxAttempts: 3})
	require.Error(t, err)

	var exhausted *retry.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	var fetchErr *likeerrors.RetryableFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 7*time.Second, fetchErr.Wait)

	assert.Equal(t, StopError, result.StopReason)
	assert.Equal(t, 3, result.Requests)
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, sleeps)
	assert.Equal(t, 2, retries)

	_, err = os.Stat(userLayout(t, cfg).CursorPath())
	assert.True(t, os.IsNotExist(err), "nothing committed, nothing persisted")
}

func TestRetryThenSuccessCountsEveryAttempt(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)
	api.errs["t2"] = []error{&likeerrors.Error{Type: likeerrors.ErrorTypeServerError, Code: 503}}

	var sleeps []time.Duration
	result, err := newTestSyncer(cfg, api, &sleeps).Run(context.Background(), Options{User: userID})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Requests)
	assert.Equal(t, int64(4), loadCursor(t, cfg).Counters.APIRequestsMade)
	require.Len(t, sleeps, 1)
}

func TestNonRetryableFetchErrorIsFatal(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)
	api.errs["t2"] = []error{&likeerrors.Error{Type: likeerrors.ErrorTypeAuth, Code: 401}}

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID})
	require.Error(t, err)

	var apiErr *likeerrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, likeerrors.ErrorTypeAuth, apiErr.Type)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 2, result.Requests)

	token, _ := loadCursor(t, cfg).Token()
	assert.Equal(t, "t2", token, "the committed page stays committed")
	assert.Equal(t, result.Totals, loadCursor(t, cfg).Counters)
}

func TestRequestBudget(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID, MaxRequests: 2})
	require.NoError(t, err)

	assert.Equal(t, StopBudget, result.StopReason)
	assert.Equal(t, 2, result.Pages)
	token, _ := loadCursor(t, cfg).Token()
	assert.Equal(t, "t3", token)

	result, err = newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID, MaxRequests: 2})
	require.NoError(t, err)
	assert.Equal(t, StopDone, result.StopReason)
	assert.True(t, loadCursor(t, cfg).IsComplete())
}

func TestBudgetStopsRetries(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)
	throttled := &likeerrors.Error{Type: likeerrors.ErrorTypeRateLimit, Code: 429}
	api.errs["t2"] = []error{throttled, throttled}

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID, MaxRequests: 2, MaxAttempts: 5})
	require.NoError(t, err)

	assert.Equal(t, StopBudget, result.StopReason)
	assert.Equal(t, 2, result.Requests)
	assert.Equal(t, 1, result.Pages)
}

func TestStopAtKnown(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)

	_, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID})
	require.NoError(t, err)

	// A new like arrives ahead of the known ones
	api.pages[""] = buildPage("t2",
		like{id: "p0", photos: []string{photo("Z")}},
		like{id: "p1", photos: []string{photo("A"), photo("B")}},
	)
	api.fetches = nil

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID, StopAtKnown: true})
	require.NoError(t, err)

	assert.Equal(t, StopKnown, result.StopReason)
	assert.Equal(t, []string{""}, api.fetched())
	assert.Equal(t, int64(1), result.Counters.TotalLikedSeen)
	assert.True(t, loadCursor(t, cfg).IsComplete())
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p0"}, knownIDs(t, cfg))
}

func TestRepeatedPostWithinPageIsNotKnown(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	api.pages[""] = buildPage("t2",
		like{id: "p1", link: "https://www.pixiv.net/artworks/1"},
		like{id: "p1", link: "https://www.pixiv.net/artworks/1"},
	)
	api.pages["t2"] = buildPage("", like{id: "p2", link: "https://www.pixiv.net/artworks/2"})

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID, StopAtKnown: true})
	require.NoError(t, err)

	assert.Equal(t, StopDone, result.StopReason)
	assert.Equal(t, []string{"", "t2"}, api.fetched())
	assert.Equal(t, 0, result.AlreadyKnown)
	assert.Equal(t, int64(2), result.Counters.TotalLikedSeen)
	assert.Equal(t, []string{"p1", "p2"}, knownIDs(t, cfg))
	assert.Len(t, externalLinks(t, cfg), 2)
}

func TestExplicitPageToken(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID, PageToken: "t2"})
	require.NoError(t, err)

	assert.Equal(t, []string{"t2", "t3"}, api.fetched())
	assert.Equal(t, int64(2), result.Counters.TotalLikedSeen)
}

func TestDownloadFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)
	api.missing[photo("B")] = true

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID})
	require.NoError(t, err)

	assert.Equal(t, 1, result.FailedDownloads)
	require.Len(t, result.Failures, 1)
	var failure *likeerrors.DownloadFailure
	require.True(t, errors.As(result.Failures[0], &failure))
	assert.Equal(t, photo("B"), failure.URL)

	assert.Equal(t, int64(2), result.Counters.ImagesDownloaded)
	assert.Contains(t, knownIDs(t, cfg), "p1", "the post is staged regardless of download outcome")
}

func TestCorruptStoreStopsBeforeMutation(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)

	shardDir := userLayout(t, cfg).ShardDir()
	require.NoError(t, os.MkdirAll(shardDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(shardDir, "1.txt"), []byte("p1\n\np2\n"), 0644))

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID})
	require.Error(t, err)

	var corrupt *likeerrors.CorruptShardError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, StopError, result.StopReason)
	assert.Empty(t, api.fetched())

	_, err = os.Stat(userLayout(t, cfg).CursorPath())
	assert.True(t, os.IsNotExist(err))
}

func TestLinkSinkFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	api := newFakeAPI()
	threePages(api)

	require.NoError(t, os.MkdirAll(userLayout(t, cfg).ExternalLinksPath(), 0755))

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID})
	require.Error(t, err)

	var persistErr *likeerrors.PersistWriteError
	require.True(t, errors.As(err, &persistErr))
	assert.Equal(t, 0, result.Pages)

	_, err = os.Stat(userLayout(t, cfg).CursorPath())
	assert.True(t, os.IsNotExist(err), "the page was not committed")
}

func TestRunWithSQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = config.BackendSQLite
	api := newFakeAPI()
	threePages(api)

	result, err := newTestSyncer(cfg, api, nil).Run(context.Background(), Options{User: userID})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Counters.TotalLikedSeen)

	_, err = os.Stat(userLayout(t, cfg).SQLitePath())
	assert.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, knownIDs(t, cfg))
}

func TestMergeHooks(t *testing.T) {
	var calls []string
	first := Hooks{
		OnPage: func(PageReport) { calls = append(calls, "first page") },
		OnRetry: func(int, time.Duration, error) {
			calls = append(calls, "first retry")
		},
	}
	second := Hooks{
		OnPage:        func(PageReport) { calls = append(calls, "second page") },
		OnStateChange: func(_, to State) { calls = append(calls, "state "+string(to)) },
	}

	merged := MergeHooks(first, Hooks{}, second)
	require.Nil(t, merged.OnDownload)

	merged.OnPage(PageReport{})
	merged.OnRetry(1, time.Second, errors.New("x"))
	merged.OnStateChange(StateInit, StateDone)

	assert.Equal(t, []string{"first page", "second page", "first retry", "state DONE"}, calls)
}
