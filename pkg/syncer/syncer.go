package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"likesync/internal/downloader"
	"likesync/pkg/config"
	"likesync/pkg/cursor"
	"likesync/pkg/knownposts"
	"likesync/pkg/linksink"
	"likesync/pkg/logger"
	"likesync/pkg/paginator"
	"likesync/pkg/ratelimit"
	"likesync/pkg/retry"
	"likesync/pkg/storage"
	"likesync/pkg/twitter"
)

var errBudgetSpent = errors.New("request budget spent")

// Options are the inputs of one run
type Options struct {
	// User is a handle or a numeric user id
	User string
	// Folder overrides output.images_folder
	Folder string
	// PageToken starts this run at the given page instead of the stored one
	PageToken       string
	IgnoreProcessed bool
	Verbose         bool
	// MaxAttempts bounds fetch attempts per page; 0 uses retry.max_attempts
	MaxAttempts int
	// PageSize is the max_results hint; 0 uses twitter.page_size
	PageSize int
	// MaxRequests caps API requests this run. 0 uses
	// rate_limit.max_requests_per_run, negative disables the cap.
	MaxRequests int
	StopAtKnown bool
}

// PageReport summarizes one committed page
type PageReport struct {
	Page          int
	Posts         int
	New           int
	Known         int
	Downloaded    int
	Failed        int
	ExternalLinks int
	NextToken     string
	RateLimit     twitter.RateLimit
}

// Hooks observe a run. Every hook is optional and called on the goroutine
// running Run.
type Hooks struct {
	OnStateChange func(from, to State)
	OnPage        func(PageReport)
	OnRetry       func(attempt int, wait time.Duration, err error)
	OnDownload    func(downloader.Result)
}

// MergeHooks returns hooks that call each of hs in order
func MergeHooks(hs ...Hooks) Hooks {
	var merged Hooks
	for _, h := range hs {
		if h.OnStateChange != nil {
			prev, next := merged.OnStateChange, h.OnStateChange
			merged.OnStateChange = func(from, to State) {
				if prev != nil {
					prev(from, to)
				}
				next(from, to)
			}
		}
		if h.OnPage != nil {
			prev, next := merged.OnPage, h.OnPage
			merged.OnPage = func(r PageReport) {
				if prev != nil {
					prev(r)
				}
				next(r)
			}
		}
		if h.OnRetry != nil {
			prev, next := merged.OnRetry, h.OnRetry
			merged.OnRetry = func(attempt int, wait time.Duration, err error) {
				if prev != nil {
					prev(attempt, wait, err)
				}
				next(attempt, wait, err)
			}
		}
		if h.OnDownload != nil {
			prev, next := merged.OnDownload, h.OnDownload
			merged.OnDownload = func(r downloader.Result) {
				if prev != nil {
					prev(r)
				}
				next(r)
			}
		}
	}
	return merged
}

// Result is what a run accomplished. It is returned even when Run fails.
type Result struct {
	UserID   string
	Username string
	// Counters is what this run added to the persisted counters
	Counters cursor.Counters
	// Totals are the persisted counters when the run ended
	Totals cursor.Counters
	// Requests counts every API request this run made, failed ones included
	Requests        int
	AlreadyKnown    int
	FailedDownloads int
	Failures        []error
	Pages           int
	StopReason      StopReason
	Duration        time.Duration
}

// Syncer runs the sync state machine for one user at a time
type Syncer struct {
	cfg    *config.Config
	client Client
	logger logger.Logger
	hooks  Hooks
	sleep  func(context.Context, time.Duration) error

	mu    sync.RWMutex
	state State
}

// New creates a Syncer
func New(cfg *config.Config, client Client, log logger.Logger) *Syncer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Syncer{
		cfg:    cfg,
		client: client,
		logger: log.WithField("component", "syncer"),
		sleep:  retry.Wait,
		state:  StateInit,
	}
}

// SetHooks replaces the run observers
func (s *Syncer) SetHooks(h Hooks) {
	s.hooks = h
}

// State returns the current state
func (s *Syncer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Syncer) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from == to {
		return
	}
	s.logger.DebugWithFields("State change", map[string]interface{}{
		"from": from,
		"to":   to,
	})
	if s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange(from, to)
	}
}

// session is the per-run working set
type session struct {
	opts        Options
	log         logger.Logger
	result      *Result
	store       knownposts.Store
	cursor      *cursor.Manager
	sink        *linksink.Sink
	pages       *paginator.Paginator
	pool        *downloader.Pool
	pageSize    int
	maxAttempts int
	budget      int
	// unsaved holds counts not yet folded into a cursor advance
	unsaved cursor.Counters
}

func (ss *session) budgetSpent() bool {
	return ss.budget > 0 && ss.result.Requests >= ss.budget
}

// Run syncs the likes of opts.User until the API reports no further pages,
// the budget is spent, the context is cancelled or a fatal error occurs.
// Durable state always reflects the last committed page.
func (s *Syncer) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	result := &Result{}

	s.setState(StateInit)
	err := s.run(ctx, opts, result)
	result.Duration = time.Since(start)

	fields := map[string]interface{}{
		"user_id":         result.UserID,
		"pages":           result.Pages,
		"requests":        result.Requests,
		"new_likes":       result.Counters.TotalLikedSeen,
		"images":          result.Counters.ImagesDownloaded,
		"external_links":  result.Counters.NonNativeURLCount,
		"already_known":   result.AlreadyKnown,
		"failed_download": result.FailedDownloads,
		"duration":        result.Duration,
	}

	if err != nil {
		if result.StopReason == "" {
			result.StopReason = StopError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				result.StopReason = StopCancelled
			}
		}
		fields["stop_reason"] = result.StopReason
		s.logger.WithFields(fields).WithError(err).Error("Sync terminated")
		s.setState(StateTerminated)
		return result, err
	}

	fields["stop_reason"] = result.StopReason
	s.logger.InfoWithFields("Sync finished", fields)
	s.setState(StateTerminated)
	return result, nil
}

func (s *Syncer) run(ctx context.Context, opts Options, result *Result) error {
	ss := &session{opts: opts, result: result}

	ss.budget = opts.MaxRequests
	if ss.budget == 0 {
		ss.budget = s.cfg.RateLimit.MaxRequestsPerRun
	}
	ss.maxAttempts = opts.MaxAttempts
	if ss.maxAttempts <= 0 {
		ss.maxAttempts = s.cfg.Retry.MaxAttempts
	}
	ss.pageSize = opts.PageSize
	if ss.pageSize <= 0 {
		ss.pageSize = s.cfg.Twitter.PageSize
	}

	userID, err := s.resolveUser(ctx, ss)
	if err != nil {
		return err
	}
	result.UserID = userID
	ss.log = s.logger.WithField("user_id", userID)

	s.setState(StateLoading)
	if err := s.load(ss, userID); err != nil {
		return err
	}
	defer ss.store.Close()
	defer func() { result.Totals = ss.cursor.State().Counters }()

	token, _ := ss.cursor.State().Token()
	if opts.PageToken != "" {
		token = opts.PageToken
		ss.log.InfoWithFields("Starting from explicit page token", map[string]interface{}{
			"page_token": token,
		})
	}

	for {
		if err := ctx.Err(); err != nil {
			result.StopReason = StopCancelled
			return err
		}
		if ss.budgetSpent() {
			result.StopReason = StopBudget
			break
		}

		s.setState(StateFetching)
		page, err := s.fetch(ctx, ss, token)
		if errors.Is(err, errBudgetSpent) {
			result.StopReason = StopBudget
			break
		}
		if err != nil {
			return err
		}

		s.setState(StateClassifying)
		delta, report, sawKnown, err := s.classify(ctx, ss, page)
		if err != nil {
			return err
		}

		s.setState(StateCommitting)
		next, stop := page.NextToken, StopReason("")
		switch {
		case page.Done:
			stop = StopDone
		case opts.StopAtKnown && sawKnown:
			next, stop = cursor.EndOfPages, StopKnown
		}
		if err := s.commit(ss, next, delta); err != nil {
			return err
		}

		result.Pages++
		report.Page = result.Pages
		report.NextToken = next
		logger.LogPage(ss.log, userID, report.Page, report.Posts, report.New, next)
		if s.hooks.OnPage != nil {
			s.hooks.OnPage(report)
		}

		if stop != "" {
			result.StopReason = stop
			break
		}
		token = next
	}

	s.setState(StateDone)
	return nil
}

// resolveUser turns a handle into a user id. A numeric id costs no request.
func (s *Syncer) resolveUser(ctx context.Context, ss *session) (string, error) {
	name := twitter.SanitizeUsername(ss.opts.User)
	if name == "" {
		return "", fmt.Errorf("a user handle or id is required")
	}
	if twitter.IsNumericID(name) {
		return name, nil
	}

	ss.result.Requests++
	ss.unsaved.APIRequestsMade++
	user, err := s.client.LookupUser(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve user %s: %w", name, err)
	}
	ss.result.Username = user.Username
	s.logger.InfoWithFields("Resolved user", map[string]interface{}{
		"username": user.Username,
		"user_id":  user.ID,
	})
	return user.ID, nil
}

// load opens the known posts store before touching the cursor, so a corrupt
// store stops the run with nothing mutated
func (s *Syncer) load(ss *session, userID string) error {
	layout, err := storage.NewLayout(s.cfg.Output.BaseDirectory, userID)
	if err != nil {
		return err
	}
	if err := layout.Ensure(); err != nil {
		return err
	}

	store, err := knownposts.Open(s.cfg.Store, layout, ss.log)
	if err != nil {
		return fmt.Errorf("failed to load known posts: %w", err)
	}

	cur := cursor.NewManager(layout.CursorPath(), ss.log)
	state, err := cur.Load(userID)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to load cursor: %w", err)
	}
	if state.IsComplete() && ss.opts.PageToken == "" {
		ss.log.Info("Previous pass complete, starting from the newest like")
		if err := cur.Restart(); err != nil {
			store.Close()
			return err
		}
	}

	folder := ss.opts.Folder
	if folder == "" {
		folder = s.cfg.Output.ImagesFolder
	}
	media, err := storage.NewManager(layout.ImagesDir(folder))
	if err != nil {
		store.Close()
		return err
	}

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if n := s.cfg.Download.DownloadsPerSecond; n > 0 {
		limiter = ratelimit.NewTokenBucket(n, time.Second)
	}
	pool := downloader.NewPool(s.cfg.Download.ConcurrentDownloads, s.client, media, limiter, ss.log)
	pool.SetTimeout(s.cfg.Download.DownloadTimeout)

	ss.store = store
	ss.cursor = cur
	ss.sink = linksink.New(layout.ExternalLinksPath())
	ss.pool = pool
	ss.pages = paginator.New(s.client, userID, paginator.Options{
		NativeHosts: s.cfg.Download.NativeHosts,
		DefaultWait: s.cfg.RateLimit.DefaultWait,
	}, ss.log)

	ss.log.InfoWithFields("State loaded", map[string]interface{}{
		"known_posts": store.Len(),
		"backend":     store.Stats().Backend,
		"images_dir":  media.OutputDir(),
	})
	return nil
}

// fetch requests one page, retrying retryable failures. Every attempt is
// counted as a request.
func (s *Syncer) fetch(ctx context.Context, ss *session, token string) (*paginator.Page, error) {
	cfg := &retry.Config{
		MaxAttempts: ss.maxAttempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    s.cfg.Retry.BaseDelay,
			MaxDelay:     s.cfg.Retry.MaxDelay,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		MaxDelay: s.cfg.Retry.MaxDelay,
		Logger:   ss.log,
		Sleep:    s.sleep,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			logger.LogRateLimit(ss.log, "liked_tweets", wait, attempt)
			if s.hooks.OnRetry != nil {
				s.hooks.OnRetry(attempt, wait, err)
			}
		},
	}

	return retry.DoWithResult(ctx, func(attempt int) (*paginator.Page, error) {
		if attempt > 1 && ss.budgetSpent() {
			return nil, errBudgetSpent
		}
		ss.result.Requests++
		ss.unsaved.APIRequestsMade++
		return ss.pages.FetchNextPage(ctx, token, ss.pageSize)
	}, cfg)
}

// classify applies the per post rules, downloads native media, records
// external links and stages new identifiers. Nothing is staged when the
// context is cancelled during downloads.
func (s *Syncer) classify(ctx context.Context, ss *session, page *paginator.Page) (cursor.Counters, PageReport, bool, error) {
	var delta cursor.Counters
	report := PageReport{Posts: len(page.Posts), RateLimit: page.RateLimit}

	var (
		jobs     []downloader.Job
		fresh    []string
		external []paginator.PostSummary
		sawKnown bool
		seen     = make(map[string]bool, len(page.Posts))
	)

	for _, post := range page.Posts {
		fields := map[string]interface{}{
			"post_id": post.ID,
			"author":  post.AuthorUsername,
		}

		if seen[post.ID] {
			s.postLog(ss, "Skipping repeated post within page", fields)
			continue
		}
		if ss.store.Contains(post.ID) {
			seen[post.ID] = true
			sawKnown = true
			report.Known++
			ss.result.AlreadyKnown++
			if !ss.opts.IgnoreProcessed {
				s.postLog(ss, "Skipping known post", fields)
				continue
			}
			s.postLog(ss, "Re-downloading known post", fields)
			jobs = append(jobs, jobsFor(post)...)
			continue
		}
		seen[post.ID] = true

		delta.TotalLikedSeen++
		report.New++
		fresh = append(fresh, post.ID)

		if !post.HasNative() {
			delta.NonNativeURLCount++
			report.ExternalLinks++
			external = append(external, post)
			fields["media_urls"] = len(post.Media)
			s.postLog(ss, "No native media, recording link", fields)
			continue
		}

		postJobs := jobsFor(post)
		fields["images"] = len(postJobs)
		s.postLog(ss, "Queueing native media", fields)
		jobs = append(jobs, postJobs...)
	}

	if len(jobs) > 0 {
		for _, res := range ss.pool.DownloadAll(ctx, jobs) {
			switch {
			case res.Downloaded():
				delta.ImagesDownloaded++
				report.Downloaded++
			case res.Err != nil:
				report.Failed++
				ss.result.FailedDownloads++
				ss.result.Failures = append(ss.result.Failures, res.Err)
			}
			if s.hooks.OnDownload != nil {
				s.hooks.OnDownload(res)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return delta, report, sawKnown, err
	}

	for _, post := range external {
		if err := ss.sink.Append(post.URL); err != nil {
			return delta, report, sawKnown, err
		}
	}
	for _, id := range fresh {
		ss.store.Stage(id)
	}

	return delta, report, sawKnown, nil
}

// commit makes the staged identifiers durable, then advances the cursor
func (s *Syncer) commit(ss *session, next string, delta cursor.Counters) error {
	if _, err := ss.store.Commit(); err != nil {
		return err
	}

	delta = delta.Add(ss.unsaved)
	if err := ss.cursor.Advance(next, delta); err != nil {
		return err
	}
	ss.unsaved = cursor.Counters{}
	ss.result.Counters = ss.result.Counters.Add(delta)
	return nil
}

func (s *Syncer) postLog(ss *session, msg string, fields map[string]interface{}) {
	if ss.opts.Verbose {
		ss.log.InfoWithFields(msg, fields)
		return
	}
	ss.log.DebugWithFields(msg, fields)
}

func jobsFor(post paginator.PostSummary) []downloader.Job {
	native := post.NativeMedia()
	jobs := make([]downloader.Job, 0, len(native))
	for _, m := range native {
		jobs = append(jobs, downloader.Job{
			PostID:   post.ID,
			Author:   post.AuthorUsername,
			URL:      m.URL,
			PostedAt: post.CreatedAt,
		})
	}
	return jobs
}
