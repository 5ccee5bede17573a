package downloader

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	likeerrors "likesync/pkg/errors"
	"likesync/pkg/logger"
	"likesync/pkg/ratelimit"
	"likesync/pkg/storage"
)

// Job is a single media download
type Job struct {
	PostID   string
	Author   string
	URL      string
	PostedAt time.Time
}

// Filename is the name the media is stored under
func (j Job) Filename() string {
	return storage.MediaFilename(j.Author, j.URL, j.PostedAt)
}

// Result is the outcome of a Job
type Result struct {
	Job  Job
	Path string
	// Skipped is set when the file was already on disk and nothing was fetched
	Skipped  bool
	Err      error
	Duration time.Duration
	Size     int64
}

// Downloaded reports whether the job fetched and saved a new file
func (r Result) Downloaded() bool {
	return r.Err == nil && !r.Skipped
}

// MediaOpener starts a media download
type MediaOpener interface {
	OpenMedia(ctx context.Context, url string) (io.ReadCloser, error)
}

// MediaStorage stores downloaded media
type MediaStorage interface {
	Exists(filename string) bool
	Path(filename string) string
	SaveMedia(r io.Reader, filename string) (string, error)
}

// Pool runs downloads with bounded concurrency
type Pool struct {
	numWorkers  int
	client      MediaOpener
	storage     MediaStorage
	rateLimiter ratelimit.Limiter
	timeout     time.Duration
	logger      logger.Logger
}

// NewPool creates a download pool
func NewPool(
	numWorkers int,
	client MediaOpener,
	storage MediaStorage,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Pool{
		numWorkers:  numWorkers,
		client:      client,
		storage:     storage,
		rateLimiter: rateLimiter,
		logger:      log.WithField("component", "downloader"),
	}
}

// SetTimeout bounds each download; zero means no per-download limit
func (p *Pool) SetTimeout(d time.Duration) {
	p.timeout = d
}

// Workers returns the concurrency limit
func (p *Pool) Workers() int {
	return p.numWorkers
}

// DownloadAll runs every job and returns one result per job, in job order.
// Failures are reported in the results, never as a group error.
func (p *Pool) DownloadAll(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))

	var g errgroup.Group
	g.SetLimit(p.numWorkers)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = p.Download(ctx, job)
			return nil
		})
	}
	g.Wait()

	return results
}

// Download runs a single job
func (p *Pool) Download(ctx context.Context, job Job) Result {
	start := time.Now()
	filename := job.Filename()
	result := Result{Job: job, Path: p.storage.Path(filename)}

	fail := func(err error) Result {
		result.Err = &likeerrors.DownloadFailure{URL: job.URL, Path: result.Path, Err: err}
		result.Duration = time.Since(start)
		logger.LogDownload(p.logger, job.PostID, job.URL, result.Path, result.Err)
		return result
	}

	if p.storage.Exists(filename) {
		p.logger.DebugWithFields("Media already downloaded", map[string]interface{}{
			"post_id": job.PostID,
			"path":    result.Path,
		})
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return fail(err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	body, err := p.client.OpenMedia(ctx, job.URL)
	if err != nil {
		return fail(fmt.Errorf("download failed: %w", err))
	}
	defer body.Close()

	counter := &countingReader{r: body}
	path, err := p.storage.SaveMedia(counter, filename)
	if err != nil {
		return fail(fmt.Errorf("save failed: %w", err))
	}

	result.Path = path
	result.Size = counter.n
	result.Duration = time.Since(start)
	logger.LogDownload(p.logger, job.PostID, job.URL, path, nil)
	return result
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
