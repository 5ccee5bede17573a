package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"likesync/internal/downloader"
	"likesync/pkg/syncer"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// StatusTracker follows a sync run through the syncer hooks and renders a
// one-line status. Budget is the run's request cap; 0 hides the bar.
type StatusTracker struct {
	mu sync.Mutex

	Budget       int
	Pages        int
	NewPosts     int
	KnownPosts   int
	Downloaded   int
	Failed       int
	ExternalURLs int
	Retries      int
	State        syncer.State
	StartTime    time.Time
	now          func() time.Time
}

// NewStatusTracker creates a tracker for a run capped at budget requests
func NewStatusTracker(budget int) *StatusTracker {
	return &StatusTracker{
		Budget:    budget,
		StartTime: time.Now(),
		now:       time.Now,
	}
}

// Hooks returns syncer hooks feeding this tracker. When live is set every
// event repaints the status line.
func (st *StatusTracker) Hooks(live bool) syncer.Hooks {
	repaint := func() {
		if live {
			st.PrintProgress()
		}
	}
	return syncer.Hooks{
		OnStateChange: func(_, to syncer.State) {
			st.mu.Lock()
			st.State = to
			st.mu.Unlock()
		},
		OnPage: func(r syncer.PageReport) {
			st.RecordPage(r)
			repaint()
		},
		OnRetry: func(attempt int, wait time.Duration, err error) {
			st.mu.Lock()
			st.Retries++
			st.mu.Unlock()
			if live {
				fmt.Fprintf(Output, "\n%s attempt %d failed, waiting %s: %v\n",
					Yellow("[RETRY]"), attempt, wait.Round(time.Second), err)
			}
		},
		OnDownload: func(r downloader.Result) {
			st.RecordDownload(r)
			repaint()
		},
	}
}

// RecordPage adds a committed page to the totals. Downloads are counted by
// RecordDownload as they finish.
func (st *StatusTracker) RecordPage(r syncer.PageReport) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Pages++
	st.NewPosts += r.New
	st.KnownPosts += r.Known
	st.ExternalURLs += r.ExternalLinks
}

// RecordDownload counts a finished download. Skipped files count as
// neither downloaded nor failed.
func (st *StatusTracker) RecordDownload(r downloader.Result) {
	st.mu.Lock()
	defer st.mu.Unlock()
	switch {
	case r.Err != nil:
		st.Failed++
	case r.Downloaded():
		st.Downloaded++
	}
}

// GetBudgetProgress renders the request budget bar from the fetch attempts
// seen so far: one per committed page plus one per retry
func (st *StatusTracker) GetBudgetProgress() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return budgetBar(st.Pages+st.Retries, st.Budget)
}

func budgetBar(used, budget int) string {
	if budget <= 0 {
		return fmt.Sprintf("%d requests", used)
	}
	filled := used * barWidth / budget
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, used, budget)
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return st.now().Sub(st.StartTime)
}

// GetDownloadRate returns downloads per minute
func (st *StatusTracker) GetDownloadRate() float64 {
	elapsed := st.GetElapsedTime().Minutes()
	if elapsed == 0 {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return float64(st.Downloaded) / elapsed
}

// Line renders the status line without a carriage return
func (st *StatusTracker) Line() string {
	bar := st.GetBudgetProgress()
	st.mu.Lock()
	defer st.mu.Unlock()
	return fmt.Sprintf("%s pages: %d | new: %d | known: %d | images: %d | links: %d | failed: %d | %s",
		Green("[SYNC]"), st.Pages, st.NewPosts, st.KnownPosts, st.Downloaded, st.ExternalURLs, st.Failed, bar)
}

// PrintProgress repaints the status line in place
func (st *StatusTracker) PrintProgress() {
	fmt.Fprintf(Output, "\r%s", st.Line())
}

// PrintSummary prints the outcome of a run
func PrintSummary(result *syncer.Result) {
	if result == nil {
		return
	}
	fmt.Fprintln(Output)
	PrintHighlight("Sync summary")
	user := result.UserID
	if result.Username != "" {
		user = fmt.Sprintf("@%s (%s)", result.Username, result.UserID)
	}
	PrintInfo("User", user)
	PrintInfo("Stopped", string(result.StopReason))
	PrintInfo("Pages", fmt.Sprint(result.Pages))
	PrintInfo("Requests", fmt.Sprint(result.Requests))
	PrintInfo("New liked posts", fmt.Sprint(result.Counters.TotalLikedSeen))
	PrintInfo("Already known", fmt.Sprint(result.AlreadyKnown))
	PrintInfo("Images downloaded", fmt.Sprint(result.Counters.ImagesDownloaded))
	PrintInfo("External links", fmt.Sprint(result.Counters.NonNativeURLCount))
	if result.FailedDownloads > 0 {
		PrintWarning("Failed downloads", result.FailedDownloads)
	}
	PrintInfo("Duration", result.Duration.Round(time.Millisecond).String())
	PrintInfo("Lifetime images", fmt.Sprint(result.Totals.ImagesDownloaded))
}
