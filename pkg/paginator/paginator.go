package paginator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"likesync/pkg/cursor"
	likeerrors "likesync/pkg/errors"
	"likesync/pkg/logger"
	"likesync/pkg/twitter"
)

// LikesClient is the API surface the paginator needs
type LikesClient interface {
	LikedTweets(ctx context.Context, userID, token string, maxResults int) (*twitter.LikedTweetsResponse, error)
}

// MediaURL is one candidate media location of a post
type MediaURL struct {
	URL      string
	MediaKey string
	Native   bool
}

// PostSummary is a liked post reduced to what classification needs
type PostSummary struct {
	ID             string
	AuthorUsername string
	CreatedAt      time.Time
	// URL is the canonical link to the post itself
	URL   string
	Media []MediaURL
}

// NativeMedia returns the candidates hosted on a native domain, in order
func (p PostSummary) NativeMedia() []MediaURL {
	var out []MediaURL
	for _, m := range p.Media {
		if m.Native {
			out = append(out, m)
		}
	}
	return out
}

// HasNative reports whether any candidate is native
func (p PostSummary) HasNative() bool {
	for _, m := range p.Media {
		if m.Native {
			return true
		}
	}
	return false
}

// Page is one fetched page of liked posts
type Page struct {
	Posts []PostSummary
	// NextToken is the token of the following page, or cursor.EndOfPages
	// when Done is set
	NextToken string
	Done      bool
	RateLimit twitter.RateLimit
}

// Options tune classification and throttling hints
type Options struct {
	// NativeHosts are the media hosts downloaded directly. Subdomains match.
	NativeHosts []string
	// DefaultWait is suggested on throttling when the server gave no hint
	DefaultWait time.Duration
}

// Paginator fetches and classifies pages of one user's likes
type Paginator struct {
	client      LikesClient
	userID      string
	nativeHosts []string
	defaultWait time.Duration
	logger      logger.Logger
}

// New creates a paginator for userID
func New(client LikesClient, userID string, opts Options, log logger.Logger) *Paginator {
	if log == nil {
		log = logger.NewNopLogger()
	}
	hosts := make([]string, 0, len(opts.NativeHosts))
	for _, h := range opts.NativeHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	wait := opts.DefaultWait
	if wait <= 0 {
		wait = time.Minute
	}

	return &Paginator{
		client:      client,
		userID:      userID,
		nativeHosts: hosts,
		defaultWait: wait,
		logger:      log.WithFields(map[string]interface{}{"component": "paginator", "user_id": userID}),
	}
}

// FetchNextPage requests the page at token (empty for the newest page).
// Throttling and transient failures are returned as
// *errors.RetryableFetchError; everything else is final.
func (p *Paginator) FetchNextPage(ctx context.Context, token string, pageSize int) (*Page, error) {
	resp, err := p.client.LikedTweets(ctx, p.userID, token, twitter.ClampPageSize(pageSize))
	if err != nil {
		var rl twitter.RateLimit
		if resp != nil {
			rl = resp.RateLimit
		}
		return nil, p.classifyError(err, rl)
	}

	page := &Page{
		Posts:     p.summarize(resp),
		NextToken: resp.Meta.NextToken,
		RateLimit: resp.RateLimit,
	}
	if page.NextToken == "" {
		page.Done = true
		page.NextToken = cursor.EndOfPages
	}

	p.logger.DebugWithFields("page fetched", map[string]interface{}{
		"posts":      len(page.Posts),
		"next_token": page.NextToken,
		"remaining":  resp.RateLimit.Remaining,
	})
	return page, nil
}

func (p *Paginator) classifyError(err error, rl twitter.RateLimit) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *likeerrors.Error
	if !errors.As(err, &apiErr) || !likeerrors.IsRetryable(apiErr.Type) {
		return fmt.Errorf("fetch liked posts: %w", err)
	}

	wait := apiErr.RetryAfter
	if wait <= 0 && apiErr.Type == likeerrors.ErrorTypeRateLimit {
		wait = p.defaultWait
		if !rl.Reset.IsZero() {
			if d := time.Until(rl.Reset); d > 0 {
				wait = d
			}
		}
	}
	return &likeerrors.RetryableFetchError{Wait: wait, Cause: err}
}

// summarize maps the API page to post summaries, keeping API order
func (p *Paginator) summarize(resp *twitter.LikedTweetsResponse) []PostSummary {
	authors := resp.UsernameByID()
	media := resp.MediaByKey()

	posts := make([]PostSummary, 0, len(resp.Data))
	for _, t := range resp.Data {
		author := authors[t.AuthorID]
		post := PostSummary{
			ID:             t.ID,
			AuthorUsername: author,
			CreatedAt:      t.CreatedAt,
			URL:            twitter.GetPostURL(author, t.ID),
		}

		seen := make(map[string]bool)
		add := func(u, key string) {
			if u == "" || seen[u] {
				return
			}
			seen[u] = true
			post.Media = append(post.Media, MediaURL{URL: u, MediaKey: key, Native: p.IsNative(u)})
		}

		for _, key := range t.MediaKeys() {
			if m, ok := media[key]; ok && m.Type == "photo" {
				add(m.URL, key)
			}
		}
		if t.Entities != nil {
			for _, e := range t.Entities.URLs {
				if !isSelfLink(e.ExpandedURL) {
					add(e.ExpandedURL, "")
				}
			}
		}

		posts = append(posts, post)
	}
	return posts
}

// IsNative reports whether raw is served by one of the native hosts
func (p *Paginator) IsNative(raw string) bool {
	host := hostOf(raw)
	if host == "" {
		return false
	}
	for _, h := range p.nativeHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// isSelfLink matches links back into the site itself: quoted posts and
// the pic.twitter.com stand-ins for attached media
func isSelfLink(raw string) bool {
	switch host := strings.TrimPrefix(hostOf(raw), "www."); host {
	case "":
		return true
	case "twitter.com", "x.com", "mobile.twitter.com", "mobile.x.com", "pic.twitter.com", "pic.x.com", "t.co":
		return true
	}
	return false
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
