package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	likeerrors "likesync/pkg/errors"
	"likesync/pkg/logger"
	"likesync/pkg/ratelimit"
)

// Options configures a Client
type Options struct {
	BaseURL     string
	BearerToken string
	UserAgent   string
	Timeout     time.Duration
	// Limiter paces API calls; media downloads are not paced here
	Limiter    ratelimit.Limiter
	Logger     logger.Logger
	HTTPClient *http.Client
}

// Client talks to the v2 API and the media CDN
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	token      string
	limiter    ratelimit.Limiter
	logger     logger.Logger
	now        func() time.Time
}

// NewClient creates a new API client
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "likesync"
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	return &Client{
		httpClient: httpClient,
		headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "application/json",
		},
		baseURL: baseURL,
		token:   opts.BearerToken,
		limiter: limiter,
		logger:  log.WithField("component", "twitter"),
		now:     time.Now,
	}
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request, authorize bool) (*http.Response, error) {
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
	if authorize && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &likeerrors.Error{
			Type:    likeerrors.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}

	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, duration)
	return resp, nil
}

// GetJSON performs an authorized, paced GET and decodes the JSON response.
// The returned header is set even when the status check fails.
func (c *Client) GetJSON(ctx context.Context, url string, target interface{}) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &likeerrors.Error{
			Type:    likeerrors.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	resp, err := c.doRequest(req, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return resp.Header, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.Header, &likeerrors.Error{
			Type:    likeerrors.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return resp.Header, &likeerrors.Error{
			Type:    likeerrors.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
		}
	}

	return resp.Header, nil
}

// checkResponseStatus maps the HTTP status to a typed error
func (c *Client) checkResponseStatus(resp *http.Response) error {
	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", fields)
		return &likeerrors.Error{
			Type:    likeerrors.ErrorTypeAuth,
			Message: "bearer token rejected or missing",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusNotFound:
		c.logger.WarnWithFields("resource not found", fields)
		return &likeerrors.Error{
			Type:    likeerrors.ErrorTypeNotFound,
			Message: "resource not found",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := c.retryAfter(resp.Header)
		fields["retry_after"] = wait
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return &likeerrors.Error{
			Type:       likeerrors.ErrorTypeRateLimit,
			Message:    "rate limit exceeded",
			Code:       resp.StatusCode,
			RetryAfter: wait,
		}
	case resp.StatusCode >= 500:
		c.logger.ErrorWithFields("server error", fields)
		return &likeerrors.Error{
			Type:       likeerrors.ErrorTypeServerError,
			Message:    "server error",
			Code:       resp.StatusCode,
			RetryAfter: c.retryAfter(resp.Header),
		}
	default:
		c.logger.ErrorWithFields("unexpected API error", fields)
		return &likeerrors.Error{
			Type:    likeerrors.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
}

// retryAfter reads the server's wait hint: Retry-After seconds first, then
// the x-rate-limit-reset epoch. Zero when neither is usable.
func (c *Client) retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if reset := parseRateLimit(h).Reset; !reset.IsZero() {
		if wait := reset.Sub(c.now()); wait > 0 {
			return wait.Round(time.Second)
		}
	}
	return 0
}

func parseRateLimit(h http.Header) RateLimit {
	var rl RateLimit
	if h == nil {
		return rl
	}
	rl.Limit, _ = strconv.Atoi(h.Get("x-rate-limit-limit"))
	rl.Remaining, _ = strconv.Atoi(h.Get("x-rate-limit-remaining"))
	if epoch, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64); err == nil && epoch > 0 {
		rl.Reset = time.Unix(epoch, 0)
	}
	return rl
}

// LookupUser resolves a handle to a user
func (c *Client) LookupUser(ctx context.Context, username string) (*User, error) {
	username = SanitizeUsername(username)
	if !IsValidUsername(username) {
		return nil, fmt.Errorf("invalid username %q", username)
	}

	url := GetUserByUsernameURL(c.baseURL, username)
	c.logger.DebugWithFields("looking up user", map[string]interface{}{
		"username": username,
	})

	var response UserResponse
	if _, err := c.GetJSON(ctx, url, &response); err != nil {
		return nil, err
	}

	if response.Data == nil {
		msg := "user not found"
		if len(response.Errors) > 0 {
			msg = response.Errors[0].Detail
		}
		return nil, &likeerrors.Error{
			Type:    likeerrors.ErrorTypeNotFound,
			Message: msg,
			Code:    http.StatusOK,
		}
	}

	return response.Data, nil
}

// LikedTweets fetches one page of liked posts. An empty token requests the
// newest page. On error the returned RateLimit still reflects any headers.
func (c *Client) LikedTweets(ctx context.Context, userID, token string, maxResults int) (*LikedTweetsResponse, error) {
	url := GetLikedTweetsURL(c.baseURL, userID, token, maxResults)

	c.logger.DebugWithFields("fetching liked posts", map[string]interface{}{
		"user_id":    userID,
		"page_token": token,
	})

	var response LikedTweetsResponse
	header, err := c.GetJSON(ctx, url, &response)
	if err != nil {
		return &LikedTweetsResponse{RateLimit: parseRateLimit(header)}, err
	}
	response.RateLimit = parseRateLimit(header)

	for _, apiErr := range response.Errors {
		c.logger.DebugWithFields("partial error in liked posts page", map[string]interface{}{
			"title":  apiErr.Title,
			"detail": apiErr.Detail,
			"value":  apiErr.Value,
		})
	}

	return &response, nil
}

// OpenMedia starts a media download. The CDN is public, so no token is sent
// and the API limiter is bypassed. The caller closes the body.
func (c *Client) OpenMedia(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, &likeerrors.Error{
			Type:    likeerrors.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	req.Header.Set("Accept", "image/*")

	resp, err := c.doRequest(req, false)
	if err != nil {
		return nil, err
	}
	if err := c.checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}
