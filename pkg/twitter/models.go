package twitter

import "time"

// User is the subset of a v2 user object the sync engine needs
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// UserResponse is the body of a user lookup
type UserResponse struct {
	Data   *User      `json:"data"`
	Errors []APIError `json:"errors,omitempty"`
}

// Tweet is a single liked post
type Tweet struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	AuthorID    string       `json:"author_id"`
	CreatedAt   time.Time    `json:"created_at"`
	Attachments *Attachments `json:"attachments,omitempty"`
	Entities    *Entities    `json:"entities,omitempty"`
}

// MediaKeys returns the attached media keys, if any
func (t Tweet) MediaKeys() []string {
	if t.Attachments == nil {
		return nil
	}
	return t.Attachments.MediaKeys
}

// Attachments lists the media attached to a tweet
type Attachments struct {
	MediaKeys []string `json:"media_keys"`
}

// Entities holds the parsed parts of the tweet text
type Entities struct {
	URLs []URLEntity `json:"urls"`
}

// URLEntity is a t.co link with its expansion
type URLEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
	DisplayURL  string `json:"display_url"`
	MediaKey    string `json:"media_key,omitempty"`
}

// Media is an expanded attachment
type Media struct {
	MediaKey string `json:"media_key"`
	Type     string `json:"type"`
	// URL is only set for photos
	URL string `json:"url,omitempty"`
}

// Includes holds the objects requested through expansions
type Includes struct {
	Users []User  `json:"users"`
	Media []Media `json:"media"`
}

// Meta carries pagination information
type Meta struct {
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token,omitempty"`
}

// APIError is a partial error reported inside a 200 response
type APIError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Value  string `json:"value,omitempty"`
}

// LikedTweetsResponse is one page of a user's liked posts
type LikedTweetsResponse struct {
	Data     []Tweet    `json:"data"`
	Includes Includes   `json:"includes"`
	Meta     Meta       `json:"meta"`
	Errors   []APIError `json:"errors,omitempty"`

	// RateLimit is filled from the response headers
	RateLimit RateLimit `json:"-"`
}

// UsernameByID indexes the expanded authors
func (r *LikedTweetsResponse) UsernameByID() map[string]string {
	out := make(map[string]string, len(r.Includes.Users))
	for _, u := range r.Includes.Users {
		out[u.ID] = u.Username
	}
	return out
}

// MediaByKey indexes the expanded media
func (r *LikedTweetsResponse) MediaByKey() map[string]Media {
	out := make(map[string]Media, len(r.Includes.Media))
	for _, m := range r.Includes.Media {
		out[m.MediaKey] = m
	}
	return out
}

// RateLimit is the x-rate-limit-* header triple. Zero values mean the
// header was absent.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Known reports whether the response carried rate limit headers
func (r RateLimit) Known() bool {
	return r.Limit > 0 || !r.Reset.IsZero()
}
