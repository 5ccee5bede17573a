package twitter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the base URL of the v2 API
	BaseURL = "https://api.twitter.com"

	// UserByUsernameEndpoint resolves a handle to a user object
	UserByUsernameEndpoint = "/2/users/by/username/%s"

	// LikedTweetsEndpoint lists the posts a user liked, newest first
	LikedTweetsEndpoint = "/2/users/%s/liked_tweets"

	// WebURL is used to build links to individual posts
	WebURL = "https://twitter.com"

	// MinPageSize and MaxPageSize bound max_results on liked_tweets
	MinPageSize     = 5
	MaxPageSize     = 100
	DefaultPageSize = 100
)

// GetUserByUsernameURL constructs the lookup URL for a handle
func GetUserByUsernameURL(base, username string) string {
	return strings.TrimRight(base, "/") + fmt.Sprintf(UserByUsernameEndpoint, url.PathEscape(username))
}

// GetLikedTweetsURL constructs the liked posts URL for one page. An empty
// token requests the newest page.
func GetLikedTweetsURL(base, userID, token string, maxResults int) string {
	params := url.Values{}
	params.Set("expansions", "author_id,attachments.media_keys")
	params.Set("tweet.fields", "created_at,entities,attachments")
	params.Set("user.fields", "username")
	params.Set("media.fields", "url,type")
	params.Set("max_results", strconv.Itoa(ClampPageSize(maxResults)))
	if token != "" {
		params.Set("pagination_token", token)
	}

	return fmt.Sprintf("%s%s?%s",
		strings.TrimRight(base, "/"),
		fmt.Sprintf(LikedTweetsEndpoint, url.PathEscape(userID)),
		params.Encode())
}

// ClampPageSize keeps a page size hint inside what the endpoint accepts
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n < MinPageSize:
		return MinPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

// GetPostURL constructs the public URL of a post
func GetPostURL(author, id string) string {
	if id == "" {
		return ""
	}
	if author == "" {
		author = "i/web"
	}
	return fmt.Sprintf("%s/%s/status/%s", WebURL, author, id)
}

// IsValidUsername checks handle rules: 1 to 15 letters, digits or underscores
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 15 {
		return false
	}
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}
	return true
}

// IsNumericID reports whether s looks like a user id rather than a handle
func IsNumericID(s string) bool {
	if s == "" {
		return false
	}
	for _, char := range s {
		if char < '0' || char > '9' {
			return false
		}
	}
	return true
}

// SanitizeUsername strips a leading @ and trailing slashes or spaces
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}
