package syncer

import (
	"context"
	"io"

	"likesync/pkg/twitter"
)

// Client is the API surface a sync run needs. *twitter.Client satisfies it.
type Client interface {
	LookupUser(ctx context.Context, username string) (*twitter.User, error)
	LikedTweets(ctx context.Context, userID, token string, maxResults int) (*twitter.LikedTweetsResponse, error)
	OpenMedia(ctx context.Context, url string) (io.ReadCloser, error)
}
