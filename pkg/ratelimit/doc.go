// Package ratelimit paces requests to the API and the media CDN.
//
// SlidingWindow mirrors the API's "N requests per 15 minutes" windows and is
// used for page fetches. TokenBucket refills once per period and paces media
// downloads. Both block in Wait until a slot frees up or the context ends:
//
//	limiter := ratelimit.NewSlidingWindow(75, 15*time.Minute)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
