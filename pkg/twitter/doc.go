// Package twitter is a small client for the v2 endpoints the sync engine
// uses: user lookup by handle and the paginated liked posts listing. It also
// opens media downloads from the public CDN.
//
// Non-2xx responses become *errors.Error values carrying the server's
// suggested wait, read from Retry-After or x-rate-limit-reset.
package twitter
