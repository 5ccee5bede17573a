// Package syncer drives a resumable sync of one user's liked posts.
//
// A run walks the states INIT, LOADING_STATE, then FETCHING_PAGE,
// CLASSIFYING_POSTS and COMMITTING_PAGE once per page, and finally DONE and
// TERMINATED. Any error jumps straight to TERMINATED.
//
// Each page is committed before the next one is requested: new identifiers
// are appended to the known posts store first, then the cursor is advanced
// to the page's next token. An interrupted run therefore resumes at the
// first page that was not committed, and posts from committed pages are
// never downloaded or recorded again.
//
// Per post:
//
//   - already known: skipped, only counted in Result.AlreadyKnown
//   - no native media: its URL is appended to external_urls.txt
//   - otherwise: every native image is downloaded
//
// New posts are staged whatever their download outcome; failed downloads
// are reported in Result.Failures and never stop the run.
package syncer
