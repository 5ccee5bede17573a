// Package knownposts stores the identifiers of posts a user's sync has
// already processed.
//
// The default backend is a segmented log of text shards:
//
//	known_posts/
//	    index.json   shard count, per shard sizes, capacity
//	    1.txt        one identifier per line, at most capacity lines
//	    2.txt
//
// Every commit appends to the current shard only, and a new shard is opened
// once the current one is full. On load the shard files are authoritative:
// index.json is cross checked, lines appended after the last index write are
// adopted, and a torn final line is dropped. Duplicate identifiers, gaps and
// anything else that does not add up are reported as a CorruptShardError
// before any file is touched. A failed commit truncates the shards it touched
// back to their previous size.
//
// An SQLite backend with the same contract is available for users who prefer
// a single database file.
package knownposts
