// Package storage owns the on-disk layout of a user's sync state and the
// file primitives shared by every durable writer.
//
// Layout resolves the per-user paths (cursor file, shard directory, external
// link file, image folder). WriteAtomic replaces a file through a temporary
// sibling and a rename, so readers observe either the old or the new content.
// Manager saves downloaded media under the original naming scheme:
//
//	(author)[twitter]<media id>_<YYYYMMDD>.<ext>
package storage
