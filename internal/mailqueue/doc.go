// Package mailqueue creates, locates, moves, and removes spool files.
//
// A queue file is identified by its queue name (for example "incoming" or
// "active") and a queue id. Ids are composed from the microsecond part of
// the creation time and the inode of the file, so they are unique across
// the machine for as long as the file exists. Store.Enter allocates ids
// without any central coordination: it creates an exclusive temp file,
// derives the id from the file, and renames the file into place with a
// no-replace rename, bumping the microsecond fragment on collision.
//
// Queues named in the hashed list keep their files below a directory forest
// built from the leading characters of the id, which bounds directory
// fan-out for large queues such as "deferred".
//
// Queue names and ids handed to path computation must already be valid;
// invalid input panics because it indicates unsanitized caller data.
package mailqueue
