// Package inbox imports inbound mail as contact-form replies.
//
// A Reader yields unseen messages and marks them seen. Syncer stores each
// one as an unread queue.Reply, filling in "Unknown" for a missing sender
// and "No Subject" for a missing subject. Without a Reader, Sync logs and
// does nothing.
//
// DirReader reads RFC 5322 files from a maildir-style new/ directory and
// moves them to cur/ once stored.
package inbox
