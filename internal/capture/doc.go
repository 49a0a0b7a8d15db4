// Package capture defines the frame source contract consumed by session
// workers and provides the built-in sources: a bounded push queue for
// callback-style producers and a UDP ingest that routes network audio
// frames to their owning session's queue.
package capture
