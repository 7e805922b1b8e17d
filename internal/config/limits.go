package config

import "time"

const (
	// DefaultMessageCap is the per-session message limit. Once a session
	// exceeds it, the oldest message (and its parts) is evicted; older
	// history stays available server-side via load-earlier fetches.
	// 200 keeps even day-long agent sessions well under a few MB.
	DefaultMessageCap = 200

	// StreamThrottleInterval bounds streaming change notifications to
	// ~20 per second. Faster repaints are not perceptible; slower ones
	// make token streaming look chunky.
	StreamThrottleInterval = 50 * time.Millisecond

	// DefaultFetchLimit is the page size for message fetches (initial
	// hydrate and load-earlier).
	DefaultFetchLimit = 100

	// MaxSendTextLength is the maximum length for an outgoing prompt.
	// Matches the server's request limit; longer prompts should go in as
	// file parts.
	MaxSendTextLength = 32000

	// DefaultRequestTimeout applies to REST calls only. The event stream
	// deliberately runs on a client without a timeout.
	DefaultRequestTimeout = 30 * time.Second

	// MaxEventSize is the scanner buffer for one SSE line. Large tool
	// outputs arrive as single data lines, so this needs headroom.
	MaxEventSize = 1 << 20

	// StreamBackoffInitial and StreamBackoffMax bound the reconnect
	// backoff for the event stream.
	StreamBackoffInitial = 500 * time.Millisecond
	StreamBackoffMax     = 30 * time.Second

	// MaxLogFiles is how many timestamped log files to keep around.
	MaxLogFiles = 10
)
