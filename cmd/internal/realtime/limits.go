package realtime

import "time"

const (
	defaultQueueSize   = 100
	defaultRepeatDelay = 100 * time.Millisecond

	// heartbeatInterval is the longest a stream stays silent.
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	streamWriteTimeout = 10 * time.Second
)
