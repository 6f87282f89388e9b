package findmembermatches

import "time"

type Config struct {
	DefaultLimit int
	AITimeout    time.Duration
	Timeout      time.Duration
}
