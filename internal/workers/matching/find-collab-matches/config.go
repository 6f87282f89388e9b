package findcollabmatches

import "time"

type Config struct {
	MaxPool   int // open requests considered per query
	Shortlist int // matches returned
	AITimeout time.Duration
	Timeout   time.Duration
}
