package runweeklydigest

import "time"

type Config struct {
	MinScore   int // matches below this score don't qualify
	MinMatches int // members with fewer qualifying matches are skipped
	MaxMatches int // matches included per digest
	ScoreCap   int // digest scores never exceed this
	Timeout    time.Duration
}
