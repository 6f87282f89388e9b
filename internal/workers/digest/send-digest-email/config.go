package senddigestemail

import "time"

type Config struct {
	EmailEnabled bool
	FromEmail    string
	AWSRegion    string
	Timeout      time.Duration
}
