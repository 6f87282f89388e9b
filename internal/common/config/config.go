package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Matching MatchingConfig          `mapstructure:"matching"`
	AI       AIConfig                `mapstructure:"ai"`
	Digest   DigestConfig            `mapstructure:"digest"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MatchingConfig holds the scoring constants. These mirror product decisions
// and are configuration, not derived invariants.
type MatchingConfig struct {
	AdHocScoreFloor   int `mapstructure:"adhoc_score_floor"`   // 30
	AdHocScoreCeiling int `mapstructure:"adhoc_score_ceiling"` // 99
	JitterBound       int `mapstructure:"jitter_bound"`        // 10
	DigestScoreCap    int `mapstructure:"digest_score_cap"`    // 98
	DefaultLimit      int `mapstructure:"default_limit"`       // 10
}

// AIConfig holds settings for the Gemini-backed match advisor.
type AIConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	APIKey          string `mapstructure:"api_key"`
	Model           string `mapstructure:"model"`
	Timeout         int    `mapstructure:"timeout"`          // milliseconds
	MaxMemberPool   int    `mapstructure:"max_member_pool"`  // 50
	MaxCollabPool   int    `mapstructure:"max_collab_pool"`  // 20
	MemberShortlist int    `mapstructure:"member_shortlist"` // 10
	CollabShortlist int    `mapstructure:"collab_shortlist"` // 5
}

// DigestConfig holds settings for the weekly digest workers.
type DigestConfig struct {
	MinScore   int `mapstructure:"min_score"`   // quality gate, 60
	MinMatches int `mapstructure:"min_matches"` // skip below this, 3
	MaxMatches int `mapstructure:"max_matches"` // top-N per digest, 5

	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
