package models

import "time"

// SpecialFilePattern is one entry of RunOptions.SpecialFilePatterns: the
// first pattern (in order) whose Regex matches a file's relative path wins.
type SpecialFilePattern struct {
	Regex string `yaml:"regex" validate:"required"`
	Type  string `yaml:"type" validate:"required"`
}

// LLMOptions configures the LLMClient connection (spec.md §6 "llm" field).
type LLMOptions struct {
	Endpoint string        `yaml:"endpoint" validate:"required,url"`
	APIKey   string        `yaml:"api_key" validate:"required"`
	Model    string        `yaml:"model" validate:"required"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RelStoreOptions configures the RelStore connection.
type RelStoreOptions struct {
	DSN string `yaml:"dsn" validate:"required"`
}

// GraphStoreOptions configures the GraphStore connection (spec.md §6
// "graphStore" field).
type GraphStoreOptions struct {
	URI      string `yaml:"uri" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password" validate:"required"`
	Database string `yaml:"database"`
}

// QueueOptions configures the Queue broker (spec.md §6 "queue" field).
type QueueOptions struct {
	Driver string `yaml:"driver" validate:"required,oneof=postgres amqp"`
	URL    string `yaml:"url" validate:"required"`
}

// RunOptions is the Go realization of spec.md §6's RunOptions table. It is
// the value `pkg/config`'s loader produces and `Pipeline.Run` consumes.
type RunOptions struct {
	Ignore              []string             `yaml:"ignore"`
	MaxFileBytes        int64                `yaml:"max_file_bytes" validate:"gt=0"`
	MaxLLMConcurrency   int                  `yaml:"max_llm_concurrency" validate:"gt=0"`
	AcceptThreshold     float64              `yaml:"accept_threshold" validate:"gte=0,lte=1"`
	QuietWindow         time.Duration        `yaml:"quiet_window" validate:"gt=0"`
	SpecialFilePatterns []SpecialFilePattern `yaml:"special_file_patterns"`
	LLM                 LLMOptions           `yaml:"llm" validate:"required"`
	RelStore            RelStoreOptions      `yaml:"rel_store" validate:"required"`
	GraphStore          GraphStoreOptions    `yaml:"graph_store" validate:"required"`
	Queue               QueueOptions         `yaml:"queue" validate:"required"`
}

// DefaultSpecialFilePatterns is the built-in ordered pattern list EntityScout
// falls back to when RunOptions supplies none (spec.md §4.5 step 2).
func DefaultSpecialFilePatterns() []SpecialFilePattern {
	return []SpecialFilePattern{
		{Regex: `^package\.json$`, Type: "manifest"},
		{Regex: `^go\.mod$`, Type: "manifest"},
		{Regex: `^(server|main|index|app)\.(js|ts|py|go)$`, Type: "entrypoint"},
		{Regex: `\.ya?ml$`, Type: "config"},
		{Regex: `\.sql$`, Type: "schema"},
	}
}

// RunResult is the report Pipeline.Run returns (spec.md §7 "completes with
// a report").
type RunResult struct {
	RunID           string
	Status          RunPhase
	FailedFileCount int
	DLQEntries      []DLQEntry
	NodeCount       int
	EdgeCount       int
	Tokens          TokenStats
	StartedAt       time.Time
	FinishedAt      time.Time
}

// DLQEntry describes one job that exhausted retries and landed in a dead
// letter queue.
type DLQEntry struct {
	Queue    string
	JobID    string
	Reason   string
	Attempts int
}

// ExitCode maps RunResult outcomes to the CLI exit codes in spec.md §6.
type ExitCode int

const (
	ExitSuccess           ExitCode = 0
	ExitConfigError       ExitCode = 2
	ExitUnrecoverableStore ExitCode = 3
	ExitPartialFailure    ExitCode = 4
	ExitCanceled          ExitCode = 130
)
