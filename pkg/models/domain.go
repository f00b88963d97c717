package models

import "time"

// File is the RelStore-agnostic view of a discovered source file.
type File struct {
	ID           string
	RunID        string
	Path         string
	Checksum     string
	Status       FileStatus
	SpecialType  string // empty when unclassified
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// POI is one extracted point of interest.
type POI struct {
	ID        string
	RunID     string
	FileID    string
	FilePath  string // denormalized for GraphBuilder/prompt convenience
	Name      string
	Type      string
	StartLine int
	EndLine   int
	Snippet   string
}

// RelationshipEvidence is one raw observation of a relationship, produced
// by exactly one analysis pass.
type RelationshipEvidence struct {
	ID               int64
	RunID            string
	RelationshipHash string
	SourcePOIID      string
	TargetPOIID      string
	Type             string
	RawConfidence    float64
	Pass             EvidencePass
	Payload          map[string]any
	CreatedAt        time.Time
}

// Relationship is the reconciled, one-row-per-hash edge record.
type Relationship struct {
	ID               string
	RunID            string
	RelationshipHash string
	SourcePOIID      string
	TargetPOIID      string
	Type             string
	Confidence       float64
	Status           RelationshipStatus
	EvidenceCount    int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DirectorySummary is one directory's LLM-produced natural-language summary.
type DirectorySummary struct {
	ID            string
	RunID         string
	DirectoryPath string
	SummaryText   string
	POISampleSize int
	CreatedAt     time.Time
}

// OutboxEvent is one transactional-outbox row awaiting publication.
type OutboxEvent struct {
	ID          int64
	RunID       string
	EventType   OutboxEventType
	Payload     map[string]any
	Status      OutboxStatus
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// RunManifest carries the structural facts EntityScout learns during its
// walk: total file count and per-directory child counts. It does not (and
// per spec.md §3/§4.9 cannot) carry expected relationship evidence
// counts — those are discovered incrementally and reconciled via the
// quiescence rule instead.
type RunManifest struct {
	RunID                string
	TotalFiles           int
	DirectoryChildCounts map[string]int
	Directories          []string
	Sealed               bool
}

// Run is the orchestrator's persisted execution record.
type Run struct {
	ID           string
	RootPath     string
	Phase        RunPhase
	ErrorMessage string
	StartedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}
