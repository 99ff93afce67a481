package venue

import "time"

// JobMode distinguishes user-triggered crawls from proactive ones.
type JobMode string

const (
	ModeRealtime   JobMode = "realtime"
	ModeBackground JobMode = "background"
)

// JobState is a CrawlJob's position in the pending -> running -> terminal
// state machine.
type JobState string

const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobSuccess JobState = "success"
	JobFail    JobState = "fail"
)

// PriorityFloor is the lowest priority a realtime job may carry; background
// priorities must stay strictly below it so realtime work always wins ties
// against background work of any popularity tier.
const PriorityFloor = 1000

// CrawlJob is one unit of enrichment work against a single venue.
type CrawlJob struct {
	ID         int64
	VenueID    string
	Mode       JobMode
	Priority   int
	State      JobState
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Error      Reason
	ReapCount  int
}

// RecoveryMethod is how a candidate website URL was inferred.
type RecoveryMethod string

const (
	RecoveryEmailDomain RecoveryMethod = "email_domain"
	RecoverySearch      RecoveryMethod = "search"
	RecoverySocial      RecoveryMethod = "social"
)

// RecoveryCandidate is one inferred-website audit row for a venue lacking a
// canonical URL.
type RecoveryCandidate struct {
	ID         int64
	VenueID    string
	URL        string
	Confidence float64
	Method     RecoveryMethod
	IsChosen   bool
	CreatedAt  time.Time
}

// Embedding is the fixed-dimension vector representation of a venue's
// enriched text.
type Embedding struct {
	VenueID    string
	Vector     []float32
	ValidUntil *time.Time
	CreatedAt  time.Time
}

// EmbeddingDimension is the fixed vector width required by §3.
const EmbeddingDimension = 384

// MinEmbeddableTextLength is the minimum amount of enrichment text a venue
// must have before it is worth embedding (§3 invariant).
const MinEmbeddableTextLength = 40
