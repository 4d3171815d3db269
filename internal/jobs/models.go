package jobs

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageCharacters Stage = "characters"
	StageChapters   Stage = "chapters"
	StageScenes     Stage = "scenes"
	StageLinking    Stage = "linking"
	StagePrompts    Stage = "prompts"
	StageImages     Stage = "images"
)

var canonicalSequence = []Stage{
	StageCharacters,
	StageChapters,
	StageScenes,
	StageLinking,
	StagePrompts,
	StageImages,
}

// DefaultSequence returns the full-book stage order.
func DefaultSequence() []Stage {
	return slices.Clone(canonicalSequence)
}

// ParseStage validates a stage name.
func ParseStage(value string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(value)))
	if slices.Contains(canonicalSequence, stage) {
		return stage, nil
	}
	return "", fmt.Errorf("unknown stage %q", value)
}

// ValidateSequence checks that seq is a non-empty, duplicate-free subsequence
// of the canonical stage order.
func ValidateSequence(seq []Stage) error {
	if len(seq) == 0 {
		return fmt.Errorf("stage sequence is empty")
	}
	next := 0
	for _, stage := range seq {
		idx := slices.Index(canonicalSequence, stage)
		if idx < 0 {
			return fmt.Errorf("unknown stage %q", stage)
		}
		if idx < next {
			return fmt.Errorf("stage %q is duplicated or out of order", stage)
		}
		next = idx + 1
	}
	return nil
}

// Type distinguishes the canonical pipeline from caller-selected sequences.
type Type string

const (
	TypeFullBook Type = "full_book"
	TypeCustom   Type = "custom"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further stage will execute for the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Active reports whether the status holds the project's exclusivity slot.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusRunning
}

// ItemStatus is the lifecycle state of one unit of work.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemRunning   ItemStatus = "running"
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
)

// Terminal reports whether the item has been finalized.
func (s ItemStatus) Terminal() bool {
	return s == ItemSucceeded || s == ItemFailed
}

// Options are the per-job knobs supplied at start.
type Options struct {
	ImagesPerScene int    `json:"imagesPerScene"`
	StylePreset    string `json:"stylePreset"`
	Language       string `json:"language"`
}

// Job is one execution of a stage sequence for a project.
type Job struct {
	ID              string
	ProjectID       string
	Type            Type
	StageSequence   []Stage
	Status          Status
	CurrentStage    Stage
	Progress        int
	PartialSuccess  bool
	ErrorMessage    string
	Options         Options
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	Version         int64
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	clone.StageSequence = slices.Clone(j.StageSequence)
	if j.StartedAt != nil {
		started := *j.StartedAt
		clone.StartedAt = &started
	}
	if j.FinishedAt != nil {
		finished := *j.FinishedAt
		clone.FinishedAt = &finished
	}
	return &clone
}

// StageIndex returns the position of stage within the job's sequence or -1.
func (j *Job) StageIndex(stage Stage) int {
	return slices.Index(j.StageSequence, stage)
}

// Item is the unit-of-work record for one stage's one unit.
type Item struct {
	ID           string
	JobID        string
	Stage        Stage
	RefID        string
	Status       ItemStatus
	Attempts     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}

// StageCounts summarizes the items recorded for one stage of a job.
type StageCounts struct {
	Stage     Stage
	Total     int
	Running   int
	Succeeded int
	Failed    int
}

// Settled returns the number of finalized items.
func (c StageCounts) Settled() int {
	return c.Succeeded + c.Failed
}

func joinStages(seq []Stage) string {
	parts := make([]string, len(seq))
	for i, stage := range seq {
		parts[i] = string(stage)
	}
	return strings.Join(parts, ",")
}

func splitStages(value string) []Stage {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	seq := make([]Stage, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			seq = append(seq, Stage(part))
		}
	}
	return seq
}
