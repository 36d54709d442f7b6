package models

import "time"

// EpisodeSpec is the input specification for running one episode.
type EpisodeSpec struct {
	Index    int
	Seed     uint64
	MaxSteps int
}

// EpisodeResult contains the outcome of one episode.
type EpisodeResult struct {
	Index       int           `json:"index"`
	RunID       string        `json:"run_id"`
	RunDir      string        `json:"run_dir"`
	Steps       int           `json:"steps"`
	Return      float64       `json:"return"`
	Terminated  bool          `json:"terminated"`
	Truncated   bool          `json:"truncated"`
	ExitCode    *int          `json:"exit_code"`
	Error       *EpisodeError `json:"error"`
	Diagnostics *Diagnostics  `json:"diagnostics,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	DurationSec float64       `json:"duration_sec"`
}

// Failed reports whether the episode ended on an error or an abnormal exit.
func (r *EpisodeResult) Failed() bool {
	return r.Error != nil || (r.ExitCode != nil && *r.ExitCode != 0)
}

type EpisodeError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// JobResult contains aggregate metrics across all episodes.
type JobResult struct {
	Scenario          string          `json:"scenario"`
	Cancelled         bool            `json:"cancelled"`
	TotalEpisodes     int             `json:"total_episodes"`
	CompletedEpisodes int             `json:"completed_episodes"`
	TruncatedEpisodes int             `json:"truncated_episodes"`
	FailedEpisodes    int             `json:"failed_episodes"`
	SkippedEpisodes   int             `json:"skipped_episodes"`
	TotalSteps        int             `json:"total_steps"`
	MeanReturn        float64         `json:"mean_return"`
	TotalDurationSec  float64         `json:"total_duration_sec"`
	StartedAt         time.Time       `json:"started_at"`
	EndedAt           time.Time       `json:"ended_at"`
	Episodes          []EpisodeResult `json:"episodes"`
}
