package enums

import "fmt"

// MatchmakingStatus maps to the matchmaking_status enum in Postgres.
// Transitions form a one-way machine: queued -> running -> completed|failed.
type MatchmakingStatus string

const (
	MatchmakingQueued    MatchmakingStatus = "queued"
	MatchmakingRunning   MatchmakingStatus = "running"
	MatchmakingCompleted MatchmakingStatus = "completed"
	MatchmakingFailed    MatchmakingStatus = "failed"
)

var validMatchmakingStatuses = []MatchmakingStatus{
	MatchmakingQueued,
	MatchmakingRunning,
	MatchmakingCompleted,
	MatchmakingFailed,
}

// IsValid reports whether the value matches the canonical enum.
func (s MatchmakingStatus) IsValid() bool {
	for _, candidate := range validMatchmakingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted.
func (s MatchmakingStatus) IsTerminal() bool {
	return s == MatchmakingCompleted || s == MatchmakingFailed
}

// ParseMatchmakingStatus converts raw input into MatchmakingStatus.
func ParseMatchmakingStatus(value string) (MatchmakingStatus, error) {
	for _, candidate := range validMatchmakingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid matchmaking status %q", value)
}
