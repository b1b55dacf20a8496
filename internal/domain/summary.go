package domain

import "time"

// SourceStats holds per-source counters for a pass.
type SourceStats struct {
	Kind             SourceKind `json:"kind"`
	SourceID         string     `json:"source_id"`
	Discovered       int        `json:"discovered"`
	SkippedDuplicate int        `json:"skipped_duplicate"`
	Published        int        `json:"published"`
	Failed           int        `json:"failed"`
	Error            string     `json:"error,omitempty"`
}

// PassSummary holds statistics about one pipeline pass.
type PassSummary struct {
	PassID           string         `json:"pass_id"`
	StartedAt        time.Time      `json:"started_at"`
	Duration         time.Duration  `json:"duration"`
	Discovered       int            `json:"discovered"`
	SkippedDuplicate int            `json:"skipped_duplicate"`
	Published        int            `json:"published"`
	Failed           int            `json:"failed"`
	Inconsistent     int            `json:"inconsistent"`
	Reconciled       int            `json:"reconciled"`
	HeldUncertain    int            `json:"held_uncertain"`
	SourceErrors     int            `json:"source_errors"`
	Sources          []*SourceStats `json:"sources"`
	Destinations     map[string]int `json:"destinations"`
	Abandoned        []ItemEvent    `json:"abandoned,omitempty"`
}

func NewPassSummary(passID string, startedAt time.Time) *PassSummary {
	return &PassSummary{
		PassID:       passID,
		StartedAt:    startedAt,
		Destinations: make(map[string]int),
	}
}

// ItemEvent describes an item the pass gave up on, or an item whose remote
// post landed without a ledger record.
type ItemEvent struct {
	PassID       string    `json:"pass_id"`
	Key          ItemKey   `json:"key"`
	Kind         string    `json:"kind"`
	Message      string    `json:"message"`
	Destination  string    `json:"destination,omitempty"`
	PostID       string    `json:"post_id,omitempty"`
	Inconsistent bool      `json:"inconsistent,omitempty"`
	At           time.Time `json:"at"`
}
