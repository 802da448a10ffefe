package entities

import "time"

type MotionKind string

const (
	MotionStart MotionKind = "start"
	MotionEnd   MotionKind = "end"
)

// MotionEvent is one entry of the motion history.
// Duration is set only on an end event that directly follows its start.
type MotionEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      MotionKind     `json:"kind"`
	Sequence  int            `json:"event_sequence"`
	Duration  *time.Duration `json:"duration,omitempty"`
}
