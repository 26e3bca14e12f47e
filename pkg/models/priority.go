package models

import "fmt"

// PriorityLevel is the Manchester-protocol urgency classification assigned by
// the AI classifier on completion.
type PriorityLevel string

const (
	PriorityEmergency  PriorityLevel = "EMERGENCY"
	PriorityVeryUrgent PriorityLevel = "VERY_URGENT"
	PriorityUrgent     PriorityLevel = "URGENT"
	PriorityLessUrgent PriorityLevel = "LESS_URGENT"
	PriorityNonUrgent  PriorityLevel = "NON_URGENT"
)

type priorityInfo struct {
	level       int
	color       string
	maxWaitMins int
}

var priorities = map[PriorityLevel]priorityInfo{
	PriorityEmergency:  {1, "Red", 0},
	PriorityVeryUrgent: {2, "Orange", 10},
	PriorityUrgent:     {3, "Yellow", 60},
	PriorityLessUrgent: {4, "Green", 120},
	PriorityNonUrgent:  {5, "Blue", 240},
}

// Level returns the numeric urgency, 1 (highest) through 5.
func (p PriorityLevel) Level() int { return priorities[p].level }

// Color is the Manchester triage color for the level.
func (p PriorityLevel) Color() string { return priorities[p].color }

// MaxWaitMinutes is the protocol's maximum wait time for the level.
func (p PriorityLevel) MaxWaitMinutes() int { return priorities[p].maxWaitMins }

// IsCritical reports whether the level implies immediate or potential risk of
// life.
func (p PriorityLevel) IsCritical() bool {
	return p == PriorityEmergency || p == PriorityVeryUrgent
}

// RequiresFastAttention reports whether the protocol wait time is one hour or
// less.
func (p PriorityLevel) RequiresFastAttention() bool {
	if _, ok := priorities[p]; !ok {
		return false
	}
	return priorities[p].maxWaitMins <= 60
}

// ParsePriorityLevel validates a classifier-returned priority string.
func ParsePriorityLevel(s string) (PriorityLevel, error) {
	p := PriorityLevel(s)
	if _, ok := priorities[p]; !ok {
		return "", fmt.Errorf("unknown priority level %q", s)
	}
	return p, nil
}
