// Package feedback defines the feedback record model: the closed sets for
// type, status and priority, the record and comment structures, and the
// filter and statistics types the store operates on.
package feedback

// Type is the kind of a feedback record. It selects the storage partition.
type Type string

const (
	TypeIssue       Type = "issue"
	TypeImprovement Type = "improvement"
	TypeQuestion    Type = "question"
	TypeCompliance  Type = "compliance"
	TypeOther       Type = "other"
)

// Status is the lifecycle state of a feedback record.
type Status string

const (
	StatusNew          Status = "new"
	StatusAcknowledged Status = "acknowledged"
	StatusInProgress   Status = "in_progress"
	StatusResolved     Status = "resolved"
	StatusClosed       Status = "closed"
	StatusRejected     Status = "rejected"
)

// Priority is the urgency of a feedback record.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// DefaultAuthor is used for comments submitted without an author.
const DefaultAuthor = "AI Agent"

var (
	allTypes      = []Type{TypeIssue, TypeImprovement, TypeQuestion, TypeCompliance, TypeOther}
	allStatuses   = []Status{StatusNew, StatusAcknowledged, StatusInProgress, StatusResolved, StatusClosed, StatusRejected}
	allPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
)

// Types returns every feedback type in partition scan order.
func Types() []Type {
	return append([]Type(nil), allTypes...)
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// Priorities returns every priority from lowest to highest.
func Priorities() []Priority {
	return append([]Priority(nil), allPriorities...)
}

// Valid reports whether t is a member of the closed type set.
func (t Type) Valid() bool {
	for _, v := range allTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Valid reports whether p is a member of the closed priority set.
func (p Priority) Valid() bool {
	for _, v := range allPriorities {
		if p == v {
			return true
		}
	}
	return false
}

// TypeOrDefault returns t, or TypeOther when t is not a known type.
// The second result reports whether a substitution happened.
func TypeOrDefault(t Type) (Type, bool) {
	if t.Valid() {
		return t, false
	}
	return TypeOther, true
}

// PriorityOrDefault returns p, or PriorityMedium when p is not a known priority.
func PriorityOrDefault(p Priority) (Priority, bool) {
	if p.Valid() {
		return p, false
	}
	return PriorityMedium, true
}

// TypeNames, StatusNames and PriorityNames render the closed sets for help text.
func TypeNames() []string {
	out := make([]string, len(allTypes))
	for i, t := range allTypes {
		out[i] = string(t)
	}
	return out
}

func StatusNames() []string {
	out := make([]string, len(allStatuses))
	for i, s := range allStatuses {
		out[i] = string(s)
	}
	return out
}

func PriorityNames() []string {
	out := make([]string, len(allPriorities))
	for i, p := range allPriorities {
		out[i] = string(p)
	}
	return out
}
