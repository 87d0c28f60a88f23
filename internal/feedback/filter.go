package feedback

// DefaultListLimit caps List results when no limit is given.
const DefaultListLimit = 100

// Filter selects records for List. Zero-valued fields do not constrain.
type Filter struct {
	Type     Type
	Status   Status
	Priority Priority
	// Tags uses AND semantics: a record must carry every tag.
	Tags  []string
	Limit int
}

// EffectiveLimit returns Limit, or DefaultListLimit when Limit is not positive.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Matches reports whether r passes the status, priority and tag constraints.
// Type is handled by partition selection, not here.
func (f Filter) Matches(r *Record) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Priority != "" && r.Priority != f.Priority {
		return false
	}
	return r.HasTags(f.Tags)
}

// Stats aggregates record counts over the closed sets.
type Stats struct {
	Total      int              `json:"total"`
	ByType     map[Type]int     `json:"by_type"`
	ByStatus   map[Status]int   `json:"by_status"`
	ByPriority map[Priority]int `json:"by_priority"`
}

// NewStats returns Stats with a zero counter for every closed-set member.
func NewStats() *Stats {
	s := &Stats{
		ByType:     make(map[Type]int, len(allTypes)),
		ByStatus:   make(map[Status]int, len(allStatuses)),
		ByPriority: make(map[Priority]int, len(allPriorities)),
	}
	for _, t := range allTypes {
		s.ByType[t] = 0
	}
	for _, st := range allStatuses {
		s.ByStatus[st] = 0
	}
	for _, p := range allPriorities {
		s.ByPriority[p] = 0
	}
	return s
}

// Count adds one record found in partition t. Status and priority values
// outside the closed sets, including values of the wrong JSON shape, only
// count toward Total. A missing status counts as new and a missing priority
// as medium.
func (s *Stats) Count(t Type, r *Record) {
	s.Total++
	if _, ok := s.ByType[t]; ok {
		s.ByType[t]++
	}

	if !r.HasMismatch("status") {
		status := r.Status
		if status == "" {
			status = StatusNew
		}
		if _, ok := s.ByStatus[status]; ok {
			s.ByStatus[status]++
		}
	}

	if !r.HasMismatch("priority") {
		priority := r.Priority
		if priority == "" {
			priority = PriorityMedium
		}
		if _, ok := s.ByPriority[priority]; ok {
			s.ByPriority[priority]++
		}
	}
}
