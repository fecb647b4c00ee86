package types

// LoopPolicy bounds how many times each task type may be executed in a run
type LoopPolicy struct {
	Default int              `json:"default"`
	PerType map[TaskType]int `json:"per_type,omitempty"`
}

// DefaultLoopPolicy returns the limits used by the collection workflow
func DefaultLoopPolicy() LoopPolicy {
	return LoopPolicy{
		Default: 3,
		PerType: map[TaskType]int{
			TaskScrapeArticles: 5,
			TaskExportData:     3,
		},
	}
}

// Limit returns the execution bound for a type. A non-positive result
// falls back to one execution.
func (p LoopPolicy) Limit(t TaskType) int {
	if n, ok := p.PerType[t]; ok && n > 0 {
		return n
	}
	if p.Default > 0 {
		return p.Default
	}
	return 1
}

// WithLimit returns a copy of the policy with a per-type override
func (p LoopPolicy) WithLimit(t TaskType, n int) LoopPolicy {
	per := make(map[TaskType]int, len(p.PerType)+1)
	for k, v := range p.PerType {
		per[k] = v
	}
	per[t] = n
	p.PerType = per
	return p
}
