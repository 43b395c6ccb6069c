package scenario

// DefaultLeadFraction is the share of visited qualifying weight a call
// must accumulate to count as a lead.
const DefaultLeadFraction = 0.65

// QualificationTracker accumulates the lead score of one call. It is
// owned by the call's goroutine and never shared.
type QualificationTracker struct {
	score        float64
	visitedTotal float64
	fraction     float64
}

// NewQualificationTracker creates a tracker. fraction <= 0 selects the
// default.
func NewQualificationTracker(fraction float64) *QualificationTracker {
	if fraction <= 0 {
		fraction = DefaultLeadFraction
	}
	return &QualificationTracker{fraction: fraction}
}

// Accumulate records the outcome of one step. Only steps flagged
// qualifying move the score, and only an affirm adds the step weight.
// The visited total grows either way so unanswered qualifying steps
// still count against the caller.
func (q *QualificationTracker) Accumulate(step StepConfig, affirmed bool) {
	if !q.enabled() || !step.Qualifying {
		return
	}
	q.visitedTotal += float64(step.Weight)
	if affirmed {
		q.score += float64(step.Weight)
	}
}

// Visited returns the total weight of qualifying steps seen so far.
func (q *QualificationTracker) Visited() float64 {
	if !q.enabled() {
		return 0
	}
	return q.visitedTotal
}

// Score returns the accumulated score.
func (q *QualificationTracker) Score() float64 {
	if !q.enabled() {
		return 0
	}
	return q.score
}

// IsLead reports whether the accumulated score reaches the configured
// fraction of the qualifying weight actually visited.
func (q *QualificationTracker) IsLead() bool {
	if !q.enabled() || q.visitedTotal == 0 {
		return false
	}
	return q.score >= q.fraction*q.visitedTotal
}

func (q *QualificationTracker) enabled() bool { return q != nil }
