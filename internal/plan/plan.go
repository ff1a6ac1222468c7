// Package plan holds the multi-unit execution plan the reasoning step emits
// and the extraction of that plan from free text.
package plan

import "fmt"

// Type classifies how the units of a plan relate to each other.
type Type string

const (
	// BatchIndependent units each need their own generated prompt.
	BatchIndependent Type = "batch_independent"
	// BatchVariations units share one subject; one secondary parameter varies.
	BatchVariations Type = "batch_variations"
	// Pipeline units are dependent: unit k's output is unit k+1's input.
	Pipeline Type = "pipeline"
)

func (t Type) Valid() bool {
	switch t {
	case BatchIndependent, BatchVariations, Pipeline:
		return true
	}
	return false
}

// Step is one pre-planned unit.
type Step struct {
	Step        int            `json:"step"`
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args,omitempty"`
	Description string         `json:"description,omitempty"`
}

// ExecutionPlan is the progress record of a multi-unit request. Total is
// fixed for the life of the plan; Current advances by one per unit.
type ExecutionPlan struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Description string `json:"description"`
	Continue    bool   `json:"continue"`
	Type        Type   `json:"plan_type"`
	Steps       []Step `json:"steps,omitempty"`
}

// Validate checks the counters and plan type. An empty type defaults to
// BatchIndependent.
func (p *ExecutionPlan) Validate() error {
	if p.Type == "" {
		p.Type = BatchIndependent
	}
	if !p.Type.Valid() {
		return fmt.Errorf("unknown plan_type %q", p.Type)
	}
	if p.Current < 1 {
		return fmt.Errorf("current must be >= 1, got %d", p.Current)
	}
	if p.Total < p.Current {
		return fmt.Errorf("total %d is less than current %d", p.Total, p.Current)
	}
	return nil
}

// Exhausted reports whether no further unit should be driven.
func (p ExecutionPlan) Exhausted() bool {
	return p.Current >= p.Total && !p.Continue
}

// At returns a copy positioned at unit current, with Continue derived from
// the fixed total.
func (p ExecutionPlan) At(current int) ExecutionPlan {
	next := p
	next.Current = current
	next.Continue = current < p.Total
	next.Steps = append([]Step(nil), p.Steps...)
	return next
}

// StepFor returns the pre-planned step for unit n, matched by its step
// number, or by position when the plan omits numbering.
func (p ExecutionPlan) StepFor(n int) (Step, bool) {
	for _, s := range p.Steps {
		if s.Step == n {
			return s, true
		}
	}
	if n >= 1 && n <= len(p.Steps) && p.Steps[n-1].Step == 0 {
		return p.Steps[n-1], true
	}
	return Step{}, false
}
