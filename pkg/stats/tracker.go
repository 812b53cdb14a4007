// Package stats accumulates per-run construction counters so that drops and
// truncations surface as metrics, once per build, instead of flooding logs
// per offending row.
package stats

import (
	"sync"

	"github.com/arkadix/relgraph/pkg/hypergraph"
	"github.com/arkadix/relgraph/pkg/logger"
)

// Summary is a point-in-time snapshot of the accumulated counters.
type Summary struct {
	Builds       int
	Nodes        int
	Edges        int
	HyperNodes   int
	Truncated    int
	Dangling     int
	MissingSeeds int
	ByConstraint map[string]int
}

// Tracker aggregates build reports across a run. A nil Tracker is a no-op,
// so callers can thread it through unconditionally.
type Tracker struct {
	mu           sync.Mutex
	builds       int
	nodes        int
	edges        int
	hyperNodes   int
	truncated    int
	dangling     int
	missingSeeds int
	byConstraint map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{byConstraint: make(map[string]int)}
}

// RecordBuild folds one build report into the run totals.
func (t *Tracker) RecordBuild(rep *hypergraph.Report) {
	if t == nil || rep == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.builds++
	t.nodes += rep.Nodes
	t.edges += rep.Edges
	t.hyperNodes += rep.HyperNodes
	t.truncated += rep.Truncated
	t.dangling += rep.Dangling
	t.missingSeeds += rep.MissingSeeds
	for tag, n := range rep.ByConstraint {
		t.byConstraint[tag] += n
	}
}

// Summary returns a copy of the current totals.
func (t *Tracker) Summary() Summary {
	if t == nil {
		return Summary{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	by := make(map[string]int, len(t.byConstraint))
	for k, v := range t.byConstraint {
		by[k] = v
	}
	return Summary{
		Builds:       t.builds,
		Nodes:        t.nodes,
		Edges:        t.edges,
		HyperNodes:   t.hyperNodes,
		Truncated:    t.truncated,
		Dangling:     t.dangling,
		MissingSeeds: t.missingSeeds,
		ByConstraint: by,
	}
}

// LogSummary emits one aggregated line for the whole run.
func (t *Tracker) LogSummary() {
	if t == nil {
		return
	}
	s := t.Summary()
	logger.InfoCF("stats", "run summary", map[string]interface{}{
		"builds":        s.Builds,
		"nodes":         s.Nodes,
		"edges":         s.Edges,
		"hyper":         s.HyperNodes,
		"truncated":     s.Truncated,
		"dangling":      s.Dangling,
		"missing_seeds": s.MissingSeeds,
	})
}
