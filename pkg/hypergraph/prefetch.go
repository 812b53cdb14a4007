package hypergraph

import (
	"context"

	"github.com/arkadix/relgraph/pkg/source"
)

// Built is one prefetched construction result.
type Built struct {
	Graph  *Hypergraph
	Report *Report
	Err    error
}

// Prefetch consumes seed batches and builds their hypergraphs ahead of the
// consumer: while the caller computes over batch N, the graph for batch N+1
// is already under construction. Each graph is fully built before it is
// delivered, so message passing never observes a partial instance.
//
// The returned channel closes when batches closes or ctx is canceled;
// cancellation drops any in-flight instance, which is safe because graphs
// are pass-scoped and own no durable state.
func (b *Builder) Prefetch(ctx context.Context, batches <-chan map[string][]source.Value) <-chan Built {
	out := make(chan Built, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case seeds, ok := <-batches:
				if !ok {
					return
				}
				g, rep, err := b.Build(ctx, seeds)
				select {
				case out <- Built{Graph: g, Report: rep, Err: err}:
				case <-ctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}
	}()
	return out
}
