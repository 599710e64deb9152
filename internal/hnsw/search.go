package hnsw

import (
	"context"

	"github.com/omendb/omen/internal/kernel"
)

// searchLayer implements search_layer(query, entry, ef) at a fixed layer
// (§4.E): a min-heap of candidates to expand and a bounded max-heap of the
// current best ef, popping the nearest candidate and expanding its neighbors
// until the nearest remaining candidate is farther than the current worst
// kept result.
func (e *Engine) searchLayer(query []float32, entry uint32, ef int, level int) []kernel.Candidate {
	visited := map[uint32]bool{entry: true}

	entryDist := e.dist(query, e.src.Vector(entry))
	candidates := kernel.NewMinHeap(ef * 2)
	candidates.PushCandidate(kernel.Candidate{ID: entry, Distance: entryDist})

	found := kernel.NewMaxHeap(ef)
	found.Offer(kernel.Candidate{ID: entry, Distance: entryDist})

	for candidates.Len() > 0 {
		c := candidates.PopCandidate()
		if found.Len() >= ef && c.Distance > found.Top().Distance {
			break
		}
		node := e.store.Node(c.ID)
		if node == nil {
			continue
		}
		for _, nb := range node.Edges(level) {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			nbNode := e.store.Node(nb)
			if nbNode != nil && nbNode.Tombstoned() {
				continue
			}
			d := e.dist(query, e.src.Vector(nb))
			if found.Len() < ef || d < found.Top().Distance {
				candidates.PushCandidate(kernel.Candidate{ID: nb, Distance: d})
				found.Offer(kernel.Candidate{ID: nb, Distance: d})
			}
		}
	}
	return found.Sorted()
}

// Search runs the full multi-layer search (§4.E "Search"): greedy descent
// with ef=1 down to layer 1, then a full search_layer at layer 0 with
// ef=max(ef,k), returning the k nearest ordered ascending by distance.
// ctx's deadline is honored best-effort: an expired deadline returns
// whatever is in the frontier at that moment rather than erroring.
func (e *Engine) Search(ctx context.Context, query []float32, k int, ef int) []kernel.Candidate {
	entry, ok := e.EntryPoint()
	if !ok {
		return nil
	}
	if ef < k {
		ef = k
	}

	top := e.MaxLevel()
	best := entry
	for l := top; l > 0; l-- {
		select {
		case <-ctx.Done():
			return e.topK(e.searchLayer(query, best, 1, l), k)
		default:
		}
		cands := e.searchLayer(query, best, 1, l)
		if len(cands) > 0 {
			best = cands[0].ID
		}
	}

	select {
	case <-ctx.Done():
		return e.topK(e.searchLayer(query, best, 1, 0), k)
	default:
	}
	cands := e.searchLayer(query, best, ef, 0)
	return e.topK(cands, k)
}

func (e *Engine) topK(cands []kernel.Candidate, k int) []kernel.Candidate {
	if len(cands) <= k {
		return cands
	}
	return cands[:k]
}
