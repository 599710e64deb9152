package hnsw

import "github.com/omendb/omen/internal/kernel"

// robustPrune implements the α-RNG neighbor selection rule (§4.E, GLOSSARY):
// given candidates sorted ascending by distance to q, admit candidate c iff
// for every already-selected r, dist(c,q) < alpha * dist(c,r). This keeps the
// graph navigable by rejecting candidates that are "clustered" behind an
// already-kept neighbor, instead of the teacher's ad hoc 80%-of-distance
// heuristic.
func (e *Engine) robustPrune(query []float32, candidates []kernel.Candidate, mL int) []kernel.Candidate {
	sorted := make([]kernel.Candidate, len(candidates))
	copy(sorted, candidates)
	sortCandidates(sorted)

	result := make([]kernel.Candidate, 0, mL)
	for _, c := range sorted {
		if len(result) >= mL {
			break
		}
		admit := true
		cVec := e.src.Vector(c.ID)
		for _, r := range result {
			rVec := e.src.Vector(r.ID)
			if c.Distance >= e.cfg.Alpha*e.dist(cVec, rVec) {
				admit = false
				break
			}
		}
		if admit {
			result = append(result, c)
		}
	}
	return result
}
