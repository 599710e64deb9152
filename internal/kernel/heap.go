package kernel

import "container/heap"

// Candidate is a search result: an internal node id and its distance to the
// query under whatever metric the caller selected.
type Candidate struct {
	ID       uint32
	Distance float32
}

type candidateSlice []Candidate

func (s candidateSlice) Len() int            { return len(s) }
func (s candidateSlice) Swap(i, j int)       { s[i], s[j] = s[j], s[i] }
func (s *candidateSlice) Push(x interface{}) { *s = append(*s, x.(Candidate)) }
func (s *candidateSlice) Pop() interface{} {
	old := *s
	n := len(old)
	item := old[n-1]
	*s = old[:n-1]
	return item
}

// MinHeap orders candidates by ascending distance, breaking equal-distance
// ties by lower internal index. HNSW's search_layer uses one as the
// exploration frontier (the "candidates" set, §4.E).
type MinHeap struct{ s candidateSlice }

func NewMinHeap(capHint int) *MinHeap {
	return &MinHeap{s: make(candidateSlice, 0, capHint)}
}

func (h *MinHeap) Len() int { return h.s.Len() }
func (h *MinHeap) Less(i, j int) bool {
	return h.s[i].Distance < h.s[j].Distance ||
		(h.s[i].Distance == h.s[j].Distance && h.s[i].ID < h.s[j].ID)
}
func (h *MinHeap) Swap(i, j int)       { h.s.Swap(i, j) }
func (h *MinHeap) Push(x interface{})  { h.s.Push(x) }
func (h *MinHeap) Pop() interface{}    { return h.s.Pop() }
func (h *MinHeap) Peek() Candidate     { return h.s[0] }
func (h *MinHeap) PushCandidate(c Candidate) { heap.Push(h, c) }
func (h *MinHeap) PopCandidate() Candidate   { return heap.Pop(h).(Candidate) }

// MaxHeap orders candidates by descending distance, with its root (the
// "current worst kept candidate") holding the higher internal index on a
// distance tie. This is the reverse of MinHeap's tie-break, not a copy of
// it: Sorted() pops root-first into the end of its output slice, so a root
// that favors the higher ID on ties leaves the lower ID resident longest
// and in Sorted()'s output, where the required ascending-distance,
// lower-index-breaks-ties order requires it. Bounded top-k search (the
// flat buffer §4.C, HNSW's "found" set §4.E) keeps a size-k MaxHeap and
// evicts its root whenever a closer candidate arrives, giving early-exit
// pruning instead of a full sort.
type MaxHeap struct {
	s       candidateSlice
	maxSize int
}

func NewMaxHeap(maxSize int) *MaxHeap {
	return &MaxHeap{s: make(candidateSlice, 0, maxSize), maxSize: maxSize}
}

func (h *MaxHeap) Len() int { return h.s.Len() }
func (h *MaxHeap) Less(i, j int) bool {
	return h.s[i].Distance > h.s[j].Distance ||
		(h.s[i].Distance == h.s[j].Distance && h.s[i].ID > h.s[j].ID)
}
func (h *MaxHeap) Swap(i, j int)      { h.s.Swap(i, j) }
func (h *MaxHeap) Push(x interface{}) { h.s.Push(x) }
func (h *MaxHeap) Pop() interface{}   { return h.s.Pop() }

func (h *MaxHeap) PushCandidate(c Candidate) { heap.Push(h, c) }
func (h *MaxHeap) PopCandidate() Candidate   { return heap.Pop(h).(Candidate) }
func (h *MaxHeap) Top() Candidate            { return h.s[0] }

// Offer inserts c if the heap has room, or if c beats the current worst kept
// candidate, maintaining at most maxSize entries. Returns true if kept.
func (h *MaxHeap) Offer(c Candidate) bool {
	if h.maxSize <= 0 {
		h.PushCandidate(c)
		return true
	}
	if h.Len() < h.maxSize {
		h.PushCandidate(c)
		return true
	}
	if c.Distance >= h.Top().Distance {
		return false
	}
	h.PopCandidate()
	h.PushCandidate(c)
	return true
}

// Sorted drains the heap into an ascending-distance slice.
func (h *MaxHeap) Sorted() []Candidate {
	out := make([]Candidate, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = h.PopCandidate()
	}
	return out
}
