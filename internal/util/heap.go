// Package util holds the candidate priority queue used by tree search:
// a max-heap ordered on a float priority, which the reader fills with each
// unvisited node's inherited margin bound during descent.
package util

import "container/heap"

// Candidate is one prioritized entry: a node or item id plus the priority
// it was enqueued with.
type Candidate struct {
	ID       uint32
	Distance float32
}

// MaxHeap pops the highest-priority Candidate first. Ties pop in
// ascending id order so identical inputs always drain identically.
type MaxHeap struct {
	candidates []*Candidate
}

// NewMaxHeap returns an empty heap with capacity for sizeHint candidates.
func NewMaxHeap(sizeHint int) *MaxHeap {
	return &MaxHeap{candidates: make([]*Candidate, 0, sizeHint)}
}

func (h *MaxHeap) Len() int { return len(h.candidates) }

func (h *MaxHeap) Less(i, j int) bool {
	a, b := h.candidates[i], h.candidates[j]
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.ID < b.ID
}

func (h *MaxHeap) Swap(i, j int) {
	h.candidates[i], h.candidates[j] = h.candidates[j], h.candidates[i]
}

func (h *MaxHeap) Push(x any) {
	h.candidates = append(h.candidates, x.(*Candidate))
}

func (h *MaxHeap) Pop() any {
	old := h.candidates
	n := len(old)
	item := old[n-1]
	h.candidates = old[:n-1]
	return item
}

// PushCandidate enqueues c.
func (h *MaxHeap) PushCandidate(c *Candidate) {
	heap.Push(h, c)
}

// PopCandidate dequeues the highest-priority candidate, or nil if empty.
func (h *MaxHeap) PopCandidate() *Candidate {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*Candidate)
}

// Top returns the highest-priority candidate without removing it.
func (h *MaxHeap) Top() *Candidate {
	if h.Len() == 0 {
		return nil
	}
	return h.candidates[0]
}
