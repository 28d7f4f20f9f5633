package sqlite

import (
	"container/heap"

	"github.com/efebarandurmaz/docrag/internal/vector"
)

// better orders hits by score, then by id so equal scores rank the same way
// on every call.
func better(a, b vector.Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// hitHeap is a min-heap whose root is the worst hit kept so far.
type hitHeap []vector.Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(vector.Hit)) }

func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK keeps the k best hits offered to it.
type topK struct {
	k int
	h hitHeap
}

// maxPrealloc caps the up-front heap capacity. Larger k grows on demand, so
// the allocation follows the rows actually seen rather than the request.
const maxPrealloc = 64

func newTopK(k int) *topK {
	return &topK{k: k, h: make(hitHeap, 0, min(k, maxPrealloc))}
}

func (t *topK) offer(hit vector.Hit) {
	if t.h.Len() < t.k {
		heap.Push(&t.h, hit)
		return
	}
	if better(hit, t.h[0]) {
		t.h[0] = hit
		heap.Fix(&t.h, 0)
	}
}

// sorted drains the heap best first.
func (t *topK) sorted() []vector.Hit {
	out := make([]vector.Hit, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(vector.Hit)
	}
	return out
}
