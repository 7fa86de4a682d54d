package engine

import "time"

// entry is one pending animation. seq gives FIFO order within a priority.
type entry struct {
	task       Task
	priority   Priority
	seq        uint64
	enqueuedAt time.Time
}

// entryHeap implements container/heap.Interface as a min-heap on
// (priority, seq).
type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}
