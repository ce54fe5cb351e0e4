package timersvc

import "time"

// Callback is invoked by the dispatch goroutine when a timer expires. It
// runs with no locks held, so it may safely set or cancel other timers.
type Callback func()

type entry struct {
	id    int64
	when  time.Time
	cb    Callback
	index int
}

// timerHeap is a container/heap.Interface ordering entries by expiration,
// the Go-native analogue of original_source/src/munged/timer.c's
// insertion-sorted singly-linked active list: the earliest timer is always
// at the root instead of the head of a scan.
type timerHeap []*entry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
