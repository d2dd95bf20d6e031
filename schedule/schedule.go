// schedule/schedule.go
package schedule

import (
	"container/heap"
	"sync"
	"time"
)

// entry is one scheduled expiry.
type entry struct {
	id       string
	deadline time.Time
	callback func(id string)
	index    int
}

type expiryQueue []*entry

func (q expiryQueue) Len() int { return len(q) }

func (q expiryQueue) Less(i, j int) bool {
	return q[i].deadline.Before(q[j].deadline)
}

func (q expiryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *expiryQueue) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *expiryQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	e.index = -1
	*q = old[0 : n-1]
	return e
}

// ExpirySweeper fires a callback once per scheduled id after its deadline
// passes. Challenge expiry refunds ride on it; cancelling an id (because
// the challenge was accepted first) is cheap.
type ExpirySweeper struct {
	queue    expiryQueue
	byID     map[string]*entry
	mutex    sync.Mutex
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	stopped  bool
}

func NewExpirySweeper(interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Second
	}
	s := &ExpirySweeper{
		queue:    make(expiryQueue, 0),
		byID:     make(map[string]*entry),
		interval: interval,
		stop:     make(chan struct{}),
	}
	heap.Init(&s.queue)
	go s.run()
	return s
}

// Schedule registers id to fire callback after deadline. Re-scheduling an
// existing id moves its deadline. After Stop, scheduling is rejected:
// the sweep goroutine is gone, so an accepted entry could never fire.
func (s *ExpirySweeper) Schedule(id string, deadline time.Time, callback func(id string)) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		return false
	}
	if old, ok := s.byID[id]; ok {
		heap.Remove(&s.queue, old.index)
	}
	e := &entry{id: id, deadline: deadline, callback: callback}
	s.byID[id] = e
	heap.Push(&s.queue, e)
	return true
}

// Cancel drops a pending expiry. Returns false if the id already fired
// or was never scheduled.
func (s *ExpirySweeper) Cancel(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, e.index)
	delete(s.byID, id)
	return true
}

// Pending reports how many expiries are scheduled.
func (s *ExpirySweeper) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.byID)
}

func (s *ExpirySweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, e := range s.due(time.Now()) {
				go e.callback(e.id)
			}
		case <-s.stop:
			return
		}
	}
}

// due pops every entry whose deadline has passed.
func (s *ExpirySweeper) due(now time.Time) []*entry {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var fired []*entry
	for s.queue.Len() > 0 {
		e := s.queue[0]
		if e.deadline.After(now) {
			break
		}
		heap.Pop(&s.queue)
		delete(s.byID, e.id)
		fired = append(fired, e)
	}
	return fired
}

func (s *ExpirySweeper) Stop() {
	s.stopOnce.Do(func() {
		s.mutex.Lock()
		s.stopped = true
		s.mutex.Unlock()
		close(s.stop)
	})
}
