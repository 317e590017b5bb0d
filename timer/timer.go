// timer/timer.go
//
// Sweeper is an external caller of HandleTimeout, nothing more: the match
// core never fires on a clock by itself. Each tracked turn deadline becomes
// a probe; when it passes, the probe callback runs and the match decides
// whether a timeout actually applies.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

type probe struct {
	matchID string
	due     time.Time
	index   int
}

type probeQueue []*probe

func (q probeQueue) Len() int { return len(q) }

func (q probeQueue) Less(i, j int) bool {
	return q[i].due.Before(q[j].due)
}

func (q probeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *probeQueue) Push(x interface{}) {
	n := len(*q)
	p := x.(*probe)
	p.index = n
	*q = append(*q, p)
}

func (q *probeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	p := old[n-1]
	p.index = -1
	*q = old[0 : n-1]
	return p
}

// Sweeper schedules one deadline probe per tracked turn.
type Sweeper struct {
	queue    probeQueue
	mutex    sync.Mutex
	probeFn  func(matchID string)
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

// NewSweeper builds a sweeper that invokes probeFn for every due deadline,
// polling the queue every interval.
func NewSweeper(probeFn func(matchID string), interval time.Duration) *Sweeper {
	s := &Sweeper{
		queue:    make(probeQueue, 0),
		probeFn:  probeFn,
		interval: interval,
		stop:     make(chan struct{}),
	}
	heap.Init(&s.queue)
	return s
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	go s.process()
}

// Stop terminates the sweep loop.
func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// Track registers the next deadline for a match. A match may be tracked many
// times; stale probes are harmless because the match re-validates its own
// clock.
func (s *Sweeper) Track(matchID string, due time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	heap.Push(&s.queue, &probe{matchID: matchID, due: due})
}

func (s *Sweeper) process() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, id := range s.collectDue(time.Now()) {
				go s.probeFn(id)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) collectDue(now time.Time) []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var due []string
	for s.queue.Len() > 0 {
		next := s.queue[0]
		if next.due.After(now) {
			break
		}
		heap.Pop(&s.queue)
		due = append(due, next.matchID)
	}
	return due
}
