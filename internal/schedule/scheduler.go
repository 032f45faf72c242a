package schedule

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/modelviewer/timectrl"
)

// EventScheduler runs callbacks once their scheduled time has passed. Nothing
// runs on its own: the owner calls RunDue from its thread of control, which
// is how the viewer session keeps timer callbacks on the same goroutine as
// viewer events.
type EventScheduler interface {
	// Schedule registers f to run at 'at' and returns an id for Cancel.
	Schedule(at time.Time, f func()) (id string)

	// Cancel drops a scheduled callback. Unknown or already-run ids are ignored.
	Cancel(id string)

	// Now returns the scheduler's notion of the current time.
	Now() time.Time

	// RunDue executes every callback whose time is <= Now(). Callbacks
	// scheduled from within a callback for a time that is already due run in
	// the same call.
	RunDue()
}

type entry struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// queue keeps entries ordered by time; equal times keep insertion order. It
// is shared by the real and fake schedulers and is not safe for concurrent use
// on its own.
type queue struct {
	prefix  string
	counter uint64
	entries []*entry
	index   map[string]*entry
}

func newQueue(prefix string) queue {
	return queue{prefix: prefix, index: make(map[string]*entry)}
}

func (q *queue) push(at time.Time, f func()) string {
	q.counter++
	e := &entry{
		id:   fmt.Sprintf("%s-%d", q.prefix, q.counter),
		when: at,
		f:    f,
	}
	idx := sort.Search(len(q.entries), func(i int) bool {
		return q.entries[i].when.After(at)
	})
	q.entries = append(q.entries, nil)
	copy(q.entries[idx+1:], q.entries[idx:])
	q.entries[idx] = e
	q.index[e.id] = e
	return e.id
}

func (q *queue) cancel(id string) {
	e, ok := q.index[id]
	if !ok {
		return
	}
	e.cancelled = true
	delete(q.index, id)
}

// popDue removes and returns the earliest live entry due at now, or nil.
func (q *queue) popDue(now time.Time) *entry {
	for len(q.entries) > 0 {
		e := q.entries[0]
		if e.cancelled {
			q.entries = q.entries[1:]
			continue
		}
		if e.when.After(now) {
			return nil
		}
		q.entries = q.entries[1:]
		delete(q.index, e.id)
		return e
	}
	return nil
}

func (q *queue) len() int { return len(q.index) }

type eventScheduler struct {
	clock timectrl.Clock

	mu sync.Mutex
	q  queue
}

// NewEventScheduler returns a scheduler that reads time from clock.
func NewEventScheduler(clock timectrl.Clock) EventScheduler {
	if clock == nil {
		clock = timectrl.SystemClock{}
	}
	return &eventScheduler{clock: clock, q: newQueue("ev")}
}

func (s *eventScheduler) Schedule(at time.Time, f func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.push(at, f)
}

func (s *eventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.cancel(id)
}

func (s *eventScheduler) Now() time.Time { return s.clock.Now() }

func (s *eventScheduler) RunDue() {
	for {
		now := s.clock.Now()
		s.mu.Lock()
		e := s.q.popDue(now)
		s.mu.Unlock()
		if e == nil {
			return
		}
		// Callbacks run outside the lock so they can reschedule.
		if e.f != nil {
			e.f()
		}
	}
}
