package session

import (
	"sync"
	"time"
)

// timer is a named, cancelable delayed action. Arming replaces any pending
// instance of the same timer; independent timers never affect each other.
// The action runs on the session loop via post, and a generation check
// suppresses instances that were cancelled or re-armed after their
// underlying time.Timer already fired.
type timer struct {
	post func(func())

	mu  sync.Mutex
	gen uint64
	t   *time.Timer
}

func newTimer(post func(func())) *timer {
	return &timer{post: post}
}

// arm schedules fn to run after d, replacing any pending instance.
func (t *timer) arm(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	gen := t.gen
	if t.t != nil {
		t.t.Stop()
	}
	t.t = time.AfterFunc(d, func() {
		t.post(func() {
			t.mu.Lock()
			live := gen == t.gen
			t.mu.Unlock()
			if live {
				fn()
			}
		})
	})
}

// cancel discards any pending instance.
func (t *timer) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}
