package router

import (
	"sync"
	"time"
)

/* retryQueue holds scheduled retries on individual timers. Capacity is
 * bounded: when full, the lowest-priority pending retry is shed rather
 * than letting the queue grow without limit.
 */
type retryQueue struct {
	mu      sync.Mutex
	pending map[*pendingRetry]struct{}
	cap     int
	stopped bool

	fire func(*delivery)
	shed func(*delivery)
}

type pendingRetry struct {
	del   *delivery
	timer *time.Timer
}

func newRetryQueue(cap int, fire, shed func(*delivery)) *retryQueue {
	return &retryQueue{
		pending: make(map[*pendingRetry]struct{}),
		cap:     cap,
		fire:    fire,
		shed:    shed,
	}
}

// schedule enqueues a retry after delay, applying backpressure first
func (q *retryQueue) schedule(del *delivery, delay time.Duration) {
	q.mu.Lock()

	if q.stopped {
		q.mu.Unlock()
		return
	}

	var victim *delivery
	if len(q.pending) >= q.cap {
		worst := q.worstLocked()
		if worst != nil && del.route.Priority.Before(worst.del.route.Priority) {
			worst.timer.Stop()
			delete(q.pending, worst)
			victim = worst.del
		} else {
			// newcomer is the lowest priority around; it is the one shed
			q.mu.Unlock()
			q.shed(del)
			return
		}
	}

	pr := &pendingRetry{del: del}
	pr.timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		_, live := q.pending[pr]
		delete(q.pending, pr)
		stopped := q.stopped
		q.mu.Unlock()
		if live && !stopped {
			q.fire(pr.del)
		}
	})
	q.pending[pr] = struct{}{}
	q.mu.Unlock()

	if victim != nil {
		q.shed(victim)
	}
}

// worstLocked finds the lowest-priority pending retry. Caller holds mu.
func (q *retryQueue) worstLocked() *pendingRetry {
	var worst *pendingRetry
	for pr := range q.pending {
		if worst == nil || worst.del.route.Priority.Before(pr.del.route.Priority) {
			worst = pr
		}
	}
	return worst
}

// len returns the number of pending retries
func (q *retryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// stop cancels all pending timers; scheduled retries never fire after
func (q *retryQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	for pr := range q.pending {
		pr.timer.Stop()
		delete(q.pending, pr)
	}
}
