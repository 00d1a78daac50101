package timer

import (
	"container/heap"
	"sync"
	"time"
)

type Task struct {
	ID        int64
	Execute   time.Time
	Interval  time.Duration
	Callback  func()
	index     int
	cancelled bool // guarded by the manager mutex
}

type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*Task)
	task.index = n
	*q = append(*q, task)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// Manager schedules one-shot and repeating tasks off a single ticker loop.
// A repeating task is re-queued under the manager lock before its callback
// runs, so Cancel always finds it in the queue and cancellation is
// idempotent. Cancel also marks the task, dropping a run already harvested
// by the current tick but not yet dispatched; a dispatch that raced ahead of
// Cancel can still deliver one final run.
type Manager struct {
	queue    taskQueue
	mutex    sync.Mutex
	nextID   int64
	tick     time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewManager() *Manager {
	return newManager(100 * time.Millisecond)
}

func newManager(tick time.Duration) *Manager {
	manager := &Manager{
		queue:    make(taskQueue, 0),
		tick:     tick,
		nextID:   1,
		stopChan: make(chan struct{}),
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

// Schedule queues callback to run after delay. A non-zero interval makes the
// task repeat until cancelled. Returns the task ID.
func (m *Manager) Schedule(delay, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &Task{
		ID:       m.nextID,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextID++

	heap.Push(&m.queue, task)
	return task.ID
}

// Cancel removes a task. Safe to call more than once and for IDs that were
// never scheduled; reports whether a task was actually removed.
func (m *Manager) Cancel(taskID int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, task := range m.queue {
		if task.ID == taskID {
			task.cancelled = true
			heap.Remove(&m.queue, i)
			return true
		}
	}
	return false
}

// Stop terminates the ticker loop. Pending tasks never fire afterwards.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

func (m *Manager) process() {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mutex.Lock()
			now := time.Now()

			var due []*Task
			for m.queue.Len() > 0 {
				task := m.queue[0]
				if task.Execute.After(now) {
					break
				}

				heap.Pop(&m.queue)
				if task.Interval > 0 {
					task.Execute = now.Add(task.Interval)
					heap.Push(&m.queue, task)
				}
				due = append(due, task)
			}
			m.mutex.Unlock()

			for _, task := range due {
				m.mutex.Lock()
				skip := task.cancelled
				m.mutex.Unlock()
				if skip {
					continue
				}
				go task.Callback()
			}

		case <-m.stopChan:
			return
		}
	}
}
