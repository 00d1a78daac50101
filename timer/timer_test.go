package timer

import (
	"container/heap"
	"sync/atomic"
	"testing"
	"time"
)

func TestManager_OneShotFires(t *testing.T) {
	m := newManager(5 * time.Millisecond)
	defer m.Stop()

	var fired int32
	m.Schedule(0, 0, func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("Expected a one-shot task to fire exactly once, got %d", got)
	}
}

func TestManager_RepeatingTaskFires(t *testing.T) {
	m := newManager(5 * time.Millisecond)
	defer m.Stop()

	var fired int32
	m.Schedule(0, 5*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got < 2 {
		t.Errorf("Expected a repeating task to fire at least twice, got %d", got)
	}
}

func TestManager_CancelIsIdempotent(t *testing.T) {
	m := newManager(5 * time.Millisecond)
	defer m.Stop()

	id := m.Schedule(time.Hour, 0, func() { t.Error("Cancelled task must not fire") })

	if !m.Cancel(id) {
		t.Fatal("First Cancel should remove the task")
	}
	if m.Cancel(id) {
		t.Error("Second Cancel must be a no-op")
	}
	if m.Cancel(99999) {
		t.Error("Cancel of an unknown ID must be a no-op")
	}
}

func TestManager_CancelledRepeatingTaskStopsFiring(t *testing.T) {
	m := newManager(5 * time.Millisecond)
	defer m.Stop()

	var fired int32
	id := m.Schedule(0, 5*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&fired) == 0 {
		t.Fatal("Setup failed: repeating task never fired")
	}

	m.Cancel(id)
	// Let any already-dispatched callback drain before taking the baseline.
	time.Sleep(50 * time.Millisecond)
	baseline := atomic.LoadInt32(&fired)

	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != baseline {
		t.Errorf("Cancelled task fired again: baseline %d, now %d", baseline, got)
	}
}

func TestManager_CancelDropsHarvestedRun(t *testing.T) {
	m := newManager(time.Hour)
	defer m.Stop()

	var fired int32
	id := m.Schedule(0, time.Hour, func() { atomic.AddInt32(&fired, 1) })

	// Mimic the tick loop: harvest the due task and re-queue it, then cancel
	// before the dispatch step would run.
	m.mutex.Lock()
	task := heap.Pop(&m.queue).(*Task)
	task.Execute = time.Now().Add(task.Interval)
	heap.Push(&m.queue, task)
	m.mutex.Unlock()

	if !m.Cancel(id) {
		t.Fatal("Cancel should find the re-queued task")
	}

	m.mutex.Lock()
	marked := task.cancelled
	m.mutex.Unlock()
	if !marked {
		t.Fatal("Cancel must mark the task so the harvested run is dropped")
	}
	if got := atomic.LoadInt32(&fired); got != 0 {
		t.Errorf("Cancelled task fired %d times", got)
	}
}

func TestManager_StopHaltsPendingTasks(t *testing.T) {
	m := newManager(5 * time.Millisecond)

	var fired int32
	m.Schedule(50*time.Millisecond, 0, func() { atomic.AddInt32(&fired, 1) })
	m.Stop()
	m.Stop() // idempotent

	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 0 {
		t.Errorf("No task should fire after Stop, got %d", got)
	}
}
