package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(5*time.Second, func() { fired++ })

	c.Advance(4 * time.Second)
	if fired != 0 {
		t.Fatalf("fired before deadline: got %d", fired)
	}
	c.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired: got %d, want 1", fired)
	}
	c.Advance(time.Minute)
	if fired != 1 {
		t.Errorf("one-shot timer fired again: got %d", fired)
	}
}

func TestFakeStopPreventsFire(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("first Stop should report true")
	}
	if timer.Stop() {
		t.Error("second Stop should report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending: got %d, want 0", c.PendingCount())
	}
}

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(10 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order: got %v, want [1 2 3]", order)
	}
}

func TestFakeCallbackCanRearm(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	var arm func()
	arm = func() {
		c.AfterFunc(time.Second, func() {
			fired++
			if fired < 3 {
				arm()
			}
		})
	}
	arm()

	c.Advance(time.Second)
	c.Advance(time.Second)
	c.Advance(time.Second)
	if fired != 3 {
		t.Errorf("fired: got %d, want 3", fired)
	}
}

func TestNilTimerStop(t *testing.T) {
	var timer *Timer
	if timer.Stop() {
		t.Error("nil timer Stop should report false")
	}
}

func TestFakeNonPositiveDelayWaitsForAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(0, func() { fired++ })
	c.AfterFunc(-time.Second, func() { fired++ })

	if fired != 0 {
		t.Fatalf("fired inside AfterFunc: got %d", fired)
	}
	if c.PendingCount() != 2 {
		t.Errorf("pending: got %d, want 2", c.PendingCount())
	}
	c.Advance(0)
	if fired != 2 {
		t.Errorf("fired: got %d, want 2", fired)
	}
}
