package clock_test

import (
	"testing"
	"time"

	"spool/internal/clock"
)

func TestManualAfterFuncFiresOnAdvance(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	clk := clock.NewManual(start)

	fired := 0
	clk.AfterFunc(10*time.Second, func() { fired++ })
	if clk.Pending() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", clk.Pending())
	}

	clk.Advance(9 * time.Second)
	if fired != 0 {
		t.Fatalf("timer fired early")
	}
	clk.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("expected timer to fire once, got %d", fired)
	}
	clk.Advance(time.Hour)
	if fired != 1 {
		t.Fatalf("timer fired again: %d", fired)
	}
}

func TestManualStopPreventsCallback(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	fired := false
	timer := clk.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("expected Stop to report an active timer")
	}
	if timer.Stop() {
		t.Fatal("second Stop should report false")
	}
	clk.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if clk.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", clk.Pending())
	}
}

func TestManualCallbackMayRescheduleTimer(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	count := 0
	var schedule func()
	schedule = func() {
		count++
		if count < 3 {
			clk.AfterFunc(time.Second, schedule)
		}
	}
	clk.AfterFunc(time.Second, schedule)
	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
	}
	if count != 3 {
		t.Fatalf("expected 3 callbacks, got %d", count)
	}
}

func TestManualAfterChannel(t *testing.T) {
	clk := clock.NewManual(time.Unix(100, 0))
	ch := clk.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("channel fired before advance")
	default:
	}
	now := clk.Advance(5 * time.Second)
	select {
	case got := <-ch:
		if !got.Equal(now) {
			t.Fatalf("unexpected fire time %v want %v", got, now)
		}
	default:
		t.Fatal("channel did not fire")
	}
}
