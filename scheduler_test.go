package main

import (
	"testing"
	"time"
)

func TestSchedulerFunnelsCommandsAndTicks(t *testing.T) {
	s := NewScheduler(NewMetrics())
	go s.Run()
	defer s.Stop()

	var (
		room *Room
		sess = &captureSession{}
		x0   float64
	)
	s.Call(func() {
		room = s.registry.CreateRoom()
		p, err := room.AddPlayer("p1", "Mover")
		if err != nil {
			t.Errorf("add player: %v", err)
			return
		}
		room.BindSession(p.ID, sess)
		room.Start("p1")
		room.SetInput("p1", ControlState{Right: true}, nil)
		p.X, p.Y = 100, 400
		x0 = p.X
	})

	// Let a handful of ticks elapse
	time.Sleep(10 * TickDuration)

	var moved bool
	var frames int
	s.Call(func() {
		moved = room.Player("p1").X > x0
		frames = len(sess.raw)
	})
	if !moved {
		t.Error("player should have advanced over elapsed ticks")
	}
	if frames == 0 {
		t.Error("expected at least one snapshot broadcast")
	}
	if s.metrics.Snapshot().Ticks == 0 {
		t.Error("expected tick counter to advance")
	}
}

func TestSchedulerIsolatesRoomFault(t *testing.T) {
	s := NewScheduler(nil)

	healthy := s.registry.CreateRoom()
	hp, _ := healthy.AddPlayer("h1", "Healthy")
	healthy.Start("h1")
	healthy.SetInput("h1", ControlState{Down: true}, nil)
	hp.X, hp.Y = 700, 100
	y0 := hp.Y

	broken := s.registry.CreateRoom()
	broken.AddPlayer("b1", "Broken")
	broken.Start("b1")
	// Corrupt the room so its tick panics
	broken.order = append(broken.order, "ghost")

	// Two passes directly on the scheduler's own goroutine
	s.tickAll()
	s.tickAll()

	if hp.Y <= y0 {
		t.Error("a faulting room must not stall ticking of healthy rooms")
	}
}

func TestSchedulerCallWaits(t *testing.T) {
	s := NewScheduler(nil)
	go s.Run()
	defer s.Stop()

	done := false
	s.Call(func() { done = true })
	if !done {
		t.Error("Call must not return before the closure ran")
	}
}
