package main

import "time"

const (
	TickRate     = 30 // simulation ticks per second
	TickDuration = time.Second / TickRate
	TickInterval = 1.0 / float64(TickRate) // dt in seconds

	commandQueueSize = 256
)

// Scheduler is the one execution context that owns the room registry
// and every room in it. Inbound commands are funneled through a queue
// and interleaved with the fixed-rate tick, so commands and ticks never
// touch room state concurrently.
type Scheduler struct {
	registry *RoomRegistry
	metrics  *Metrics
	commands chan func()
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a scheduler with an empty registry
func NewScheduler(metrics *Metrics) *Scheduler {
	return &Scheduler{
		registry: NewRoomRegistry(),
		metrics:  metrics,
		commands: make(chan func(), commandQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run drives the loop until Stop is called. Commands received between
// ticks take effect starting at the next tick.
func (s *Scheduler) Run() {
	defer close(s.done)
	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case fn := <-s.commands:
			fn()
		case <-ticker.C:
			s.tickAll()
		}
	}
}

// Stop terminates the loop and waits for it to exit
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Do enqueues a command for execution on the scheduler goroutine
func (s *Scheduler) Do(fn func()) {
	select {
	case s.commands <- fn:
	case <-s.stop:
	}
}

// Call runs fn on the scheduler goroutine and waits for it to finish.
// Used by commands that need a synchronous result. Must not be called
// from the scheduler goroutine itself.
func (s *Scheduler) Call(fn func()) {
	done := make(chan struct{})
	s.Do(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-s.stop:
	}
}

// tickAll advances every running room by one fixed step and broadcasts
// the post-tick snapshot. Each room ticks under its own recover so a
// fault in one room cannot stall the others.
func (s *Scheduler) tickAll() {
	rooms := s.registry.RunningRooms()
	for _, room := range rooms {
		s.tickRoom(room)
	}
	if s.metrics != nil {
		s.metrics.RecordTick(s.registry.RoomCount(), len(rooms))
	}
}

func (s *Scheduler) tickRoom(room *Room) {
	defer func() {
		if rec := recover(); rec != nil {
			Log.Errorw("room tick panicked", "room", room.Code, "panic", rec)
		}
	}()
	room.Tick(TickInterval)
	room.BroadcastSnapshot()
}
