package main

import "sync"

// Metrics holds live process counters. Unlike room state it is read
// from HTTP handlers, so it carries its own lock.
type Metrics struct {
	mu           sync.RWMutex
	connections  int
	rooms        int
	runningRooms int
	ticks        uint64
}

// MetricsSnapshot is the JSON shape served at /metrics
type MetricsSnapshot struct {
	Connections  int    `json:"connections"`
	Rooms        int    `json:"rooms"`
	RunningRooms int    `json:"runningRooms"`
	Ticks        uint64 `json:"ticks"`
}

// NewMetrics creates zeroed counters
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ConnOpened increments the live connection gauge
func (m *Metrics) ConnOpened() {
	m.mu.Lock()
	m.connections++
	m.mu.Unlock()
}

// ConnClosed decrements the live connection gauge
func (m *Metrics) ConnClosed() {
	m.mu.Lock()
	m.connections--
	m.mu.Unlock()
}

// RecordTick updates room gauges after a scheduler pass
func (m *Metrics) RecordTick(rooms, running int) {
	m.mu.Lock()
	m.rooms = rooms
	m.runningRooms = running
	m.ticks++
	m.mu.Unlock()
}

// Snapshot returns a copy of the current counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		Connections:  m.connections,
		Rooms:        m.rooms,
		RunningRooms: m.runningRooms,
		Ticks:        m.ticks,
	}
}
