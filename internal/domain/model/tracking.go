package model

import (
	"fmt"
	"time"
)

type TimerState string

const (
	TimerIdle    TimerState = "idle"
	TimerRunning TimerState = "running"
	TimerPaused  TimerState = "paused"
	TimerExpired TimerState = "expired"
)

type TimeStatus string

const (
	TimeStatusNormal   TimeStatus = "normal"
	TimeStatusWarning  TimeStatus = "warning"
	TimeStatusCritical TimeStatus = "critical"
)

// TimerEntry is the per-order countdown held by a view.
type TimerEntry struct {
	OrderID          string
	RemainingSeconds int64
	TotalSeconds     int64
	IsRunning        bool
	Pending          OrderStatus // status write outstanding, "" when none
	Attempts         int         // failed automatic completion writes
}

// InFlight reports whether a status write for the order is outstanding.
func (e TimerEntry) InFlight() bool { return e.Pending != "" }

func (e TimerEntry) State() TimerState {
	switch {
	case e.RemainingSeconds <= 0:
		return TimerExpired
	case e.IsRunning:
		return TimerRunning
	default:
		return TimerPaused
	}
}

// Progress is the elapsed share of the purchased duration, in percent.
func (e TimerEntry) Progress() float64 {
	if e.TotalSeconds <= 0 {
		return 0
	}
	p := float64(e.TotalSeconds-e.RemainingSeconds) / float64(e.TotalSeconds) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func (e TimerEntry) TimeStatus() TimeStatus {
	p := e.Progress()
	switch {
	case p >= 90:
		return TimeStatusCritical
	case p >= 70:
		return TimeStatusWarning
	default:
		return TimeStatusNormal
	}
}

// FormatRemaining renders seconds as h:mm:ss, or m:ss below one hour.
func FormatRemaining(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Snapshot is an immutable picture of one view. Mutations build a new Snapshot;
// a published Snapshot is never written to again.
type Snapshot struct {
	Orders        []Order
	Timers        map[string]TimerEntry
	Notifications []Notification
	LoadedAt      time.Time
	Version       uint64
}

// EmptySnapshot is the state of a view before its first load.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Timers: map[string]TimerEntry{}}
}

// Clone returns a deep copy that the caller may modify.
func (s *Snapshot) Clone() *Snapshot {
	cp := &Snapshot{
		Orders:        make([]Order, len(s.Orders)),
		Timers:        make(map[string]TimerEntry, len(s.Timers)),
		Notifications: make([]Notification, len(s.Notifications)),
		LoadedAt:      s.LoadedAt,
		Version:       s.Version + 1,
	}
	copy(cp.Orders, s.Orders)
	copy(cp.Notifications, s.Notifications)
	for k, v := range s.Timers {
		cp.Timers[k] = v
	}
	return cp
}

func (s *Snapshot) Timer(orderID string) (TimerEntry, bool) {
	e, ok := s.Timers[orderID]
	return e, ok
}

func (s *Snapshot) Order(orderID string) (Order, bool) {
	for _, o := range s.Orders {
		if o.ID == orderID {
			return o, true
		}
	}
	return Order{}, false
}

// Tracked reports whether the order is represented in the countdown map.
func (s *Snapshot) Tracked(orderID string) bool {
	_, ok := s.Timers[orderID]
	return ok
}

// Drop removes the order from both the list and the countdown map. Only valid on a clone.
func (s *Snapshot) Drop(orderID string) {
	delete(s.Timers, orderID)
	kept := s.Orders[:0]
	for _, o := range s.Orders {
		if o.ID != orderID {
			kept = append(kept, o)
		}
	}
	s.Orders = kept
}
