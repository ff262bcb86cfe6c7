package telemetry

import "sync"

// Log is the ordered, append-only record of a session's readings.
// A single writer appends while any number of readers observe it.
type Log struct {
	mu       sync.RWMutex
	readings []Reading
	subs     map[int]chan struct{}
	nextSub  int
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{subs: make(map[int]chan struct{})}
}

// Append adds r to the end of the log and notifies subscribers.
func (l *Log) Append(r Reading) {
	l.mu.Lock()
	l.readings = append(l.readings, r)
	l.mu.Unlock()
	l.notify()
}

// Reset clears the whole log. Individual readings are never removed.
func (l *Log) Reset() {
	l.mu.Lock()
	l.readings = nil
	l.mu.Unlock()
	l.notify()
}

// Len returns the number of readings recorded.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.readings)
}

// Overloads counts the readings with an alert.
func (l *Log) Overloads() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return countAlerts(l.readings)
}

// Readings returns a copy of the full log in order.
func (l *Log) Readings() []Reading {
	return l.Tail(-1)
}

// Tail returns a copy of the last n readings. A negative n returns everything.
func (l *Log) Tail(n int) []Reading {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.readings
	if n >= 0 && n < len(src) {
		src = src[len(src)-n:]
	}
	out := make([]Reading, len(src))
	copy(out, src)
	return out
}

// Since returns a copy of the readings at index i and later.
func (l *Log) Since(i int) []Reading {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 {
		i = 0
	}
	if i >= len(l.readings) {
		return nil
	}
	out := make([]Reading, len(l.readings)-i)
	copy(out, l.readings[i:])
	return out
}

// Last returns the most recent reading.
func (l *Log) Last() (Reading, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.readings) == 0 {
		return Reading{}, false
	}
	return l.readings[len(l.readings)-1], true
}

// Summary derives the dashboard counters from the log in one consistent view.
func (l *Log) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Summary{Total: len(l.readings), Overloads: countAlerts(l.readings)}
	if n := len(l.readings); n > 0 {
		last := l.readings[n-1]
		s.Latest = &last
	}
	return s
}

// Subscribe returns a channel that receives a signal after the log changes, and a
// function that cancels the subscription. Signals are coalesced: a slow reader sees
// one pending signal, never a blocked appender.
func (l *Log) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	if l.subs == nil {
		l.subs = make(map[int]chan struct{})
	}
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

func (l *Log) notify() {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, ch := range l.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func countAlerts(rs []Reading) int {
	n := 0
	for _, r := range rs {
		if r.Alert {
			n++
		}
	}
	return n
}
