package telemetry

import (
	"testing"
	"time"
)

func TestLogCountersTrackLog(t *testing.T) {
	gen, _ := NewGenerator("t1", testConfig(), NewSource(11))
	log := NewLog()
	st := State{Weight: 10}
	if s := log.Summary(); s.Total != 0 || s.Overloads != 0 || s.Latest != nil {
		t.Fatalf("empty log summary: %+v", s)
	}
	for n := 1; n <= 300; n++ {
		var r Reading
		r, st, _ = gen.Next(st)
		log.Append(r)

		readings := log.Readings()
		alerts := 0
		for _, rr := range readings {
			if rr.Alert {
				alerts++
			}
		}
		s := log.Summary()
		if s.Total != n || log.Len() != n {
			t.Fatalf("after %d appends total=%d len=%d", n, s.Total, log.Len())
		}
		if s.Overloads != alerts || log.Overloads() != alerts {
			t.Fatalf("after %d appends overloads=%d, want %d", n, s.Overloads, alerts)
		}
		if *s.Latest != r {
			t.Fatalf("latest mismatch")
		}
	}
}

func TestLogCopiesAreIsolated(t *testing.T) {
	log := NewLog()
	log.Append(Reading{TruckID: "a", Weight: 1})
	got := log.Readings()
	got[0].Weight = 99
	if r, _ := log.Last(); r.Weight != 1 {
		t.Fatalf("log mutated through returned slice")
	}
}

func TestLogTailAndSince(t *testing.T) {
	log := NewLog()
	for i := 0; i < 5; i++ {
		log.Append(Reading{Weight: float64(i)})
	}
	tail := log.Tail(2)
	if len(tail) != 2 || tail[0].Weight != 3 || tail[1].Weight != 4 {
		t.Fatalf("unexpected tail: %+v", tail)
	}
	if len(log.Tail(10)) != 5 {
		t.Fatalf("tail larger than log should return all")
	}
	since := log.Since(3)
	if len(since) != 2 || since[0].Weight != 3 {
		t.Fatalf("unexpected since: %+v", since)
	}
	if log.Since(5) != nil {
		t.Fatalf("since past end should be empty")
	}
}

func TestLogReset(t *testing.T) {
	log := NewLog()
	log.Append(Reading{Alert: true})
	log.Reset()
	if log.Len() != 0 || log.Overloads() != 0 {
		t.Fatalf("reset did not clear the log")
	}
	if _, ok := log.Last(); ok {
		t.Fatalf("expected no last reading")
	}
}

func TestLogSubscribe(t *testing.T) {
	log := NewLog()
	ch, cancel := log.Subscribe()
	log.Append(Reading{})
	log.Append(Reading{})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected change notification")
	}
	select {
	case <-ch:
		t.Fatalf("notifications should be coalesced")
	default:
	}
	cancel()
	cancel()
	log.Append(Reading{})
	select {
	case <-ch:
		t.Fatalf("cancelled subscription received a notification")
	default:
	}
}
