package relay

import "time"

type decision int

const (
	decisionForward decision = iota
	decisionNotice           // suppress the event and post the one notice for this episode
	decisionSuppress
)

// window is a sliding-window message budget. It is not safe for concurrent
// use; NotificationSink guards it with its mutex.
type window struct {
	max    int
	period time.Duration

	// sent holds one timestamp per spent slot, non-decreasing.
	sent       []time.Time
	noticeSent bool
}

func newWindow(max int, period time.Duration) window {
	return window{max: max, period: period, sent: make([]time.Time, 0, max)}
}

// prune drops timestamps older than period relative to now. A timestamp
// exactly period old is kept.
func (w *window) prune(now time.Time) {
	i := 0
	for i < len(w.sent) && now.Sub(w.sent[i]) > w.period {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(w.sent, w.sent[i:])
	clear(w.sent[n:])
	w.sent = w.sent[:n]
}

// decide prunes, then either spends a slot or reports exhaustion.
//
// The notice flag is reset only when an event is admitted again, not when
// the window drains on its own.
func (w *window) decide(now time.Time) decision {
	if n := len(w.sent); n > 0 && now.Before(w.sent[n-1]) {
		// Keep insertion order monotonic if the wall clock steps back.
		now = w.sent[n-1]
	}
	w.prune(now)

	if len(w.sent) >= w.max {
		if w.noticeSent {
			return decisionSuppress
		}
		w.noticeSent = true
		return decisionNotice
	}

	w.sent = append(w.sent, now)
	w.noticeSent = false
	return decisionForward
}

// WindowSnapshot is a point-in-time view of a sink's budget.
type WindowSnapshot struct {
	Count      int           `json:"count"`
	Capacity   int           `json:"capacity"`
	Period     time.Duration `json:"period"`
	NoticeSent bool          `json:"notice_sent"`
	Oldest     time.Time     `json:"oldest,omitempty"`
}

func (w *window) snapshot() WindowSnapshot {
	s := WindowSnapshot{Count: len(w.sent), Capacity: w.max, Period: w.period, NoticeSent: w.noticeSent}
	if len(w.sent) > 0 {
		s.Oldest = w.sent[0]
	}
	return s
}
