// Package execlog records the audit trail of a run: signals evaluated,
// intents issued or skipped with a reason, and the broker's fill or
// rejection notifications correlated back to their intents. It carries no
// business logic.
package execlog

import (
	"sync"
	"time"

	"github.com/helmquant/helm/internal/core"
)

// Kind classifies a log record.
type Kind string

const (
	KindActivation Kind = "activation"
	KindSignal     Kind = "signal"
	KindIntent     Kind = "intent"
	KindSkip       Kind = "skip"
	KindFill       Kind = "fill"
	KindReject     Kind = "reject"
)

// Record is one append-only audit entry.
type Record struct {
	Seq        int64
	Kind       Kind
	Step       int
	Instrument string
	Action     core.Action
	Size       int64
	Price      float64
	IntentID   string
	Reason     string
	Time       time.Time
}

// Filter selects records for listing and counting.
type Filter struct {
	Instrument string
	Kind       Kind
	IntentID   string
}

// Log is a mutex-guarded in-memory audit log.
type Log struct {
	mu       sync.RWMutex
	records  []Record
	seq      int64
	byIntent map[string]int // intent ID -> index of the intent record
}

// New creates an empty log.
func New() *Log {
	return &Log{
		byIntent: make(map[string]int),
	}
}

func (l *Log) append(r Record) Record {
	l.seq++
	r.Seq = l.seq
	l.records = append(l.records, r)
	return r
}

// Activation records the one-time notice that an instrument became ready.
func (l *Log) Activation(step int, instrument string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.append(Record{Kind: KindActivation, Step: step, Instrument: instrument, Time: at})
}

// Signal records an evaluated signal.
func (l *Log) Signal(sig core.Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.append(Record{
		Kind:       KindSignal,
		Step:       sig.Step,
		Instrument: sig.Instrument,
		Action:     sig.Action,
		Price:      sig.Price,
		Time:       sig.GeneratedAt,
	})
}

// Intent records a submitted intent keyed by the broker-assigned ID.
func (l *Log) Intent(step int, instrument string, action core.Action, size int64, price float64, intentID string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.append(Record{
		Kind:       KindIntent,
		Step:       step,
		Instrument: instrument,
		Action:     action,
		Size:       size,
		Price:      price,
		IntentID:   intentID,
		Time:       at,
	})
	l.byIntent[intentID] = len(l.records) - 1
}

// Skip records a signal that was dropped, with the reason.
func (l *Log) Skip(step int, instrument string, action core.Action, reason string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.append(Record{
		Kind:       KindSkip,
		Step:       step,
		Instrument: instrument,
		Action:     action,
		Reason:     reason,
		Time:       at,
	})
}

// Fill reconciles a fill notification with its intent. An unknown intent ID
// is still recorded, flagged as unmatched.
func (l *Log) Fill(intentID string, size int64, price float64, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := Record{Kind: KindFill, Size: size, Price: price, IntentID: intentID, Time: at}
	if idx, ok := l.byIntent[intentID]; ok {
		r.Instrument = l.records[idx].Instrument
		r.Action = l.records[idx].Action
		r.Step = l.records[idx].Step
	} else {
		r.Reason = "unmatched intent"
	}
	l.append(r)
}

// Reject reconciles a rejection notification with its intent.
func (l *Log) Reject(intentID string, reason string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := Record{Kind: KindReject, IntentID: intentID, Reason: reason, Time: at}
	if idx, ok := l.byIntent[intentID]; ok {
		r.Instrument = l.records[idx].Instrument
		r.Action = l.records[idx].Action
		r.Step = l.records[idx].Step
	}
	l.append(r)
}

// Records returns a copy of all records in append order.
func (l *Log) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// List returns records matching the filter, in append order.
func (l *Log) List(f Filter) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Record
	for _, r := range l.records {
		if l.matches(r, f) {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the number of records matching the filter.
func (l *Log) Count(f Filter) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, r := range l.records {
		if l.matches(r, f) {
			n++
		}
	}
	return n
}

func (l *Log) matches(r Record, f Filter) bool {
	if f.Instrument != "" && r.Instrument != f.Instrument {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.IntentID != "" && r.IntentID != f.IntentID {
		return false
	}
	return true
}
