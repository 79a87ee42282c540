package scrape

import (
	"sync/atomic"
	"time"
)

// Status is the outcome of the most recent trigger, for the UI.
type Status struct {
	Kind      string `json:"kind,omitempty"` // jobs | university
	LastRunAt string `json:"last_run_at"`
	LastOkAt  string `json:"last_ok_at"`
	LastError string `json:"last_error"`
	Message   string `json:"message,omitempty"`
	Running   bool   `json:"running"`
}

type Tracker struct {
	v atomic.Value // Status
}

func NewTracker() *Tracker {
	t := &Tracker{}
	t.v.Store(Status{})
	return t
}

func (t *Tracker) Load() Status {
	return t.v.Load().(Status)
}

// Begin marks a run as started. It reports false if one is already running.
func (t *Tracker) Begin(kind string) bool {
	for {
		cur := t.v.Load().(Status)
		if cur.Running {
			return false
		}
		next := cur
		next.Kind = kind
		next.Running = true
		next.LastRunAt = time.Now().Format(time.RFC3339)
		if t.v.CompareAndSwap(cur, next) {
			return true
		}
	}
}

func (t *Tracker) Finish(res Result, err error) Status {
	next := t.v.Load().(Status)
	now := time.Now().Format(time.RFC3339)
	next.Running = false
	next.LastRunAt = now
	next.Message = res.Message
	switch {
	case err != nil:
		next.LastError = err.Error()
		if res.Error != "" {
			next.LastError = res.Error
		}
	case !res.Success:
		next.LastError = res.Error
	default:
		next.LastError = ""
		next.LastOkAt = now
	}
	t.v.Store(next)
	return next
}
