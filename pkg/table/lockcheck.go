package table

import (
	"sync"
	"time"
)

// defaultLockThreshold is how long a hand may run, from its start to its
// last round boundary, before the table is considered stuck.
const defaultLockThreshold = 20 * time.Minute

// LockCheck raises an alarm when a running hand fails to progress past a
// round boundary within the threshold. The table keeps operating; the alarm
// is for operators.
type LockCheck struct {
	mu        sync.Mutex
	threshold time.Duration
	onLock    func()
	timer     *time.Timer
}

// NewLockCheck builds a watchdog firing onLock after threshold.
func NewLockCheck(threshold time.Duration, onLock func()) *LockCheck {
	return &LockCheck{threshold: threshold, onLock: onLock}
}

// Threshold returns the configured stuck-hand threshold.
func (l *LockCheck) Threshold() time.Duration { return l.threshold }

// Start arms (or re-arms) the watchdog.
func (l *LockCheck) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.threshold, l.onLock)
}

// Stop disarms the watchdog. Stopping an unarmed or fired watchdog is a
// no-op.
func (l *LockCheck) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}
