package monitoring

import (
	"log"
	"sync"

	"golang.org/x/time/rate"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Limited is a rate limited view of Logf for hot paths such as per-frame
// diagnostics. Lines over the limit are counted and the count is reported
// with the next line that gets through.
type Limited struct {
	limiter *rate.Limiter

	mu         sync.Mutex
	suppressed int
}

// NewLimited allows perSecond lines per second with the given burst. A
// non-positive perSecond disables limiting.
func NewLimited(perSecond float64, burst int) *Limited {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{limiter: rate.NewLimiter(limit, burst)}
}

// Logf logs through the package Logf if the limiter allows it. It reports
// whether the line was written.
func (l *Limited) Logf(format string, v ...interface{}) bool {
	l.mu.Lock()
	if !l.limiter.Allow() {
		l.suppressed++
		l.mu.Unlock()
		return false
	}
	suppressed := l.suppressed
	l.suppressed = 0
	l.mu.Unlock()

	if suppressed > 0 {
		Logf("(%d similar lines suppressed)", suppressed)
	}
	Logf(format, v...)
	return true
}

// Suppressed returns the number of lines dropped since the last written one.
func (l *Limited) Suppressed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suppressed
}
