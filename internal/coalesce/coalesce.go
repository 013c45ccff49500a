// Package coalesce batches the ANSI output of many small Draw packets into
// fewer SSH channel writes.
//
// A device redrawing a busy screen sends a burst of Draw packets, each of
// which renders to a few dozen bytes. A Coalescer collects them and flushes
// when:
//
//   - the deadline expires, measured from the first byte of the batch and
//     not extended by later adds
//   - the batch reaches the threshold
//   - the owner calls Flush explicitly, before teardown output
package coalesce

import "time"

const (
	// DefaultDelay is short enough that typing echo feels immediate.
	DefaultDelay = 2 * time.Millisecond

	// DefaultThreshold forces a flush when a batch grows this large.
	DefaultThreshold = 32 * 1024
)

// Coalescer accumulates bytes and flushes on deadline or threshold.
// It belongs to one goroutine, normally a session's relay loop.
type Coalescer struct {
	buf       []byte
	delay     time.Duration
	threshold int
	timer     *time.Timer
	armed     bool
}

// New returns a Coalescer using the default delay and threshold.
func New() *Coalescer {
	return NewWith(DefaultDelay, DefaultThreshold)
}

// NewWith returns a Coalescer with explicit limits. Non-positive values
// select the defaults.
func NewWith(delay time.Duration, threshold int) *Coalescer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &Coalescer{
		buf:       make([]byte, 0, threshold),
		delay:     delay,
		threshold: threshold,
		timer:     t,
	}
}

// Add appends data and reports whether the batch reached the threshold, in
// which case the caller should flush now.
func (c *Coalescer) Add(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if !c.armed {
		c.timer.Reset(c.delay)
		c.armed = true
	}
	c.buf = append(c.buf, data...)
	return len(c.buf) >= c.threshold
}

// Flush returns the batch, or nil when empty, and disarms the deadline.
// The caller owns the returned slice.
func (c *Coalescer) Flush() []byte {
	c.disarm()
	if len(c.buf) == 0 {
		return nil
	}
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	c.buf = c.buf[:0]
	return out
}

func (c *Coalescer) disarm() {
	if !c.armed {
		return
	}
	if !c.timer.Stop() {
		// Already fired; drain so a later select does not see a stale tick.
		select {
		case <-c.timer.C:
		default:
		}
	}
	c.armed = false
}

// Timer returns the deadline channel for a select loop:
//
//	case <-out.Timer():
//	    write(out.Flush())
//
// It is nil while no batch is pending, which disables the case.
func (c *Coalescer) Timer() <-chan time.Time {
	if !c.armed {
		return nil
	}
	return c.timer.C
}

// Stop releases the timer.
func (c *Coalescer) Stop() {
	c.timer.Stop()
	c.armed = false
}

// Pending returns the number of buffered bytes.
func (c *Coalescer) Pending() int {
	return len(c.buf)
}
