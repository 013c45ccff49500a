package coalesce

import (
	"testing"
	"time"
)

func TestAddAndFlush(t *testing.T) {
	c := New()
	defer c.Stop()

	c.Add([]byte("\x1b[0m"))
	c.Add([]byte("hello"))
	if c.Pending() != 9 {
		t.Fatalf("expected 9 pending, got %d", c.Pending())
	}

	data := c.Flush()
	if string(data) != "\x1b[0mhello" {
		t.Fatalf("expected reset+hello, got %q", data)
	}

	// After flush, empty
	if len(c.buf) != 0 {
		t.Fatalf("expected 0 pending after flush, got %d", len(c.buf))
	}
	if c.Flush() != nil {
		t.Fatal("expected nil from second flush")
	}
}

func TestThreshold(t *testing.T) {
	c := New()
	defer c.Stop()

	chunk := make([]byte, 1024)
	for range DefaultThreshold/1024 - 1 {
		if c.Add(chunk) {
			t.Fatal("should not hit threshold yet")
		}
	}

	if !c.Add(chunk) {
		t.Fatal("should hit threshold")
	}
}

func TestTimerFires(t *testing.T) {
	c := New()
	defer c.Stop()

	c.Add([]byte("x"))

	timer := c.Timer()
	if timer == nil {
		t.Fatal("timer should be non-nil after Add")
	}

	select {
	case <-timer:
		// expected
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timer should have fired within 100ms")
	}
}

func TestTimerNotResetOnSubsequentAdd(t *testing.T) {
	c := New()
	defer c.Stop()

	c.Add([]byte("first"))
	t1 := time.Now()

	time.Sleep(1 * time.Millisecond) // halfway to the deadline
	c.Add([]byte("second"))

	// Timer should fire around 2ms from first add, not from second
	select {
	case <-c.Timer():
		elapsed := time.Since(t1)
		if elapsed > 10*time.Millisecond {
			t.Fatalf("timer took too long: %v (deadline not reset)", elapsed)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timer should have fired")
	}
}

func TestFlushStopsTimer(t *testing.T) {
	c := New()
	defer c.Stop()

	c.Add([]byte("data"))
	c.Flush()

	// Timer channel should now be nil (no deadline active)
	if c.Timer() != nil {
		t.Fatal("timer should be nil after flush")
	}
}

func TestFlushedBatchIsOwnedByCaller(t *testing.T) {
	c := New()
	defer c.Stop()

	c.Add([]byte("\x1b[2;5H"))
	c.Add([]byte("ls"))
	first := c.Flush()

	c.Add([]byte("\x1b[3;1Hfile.txt"))
	second := c.Flush()

	if string(first) != "\x1b[2;5Hls" {
		t.Fatalf("first batch overwritten: %q", first)
	}
	if string(second) != "\x1b[3;1Hfile.txt" {
		t.Fatalf("second batch = %q", second)
	}
}

func TestEmptyBatch(t *testing.T) {
	c := New()
	defer c.Stop()

	for _, data := range [][]byte{nil, {}} {
		if c.Add(data) {
			t.Fatalf("Add(%q) reported full", data)
		}
	}
	if c.Pending() != 0 || c.Timer() != nil {
		t.Fatal("empty adds must not start a batch")
	}
	if c.Flush() != nil {
		t.Fatal("empty flush should return nil")
	}
}

func TestCustomLimits(t *testing.T) {
	c := NewWith(50*time.Millisecond, 8)
	defer c.Stop()

	if c.Add([]byte("\x1b[1;1H")) {
		t.Fatal("7 bytes should stay under an 8 byte threshold")
	}
	if !c.Add([]byte("x")) {
		t.Fatal("8 bytes should reach the threshold")
	}

	start := time.Now()
	c.Flush()
	c.Add([]byte("y"))
	<-c.Timer()
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("custom delay ignored: fired after %v", elapsed)
	}
}

func TestDefaultsForNonPositive(t *testing.T) {
	c := NewWith(0, -1)
	defer c.Stop()
	if c.delay != DefaultDelay || c.threshold != DefaultThreshold {
		t.Fatalf("got delay %v threshold %d", c.delay, c.threshold)
	}
}

// --- Fuzz tests ---

// FuzzCoalescerDataIntegrity splits output into chunks, flushing
// periodically, and checks the flushed stream equals the added stream.
func FuzzCoalescerDataIntegrity(f *testing.F) {
	f.Add([]byte("hello world"), 3, 5)
	f.Add([]byte{}, 1, 1)
	f.Add([]byte("abcdefghij"), 2, 4)
	f.Fuzz(func(t *testing.T, data []byte, nChunks int, flushEvery int) {
		if nChunks < 0 {
			nChunks = -nChunks
		}
		nChunks = nChunks%20 + 1 // 1..20 chunks
		if flushEvery < 0 {
			flushEvery = -flushEvery
		}
		flushEvery = flushEvery%5 + 1 // flush every 1..5 adds

		c := NewWith(time.Hour, 16)
		defer c.Stop()

		var allInput []byte
		var allOutput []byte

		// Split data into nChunks roughly-equal pieces and add them
		for i := 0; i < nChunks; i++ {
			start := len(data) * i / nChunks
			end := len(data) * (i + 1) / nChunks
			chunk := data[start:end]

			allInput = append(allInput, chunk...)
			full := c.Add(chunk)

			if full || (i+1)%flushEvery == 0 {
				if flushed := c.Flush(); flushed != nil {
					allOutput = append(allOutput, flushed...)
				}
			}
		}

		// Final flush
		if flushed := c.Flush(); flushed != nil {
			allOutput = append(allOutput, flushed...)
		}

		// Core invariant: no data lost, no data corrupted
		if len(allInput) != len(allOutput) {
			t.Fatalf("length mismatch: input %d bytes, output %d bytes", len(allInput), len(allOutput))
		}
		for i := range allInput {
			if allInput[i] != allOutput[i] {
				t.Fatalf("byte mismatch at offset %d: input 0x%02x, output 0x%02x", i, allInput[i], allOutput[i])
			}
		}
	})
}
