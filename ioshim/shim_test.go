package ioshim

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"github.com/xtaci/ecvolume/stats"
)

func waitForCompletions(t *testing.T, s *Shim, want int, timeout time.Duration) []*Context {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var got []*Context
	for time.Now().Before(deadline) {
		completed, _ := s.Reap(0)
		got = append(got, completed...)
		if len(got) >= want {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d completions, got %d", want, len(got))
	return nil
}

func TestAllocAlignedIsPageAligned(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		buf := allocAligned(n)
		if len(buf) != n*PageSize {
			t.Fatalf("allocAligned(%d) len = %d, want %d", n, len(buf), n*PageSize)
		}
		if off := uintptr(unsafe.Pointer(&buf[0])) % PageSize; off != 0 {
			t.Fatalf("allocAligned(%d) starts %d bytes past a page boundary", n, off)
		}
	}
}

func TestSubmitWriteThenReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.bin")
	c := &stats.Counters{}

	// O_DIRECT is unreliable on tmpfs/overlay test environments, so this
	// test exercises the shim with directIO disabled; SubmitRead/Write's
	// page-aligned buffer handling is identical either way.
	s, err := Open(path, false, 4, c)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	payload := bytes.Repeat([]byte{0xAB}, PageSize)
	_, err = s.SubmitWrite(0, 1, payload)
	if err != nil {
		t.Fatalf("SubmitWrite: %v", err)
	}
	writes := waitForCompletions(t, s, 1, time.Second)
	if writes[0].Err != nil {
		t.Fatalf("write completed with error: %v", writes[0].Err)
	}

	rctx, err := s.SubmitRead(0, 1)
	if err != nil {
		t.Fatalf("SubmitRead: %v", err)
	}
	reads := waitForCompletions(t, s, 1, time.Second)
	if reads[0].Err != nil {
		t.Fatalf("read completed with error: %v", reads[0].Err)
	}
	if !bytes.Equal(rctx.Buffer, payload) {
		t.Fatalf("read back %x..., want %x...", rctx.Buffer[:4], payload[:4])
	}

	if c.BlocksWritten != 1 || c.BlocksRead != 1 {
		t.Fatalf("counters: BlocksWritten=%d BlocksRead=%d, want 1,1", c.BlocksWritten, c.BlocksRead)
	}
}

func TestSubmitWriteWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.bin")
	s, err := Open(path, false, 4, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.SubmitWrite(0, 1, make([]byte, PageSize-1)); err == nil {
		t.Fatal("SubmitWrite accepted mis-sized data")
	}
}

func TestSubmitRespectsQueueDepth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.bin")
	s, err := Open(path, false, 1, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		waitForCompletions(t, s, 1, time.Second)
		s.Close()
	}()

	if _, err := s.SubmitRead(0, 1); err != nil {
		t.Fatalf("first SubmitRead: %v", err)
	}
	// The queue depth is 1 in-flight slot and nothing is reaped here: a
	// worker keeps its slot until its completion is queued, and the
	// completion queue holds one entry, so by the second extra submission
	// at the latest the slot is held and Submit must return ErrQueueFull
	// rather than block.
	sawQueueFull := false
	for i := 0; i < 64; i++ {
		if _, err := s.SubmitRead(int64(i+1), 1); err == ErrQueueFull {
			sawQueueFull = true
			break
		}
		time.Sleep(time.Microsecond)
	}
	if !sawQueueFull {
		t.Fatal("submissions beyond the queue depth never returned ErrQueueFull")
	}
}

func TestReapNonBlockingWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.bin")
	s, err := Open(path, false, 4, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	completed, pages := s.Reap(0)
	if len(completed) != 0 || pages != 0 {
		t.Fatalf("Reap on idle shim returned %d completions, %d pages", len(completed), pages)
	}
}
