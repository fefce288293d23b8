// Package ioshim is the asynchronous page I/O shim: it submits reads and
// writes of contiguous page ranges against a direct-I/O file descriptor
// and reaps their completions, owning each operation's page-aligned
// buffer from submission to reap.
//
// Grounded on kcp-go/v5's readloop_linux.go/tx_linux.go batch I/O shape
// (a fixed-size in-flight set, non-blocking drain, atomic counters) and
// on reedsolomon/unsafe.go's AllocAligned for page-aligned buffers. The
// shim has no interpretation of block contents (spec.md 4.F) -- that is
// package block's job.
package ioshim

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/xtaci/ecvolume/stats"
	"golang.org/x/sys/unix"
)

// Op distinguishes a read context from a write context.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

// Context is a single in-flight I/O operation. It exclusively owns Buffer
// from the moment Submit* returns until it is observed by Reap.
type Context struct {
	Op        Op
	StartPage int64
	NumPages  int
	Buffer    []byte
	Err       error
}

// ErrQueueFull is returned by Submit* when the shim's in-flight queue is
// saturated; the caller may retry once outstanding operations drain.
var ErrQueueFull = errors.New("ioshim: submission queue full")

// Shim owns one open file descriptor and its pool of I/O workers.
type Shim struct {
	fd       int
	f        *os.File
	sem      chan struct{} // bounds in-flight operations
	pending  chan *Context // completed ops waiting to be reaped
	wg       sync.WaitGroup
	closed   int32
	counters *stats.Counters
}

// Open opens path for direct, page-aligned I/O (O_DIRECT when directIO is
// true; plain O_RDWR otherwise, e.g. for platforms/filesystems without
// O_DIRECT support) and returns a Shim with the given in-flight queue
// depth.
func Open(path string, directIO bool, queueDepth int, counters *stats.Counters) (*Shim, error) {
	if queueDepth <= 0 {
		queueDepth = 1
	}
	flags := os.O_RDWR | os.O_CREATE
	if directIO {
		flags |= unix.O_DIRECT
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "ioshim: opening volume file")
	}
	if counters == nil {
		counters = &stats.Counters{}
	}
	return &Shim{
		fd:       int(f.Fd()),
		f:        f,
		sem:      make(chan struct{}, queueDepth),
		pending:  make(chan *Context, queueDepth),
		counters: counters,
	}, nil
}

// Close waits for outstanding operations to finish reaping and closes
// the underlying file descriptor. Callers must have already reaped every
// submission (spec.md 5's cancellation policy: stop submitting, then
// drain to zero) before calling Close.
func (s *Shim) Close() error {
	atomic.StoreInt32(&s.closed, 1)
	s.wg.Wait()
	return s.f.Close()
}

// SubmitRead allocates a page-aligned buffer of numPages*PageSize bytes,
// enqueues a read of [startPage, startPage+numPages) into it, and
// returns the owning Context. The read completes asynchronously; observe
// it with Reap.
func (s *Shim) SubmitRead(startPage int64, numPages int) (*Context, error) {
	ctx := &Context{
		Op:        OpRead,
		StartPage: startPage,
		NumPages:  numPages,
		Buffer:    allocAligned(numPages),
	}
	return ctx, s.submit(ctx)
}

// SubmitWrite allocates a page-aligned, writer-owned buffer, copies data
// into it, and enqueues a write of [startPage, startPage+numPages).
func (s *Shim) SubmitWrite(startPage int64, numPages int, data []byte) (*Context, error) {
	if len(data) != numPages*PageSize {
		return nil, errors.Errorf("ioshim: SubmitWrite: data is %d bytes, want %d", len(data), numPages*PageSize)
	}
	ctx := &Context{
		Op:        OpWrite,
		StartPage: startPage,
		NumPages:  numPages,
		Buffer:    allocAligned(numPages),
	}
	copy(ctx.Buffer, data)
	return ctx, s.submit(ctx)
}

func (s *Shim) submit(ctx *Context) error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return errors.New("ioshim: shim is closed")
	}
	select {
	case s.sem <- struct{}{}:
	default:
		atomic.AddUint64(&s.counters.IOSubmissionFailures, 1)
		return ErrQueueFull
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()

		offset := ctx.StartPage * PageSize
		switch ctx.Op {
		case OpRead:
			_, err := unix.Pread(s.fd, ctx.Buffer, offset)
			if err != nil {
				ctx.Err = errors.Wrap(err, "ioshim: Pread")
			} else {
				atomic.AddUint64(&s.counters.BlocksRead, uint64(ctx.NumPages))
			}
		case OpWrite:
			_, err := unix.Pwrite(s.fd, ctx.Buffer, offset)
			if err != nil {
				ctx.Err = errors.Wrap(err, "ioshim: Pwrite")
			} else {
				atomic.AddUint64(&s.counters.BlocksWritten, uint64(ctx.NumPages))
			}
		}

		select {
		case s.pending <- ctx:
		default:
			// Reaper isn't keeping up; block briefly rather than drop a
			// completion, since that would leak the buffer forever.
			s.pending <- ctx
		}
	}()
	return nil
}

// Reap polls, non-blocking, for up to maxBatch completed operations
// (0 means unbounded within what is already available) and returns them
// along with the total page count completed. Buffers are considered
// freed once returned here; callers must not retain Context.Buffer
// beyond their own use of the result.
func (s *Shim) Reap(maxBatch int) (completed []*Context, pagesCompleted int) {
	for maxBatch <= 0 || len(completed) < maxBatch {
		select {
		case ctx := <-s.pending:
			completed = append(completed, ctx)
			pagesCompleted += ctx.NumPages
		default:
			return completed, pagesCompleted
		}
	}
	return completed, pagesCompleted
}
