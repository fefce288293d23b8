// Package stats provides the atomic operation counters and CSV logger
// collaborators use to observe the erasure-coding core from the outside.
//
// Grounded verbatim in shape on std/snmp.go's SnmpLogger (a ticker that
// appends a CSV row built from a counters struct's Header()/ToSlice() to
// a rotating log file) and on kcp-go's DefaultSnmp atomic-counter
// bookkeeping pattern used throughout readloop_linux.go/tx_linux.go.
package stats

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Counters tracks the operations SPEC_FULL.md's components perform.
// Every field is updated with sync/atomic and may be read concurrently.
type Counters struct {
	BlocksRead            uint64
	BlocksWritten         uint64
	ChecksumFailures      uint64
	Reconstructs          uint64
	SingularMatrixErrors  uint64
	IOSubmissionFailures  uint64
	IOAllocationFailures  uint64
}

// Header returns the CSV column names, in the same order as ToSlice.
func (c *Counters) Header() []string {
	return []string{
		"BlocksRead", "BlocksWritten", "ChecksumFailures",
		"Reconstructs", "SingularMatrixErrors",
		"IOSubmissionFailures", "IOAllocationFailures",
	}
}

// ToSlice returns the current counter values formatted as strings, in
// the same order as Header.
func (c *Counters) ToSlice() []string {
	return []string{
		fmt.Sprint(atomic.LoadUint64(&c.BlocksRead)),
		fmt.Sprint(atomic.LoadUint64(&c.BlocksWritten)),
		fmt.Sprint(atomic.LoadUint64(&c.ChecksumFailures)),
		fmt.Sprint(atomic.LoadUint64(&c.Reconstructs)),
		fmt.Sprint(atomic.LoadUint64(&c.SingularMatrixErrors)),
		fmt.Sprint(atomic.LoadUint64(&c.IOSubmissionFailures)),
		fmt.Sprint(atomic.LoadUint64(&c.IOAllocationFailures)),
	}
}

// Reset zeroes every counter.
func (c *Counters) Reset() {
	atomic.StoreUint64(&c.BlocksRead, 0)
	atomic.StoreUint64(&c.BlocksWritten, 0)
	atomic.StoreUint64(&c.ChecksumFailures, 0)
	atomic.StoreUint64(&c.Reconstructs, 0)
	atomic.StoreUint64(&c.SingularMatrixErrors, 0)
	atomic.StoreUint64(&c.IOSubmissionFailures, 0)
	atomic.StoreUint64(&c.IOAllocationFailures, 0)
}

// CSVLogger periodically appends one CSV row of c's current values to
// path, rotating the filename through time.Now().Format the same way
// std/snmp.go's SnmpLogger does. It returns at once; the rows are
// written by a background goroutine that runs until the returned stop
// function is called.
func CSVLogger(path string, interval time.Duration, c *Counters) (stop func()) {
	if path == "" || interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeRow(path, c)
			}
		}
	}()
	var once int32
	return func() {
		if atomic.CompareAndSwapInt32(&once, 0, 1) {
			close(done)
		}
	}
}

func writeRow(path string, c *Counters) {
	logdir, logfile := filepath.Split(path)
	f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Println(err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		if err := w.Write(append([]string{"Unix"}, c.Header()...)); err != nil {
			log.Println(err)
		}
	}
	if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, c.ToSlice()...)); err != nil {
		log.Println(err)
	}
	w.Flush()
}
