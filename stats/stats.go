// Package stats tracks per-operation call counts and latencies for the
// named filesystem operations (create, link, unlink, mkdir, open, read,
// write) and renders them as a table. Grounded on util/stats/stats.go,
// retargeted from generic RPC names to this module's fsapi operations.
package stats

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rodaine/table"
)

// Op accumulates the call count and total latency of one operation kind.
type Op struct {
	count uint32
	nanos uint64
}

// Record adds one call that started at start to op's totals.
func (op *Op) Record(start time.Time) {
	atomic.AddUint32(&op.count, 1)
	atomic.AddUint64(&op.nanos, uint64(time.Since(start).Nanoseconds()))
}

// MicrosPerOp returns the mean latency of the calls recorded so far.
func (op Op) MicrosPerOp() float64 {
	if op.count == 0 {
		return 0
	}
	return float64(op.nanos) / float64(op.count) / 1e3
}

// The operation names this module reports counters for, in the order
// fsapi.Fs's callers exercise them.
const (
	OpCreate = iota
	OpMkdir
	OpMknod
	OpLink
	OpUnlink
	OpOpen
	OpChdir
	OpRead
	OpWrite
	numOps
)

var opNames = [numOps]string{
	OpCreate: "create",
	OpMkdir:  "mkdir",
	OpMknod:  "mknod",
	OpLink:   "link",
	OpUnlink: "unlink",
	OpOpen:   "open",
	OpChdir:  "chdir",
	OpRead:   "read",
	OpWrite:  "write",
}

// Counters is a fixed table of per-operation counters, one per constant
// above, safe for concurrent use across transactions the way FsState is
// shared.
type Counters struct {
	ops [numOps]Op
}

// Record adds one timed call of kind to the counters.
func (c *Counters) Record(kind int, start time.Time) {
	c.ops[kind].Record(start)
}

// WriteTable renders every counter as a row to w.
func (c *Counters) WriteTable(w io.Writer) {
	tbl := table.New("op", "count", "us")
	var total Op
	for i, name := range opNames {
		op := Op{
			count: atomic.LoadUint32(&c.ops[i].count),
			nanos: atomic.LoadUint64(&c.ops[i].nanos),
		}
		total.count += op.count
		total.nanos += op.nanos
		tbl.AddRow(name, op.count, fmt.Sprintf("%0.1f us/op", op.MicrosPerOp()))
	}
	tbl.AddRow("total", total.count, fmt.Sprintf("%0.1f us", float64(total.nanos)/1e3))
	tbl.WithWriter(w)
}

// FormatTable renders every counter as a string, for logging or CLI
// output.
func (c *Counters) FormatTable() string {
	buf := new(bytes.Buffer)
	c.WriteTable(buf)
	return buf.String()
}
