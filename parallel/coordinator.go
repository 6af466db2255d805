// Package parallel runs the recursive search across N workers while
// reproducing the serial output byte for byte.
//
// Each worker drives its own independent enumeration of the same tree
// and claims only the entries whose position equals its worker id modulo
// N. Enumeration work is duplicated, but no enumerator state is shared,
// and because every walk yields the identical sequence the claim rule
// partitions the entries exactly once.
//
// Output goes into per-entry buckets indexed by the enumeration
// position. Bucket k is guarded by stripe lock k mod N; growing the
// bucket array takes all N locks in ascending order. Workers run in
// batches bounded by MaxNodes enumerated entries; between batches the
// coordinator — the only goroutine that ever touches the real sink —
// joins the workers, writes the buckets out in ascending order, and
// relaunches the walk from where each worker stopped.
package parallel

import (
	"io"
	"sync"

	"github.com/coregx/lgrep/walker"
)

const (
	// initialNodes is the starting bucket-array capacity.
	initialNodes = 1 << 15
	// nodesPerThread bounds one batch: 2^25 entries per worker, minus
	// slack so the growth check never races the bound.
	nodesPerThread = 1 << 25
)

// FileFunc processes one claimed entry (a file, an unreadable entry, or
// a detected cycle), writing any output for it to out. It reports
// whether the entry was handled without error and whether any line was
// selected.
type FileFunc func(e walker.Entry, out io.Writer) (ok bool, matched bool)

// Coordinator owns the worker pool and the ordered output buckets.
type Coordinator struct {
	// Threads is the worker count N; must be at least 1.
	Threads int
	// Out is the real output sink, written only between batches.
	Out io.Writer
	// MaxNodes overrides the batch bound when positive; tests use a
	// small bound to exercise the flush-and-restart cycle.
	MaxNodes int64
	// InitialNodes overrides the starting bucket capacity when
	// positive; tests use a small value to exercise growth.
	InitialNodes int

	locks    []sync.Mutex
	buckets  [][]byte
	finished bool
}

type workerState struct {
	id      int
	walk    *walker.Walk
	process FileFunc
	visited int64
	ok      bool
	matched bool
}

// Run enumerates the tree rooted at root until exhaustion. newWorker is
// called once per worker id to build the per-worker state (matcher
// clone, scan buffer, file handler). It returns whether any entry
// matched and whether every entry was handled without error.
func (c *Coordinator) Run(root string, wopts walker.Options, newWorker func(id int) FileFunc) (matched, ok bool) {
	n := c.Threads
	maxNodes := c.MaxNodes
	if maxNodes <= 0 {
		maxNodes = nodesPerThread*int64(n) - 8
	}

	seed := c.InitialNodes
	if seed <= 0 {
		seed = initialNodes
	}
	c.locks = make([]sync.Mutex, n)
	c.buckets = make([][]byte, seed)

	workers := make([]*workerState, n)
	for i := 0; i < n; i++ {
		workers[i] = &workerState{
			id:      i,
			walk:    walker.New(root, wopts),
			process: newWorker(i),
			ok:      true,
		}
	}

	for {
		var wg sync.WaitGroup
		for _, w := range workers {
			wg.Add(1)
			go func(w *workerState) {
				defer wg.Done()
				c.runWorker(w, maxNodes)
			}(w)
		}
		wg.Wait()

		c.flush(workers[0].visited)
		if c.finished {
			break
		}
		for _, w := range workers {
			w.visited = 0
		}
	}

	ok = true
	for _, w := range workers {
		ok = ok && w.ok
		matched = matched || w.matched
	}
	return matched, ok
}

// runWorker advances one worker until its walk ends or the batch bound
// is reached. Every enumerated entry bumps the visited counter whether
// or not this worker claims it; that keeps the counters of all workers
// in lockstep, so each batch ends at the same entry everywhere.
func (c *Coordinator) runWorker(w *workerState, maxNodes int64) {
	n := int64(c.Threads)
	for {
		e, more := w.walk.Next()
		if !more {
			if w.id == 0 {
				c.finished = true
			}
			return
		}
		if w.visited%n == int64(w.id) {
			c.ensureCapacity(w.visited)
			switch e.Kind {
			case walker.KindFile, walker.KindError, walker.KindCycle:
				ok, matched := w.process(e, &nodeWriter{c: c, node: w.visited})
				w.ok = w.ok && ok
				w.matched = w.matched || matched
			}
		}
		w.visited++
		if w.visited >= maxNodes {
			return
		}
	}
}

// ensureCapacity grows the bucket array, under every stripe lock in
// ascending order, when node is about to run past it.
func (c *Coordinator) ensureCapacity(node int64) {
	if node <= int64(len(c.buckets))-4 {
		return
	}
	for i := range c.locks {
		c.locks[i].Lock()
	}
	newLen := len(c.buckets)
	for int64(newLen)-4 < node {
		newLen *= 2
	}
	if newLen > len(c.buckets) {
		grown := make([][]byte, newLen)
		copy(grown, c.buckets)
		c.buckets = grown
	}
	for i := len(c.locks) - 1; i >= 0; i-- {
		c.locks[i].Unlock()
	}
}

// flush writes buckets [0, limit) to the real sink in order and frees
// them. Only the coordinator calls this, after all workers have joined.
func (c *Coordinator) flush(limit int64) {
	if limit > int64(len(c.buckets)) {
		limit = int64(len(c.buckets))
	}
	for i := int64(0); i < limit; i++ {
		if len(c.buckets[i]) > 0 {
			c.Out.Write(c.buckets[i])
			c.buckets[i] = nil
		}
	}
}

// nodeWriter appends to one output bucket under its stripe lock.
type nodeWriter struct {
	c    *Coordinator
	node int64
}

func (w *nodeWriter) Write(p []byte) (int, error) {
	lock := &w.c.locks[w.node%int64(w.c.Threads)]
	lock.Lock()
	w.c.buckets[w.node] = append(w.c.buckets[w.node], p...)
	lock.Unlock()
	return len(p), nil
}
