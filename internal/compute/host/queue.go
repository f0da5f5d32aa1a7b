package host

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/clblur/internal/compute"
)

// queue executes commands on a single executor goroutine in submission
// order. In out-of-order mode every command gets its own goroutine and only
// Finish orders them.
type queue struct {
	ctx        *hostContext
	workers    int
	outOfOrder bool
	delay      func(seq int) time.Duration

	mu       sync.Mutex
	cmds     chan func()
	pending  sync.WaitGroup
	closed   bool
	errMu    sync.Mutex
	err      error
	dispatch atomic.Int64
	done     chan struct{}
}

func newQueue(ctx *hostContext, opts options) *queue {
	q := &queue{
		ctx:        ctx,
		workers:    opts.workers,
		outOfOrder: opts.outOfOrder,
		delay:      opts.delay,
		cmds:       make(chan func(), 64),
		done:       make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *queue) run() {
	defer close(q.done)
	for cmd := range q.cmds {
		cmd()
	}
}

// submit schedules fn and returns a channel closed once it has run.
func (q *queue) submit(fn func() error) (<-chan error, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, compute.ErrReleased
	}

	result := make(chan error, 1)
	q.pending.Add(1)
	cmd := func() {
		defer q.pending.Done()
		err := fn()
		if err != nil {
			q.recordErr(err)
		}
		result <- err
	}

	if q.outOfOrder {
		go cmd()
	} else {
		q.cmds <- cmd
	}
	return result, nil
}

func (q *queue) recordErr(err error) {
	q.errMu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.errMu.Unlock()
}

func (q *queue) WriteBuffer(buf compute.Buffer, data []byte) error {
	b, err := q.ownBuffer(buf)
	if err != nil {
		return err
	}
	if len(data) > b.Size() {
		return fmt.Errorf("%w: %d bytes into %d-byte buffer", compute.ErrSizeMismatch, len(data), b.Size())
	}

	res, err := q.submit(func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		mem, err := b.bytes()
		if err != nil {
			return err
		}
		copy(mem, data)
		return nil
	})
	if err != nil {
		return err
	}
	return <-res
}

func (q *queue) ReadBuffer(buf compute.Buffer, data []byte) error {
	b, err := q.ownBuffer(buf)
	if err != nil {
		return err
	}
	if len(data) > b.Size() {
		return fmt.Errorf("%w: %d bytes from %d-byte buffer", compute.ErrSizeMismatch, len(data), b.Size())
	}

	res, err := q.submit(func() error {
		b.mu.RLock()
		defer b.mu.RUnlock()
		mem, err := b.bytes()
		if err != nil {
			return err
		}
		copy(data, mem)
		return nil
	})
	if err != nil {
		return err
	}
	return <-res
}

func (q *queue) ownBuffer(buf compute.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b.ctx != q.ctx {
		return nil, fmt.Errorf("%w: buffer does not belong to this context", compute.ErrInvalidArg)
	}
	if b.released.Load() {
		return nil, compute.ErrReleased
	}
	return b, nil
}

func (q *queue) EnqueueNDRange(k compute.Kernel, global, local []int) error {
	kern, ok := k.(*kernel)
	if !ok || kern.prog.ctx != q.ctx {
		return fmt.Errorf("%w: kernel does not belong to this context", compute.ErrInvalidArg)
	}

	grid, err := newGrid(global, local)
	if err != nil {
		return err
	}

	args, err := kern.snapshot()
	if err != nil {
		return err
	}

	seq := int(q.dispatch.Add(1))
	_, err = q.submit(func() error {
		if q.delay != nil {
			if d := q.delay(seq); d > 0 {
				time.Sleep(d)
			}
		}
		return q.execute(kern, args, grid)
	})
	return err
}

func (q *queue) Finish() error {
	q.pending.Wait()

	q.errMu.Lock()
	defer q.errMu.Unlock()
	err := q.err
	q.err = nil
	return err
}

func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.pending.Wait()
	close(q.cmds)
	<-q.done
}

// execute binds the snapshot arguments and runs every work-group.
func (q *queue) execute(kern *kernel, args []any, grid grid) error {
	bound := make([]Arg, len(args))
	var locked []*buffer
	writes := map[*buffer]bool{}

	for i, a := range args {
		switch v := a.(type) {
		case *buffer:
			mem, err := v.bytes()
			if err != nil {
				return fmt.Errorf("%s argument %d: %w", kern.def.Name, i, err)
			}
			bound[i].Mem = mem
			if !slices.Contains(locked, v) {
				locked = append(locked, v)
			}
			if kern.def.Params[i].Kind == ParamBufferOut {
				writes[v] = true
			}
		case int32:
			bound[i].Int = v
		case float32:
			bound[i].Float = v
		}
	}

	// Lock in id order so concurrent dispatches cannot deadlock.
	slices.SortFunc(locked, func(a, b *buffer) int { return int(a.id) - int(b.id) })
	for _, b := range locked {
		if writes[b] {
			b.mu.Lock()
			defer b.mu.Unlock()
		} else {
			b.mu.RLock()
			defer b.mu.RUnlock()
		}
	}

	item, err := kern.def.Bind(kern.prog.defines, bound)
	if err != nil {
		return fmt.Errorf("%s: %w", kern.def.Name, err)
	}

	return grid.run(item, q.workers)
}

type grid struct {
	global [2]int
	local  [2]int
}

func newGrid(global, local []int) (grid, error) {
	var g grid
	if len(global) == 0 || len(global) > 2 {
		return g, fmt.Errorf("%w: %d work dimensions, host supports 1 or 2", compute.ErrInvalidWorkGroup, len(global))
	}
	if local != nil && len(local) != len(global) {
		return g, fmt.Errorf("%w: local has %d dimensions, global has %d", compute.ErrInvalidWorkGroup, len(local), len(global))
	}

	g.global = [2]int{1, 1}
	g.local = [2]int{1, 1}
	groupSize := 1
	for i, n := range global {
		if n <= 0 {
			return g, fmt.Errorf("%w: global size %d in dimension %d", compute.ErrInvalidWorkGroup, n, i)
		}
		g.global[i] = n
		if local != nil {
			l := local[i]
			if l <= 0 || n%l != 0 {
				return g, fmt.Errorf("%w: global size %d not a multiple of local size %d in dimension %d", compute.ErrInvalidWorkGroup, n, l, i)
			}
			g.local[i] = l
			groupSize *= l
		}
	}
	if groupSize > maxWorkGroupSize {
		return g, fmt.Errorf("%w: %d work-items per group exceeds %d", compute.ErrInvalidWorkGroup, groupSize, maxWorkGroupSize)
	}
	return g, nil
}

var errWorkItemFault = errors.New("work-item fault")

// run executes the work-groups on up to workers goroutines. A panic in a
// work-item is reported as a fault of the dispatch.
func (g grid) run(item WorkItem, workers int) error {
	groupsX := g.global[0] / g.local[0]
	groupsY := g.global[1] / g.local[1]
	total := groupsX * groupsY
	if workers > total {
		workers = total
	}

	var (
		next     atomic.Int64
		wg       sync.WaitGroup
		faultMu  sync.Mutex
		faultErr error
	)

	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					faultMu.Lock()
					if faultErr == nil {
						faultErr = fmt.Errorf("%w: %v", errWorkItemFault, r)
					}
					faultMu.Unlock()
				}
			}()
			for {
				idx := int(next.Add(1)) - 1
				if idx >= total {
					return
				}
				x0 := (idx % groupsX) * g.local[0]
				y0 := (idx / groupsX) * g.local[1]
				for y := y0; y < y0+g.local[1]; y++ {
					for x := x0; x < x0+g.local[0]; x++ {
						item(x, y)
					}
				}
			}
		}()
	}
	wg.Wait()

	return faultErr
}
