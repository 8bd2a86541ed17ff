package cluster

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/radixorder/pkg/util"
)

// Future is the pending result of a targeted call.
type Future struct {
	done chan struct{}
	err  error
}

func (f *Future) Get() error {
	<-f.done
	return f.err
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Call runs fn on node once the node has a free core.
func Call(ctx context.Context, node *Node, fn func(ctx context.Context, node *Node) error) *Future {
	fut := &Future{done: make(chan struct{})}
	go func() {
		defer close(fut.done)
		defer func() {
			if rec := recover(); rec != nil {
				fut.err = util.ConvertPanicError(rec)
			}
		}()
		if err := util.Fire(util.FAULTS_SCOPE_RPC, "call"); err != nil {
			fut.err = errors.Wrapf(err, "call on %s", node)
			return
		}
		if err := node.acquire(ctx); err != nil {
			fut.err = err
			return
		}
		defer node.release()
		fut.err = fn(ctx, node)
	}()
	return fut
}

// Futures collects asynchronous operations and waits for all of them.
type Futures struct {
	wg  errgroup.Group
	cnt atomic.Int64
}

func NewFutures() *Futures {
	return &Futures{}
}

func (fs *Futures) Add(fn func() error) {
	fs.cnt.Add(1)
	fs.wg.Go(func() (retErr error) {
		defer func() {
			if rec := recover(); rec != nil {
				retErr = util.ConvertPanicError(rec)
			}
		}()
		return fn()
	})
}

func (fs *Futures) AddFuture(fut *Future) {
	fs.Add(fut.Get)
}

// Added is the number of operations added so far.
func (fs *Futures) Added() int {
	return int(fs.cnt.Load())
}

// BlockForPending waits for every added operation and returns the first
// error.
func (fs *Futures) BlockForPending() error {
	return fs.wg.Wait()
}
