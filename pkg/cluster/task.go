package cluster

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/radixorder/pkg/util"
)

// ChunkSource tells the broadcast which chunks live on a node.
type ChunkSource interface {
	LocalChunks(node int) []int
}

// ChunkTask is the per node state of a broadcast over chunks. One task
// is created per node; Map runs concurrently for the node's chunks.
type ChunkTask interface {
	SetupLocal(ctx context.Context, node *Node) error
	Map(ctx context.Context, cidx int) error
	CloseLocal(ctx context.Context) error
}

// DoAll runs newTask on every node and maps it over the node's local
// chunks. It returns when all nodes are done or on the first error.
func DoAll(
	ctx context.Context,
	cloud *Cloud,
	src ChunkSource,
	newTask func(node *Node) ChunkTask,
) error {
	return DoAllNodes(ctx, cloud, func(ctx context.Context, node *Node) error {
		task := newTask(node)
		if err := task.SetupLocal(ctx, node); err != nil {
			return errors.Wrapf(err, "setup local on %s", node)
		}
		if err := mapChunks(ctx, node, src.LocalChunks(node.Index), task); err != nil {
			return err
		}
		if err := task.CloseLocal(ctx); err != nil {
			return errors.Wrapf(err, "close local on %s", node)
		}
		return nil
	})
}

func mapChunks(ctx context.Context, node *Node, chunks []int, task ChunkTask) error {
	wg, wctx := errgroup.WithContext(ctx)
	var acqErr error
	for _, cidx := range chunks {
		if acqErr = wctx.Err(); acqErr != nil {
			break
		}
		if acqErr = node.acquire(wctx); acqErr != nil {
			break
		}
		wg.Go(func() (retErr error) {
			defer node.release()
			defer func() {
				if rec := recover(); rec != nil {
					retErr = util.ConvertPanicError(rec)
				}
			}()
			if err := task.Map(wctx, cidx); err != nil {
				return errors.Wrapf(err, "map chunk %d on %s", cidx, node)
			}
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return err
	}
	return acqErr
}

// DoAllNodes runs fn once per node, all nodes in parallel.
func DoAllNodes(ctx context.Context, cloud *Cloud, fn func(ctx context.Context, node *Node) error) error {
	wg, wctx := errgroup.WithContext(ctx)
	for _, node := range cloud.members {
		wg.Go(func() (retErr error) {
			defer func() {
				if rec := recover(); rec != nil {
					retErr = util.ConvertPanicError(rec)
				}
			}()
			if err := wctx.Err(); err != nil {
				return err
			}
			return fn(wctx, node)
		})
	}
	return wg.Wait()
}
