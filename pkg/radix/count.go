package radix

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/radixorder/pkg/cluster"
)

var _ cluster.ChunkTask = new(msbCount)

// msbCount histograms the first key byte of every local chunk and
// publishes the histograms of a node under one key homed on that node.
type msbCount struct {
	job    *job
	node   *cluster.Node
	counts *Long2DArray
}

func newMSBCount(j *job) func(node *cluster.Node) cluster.ChunkTask {
	return func(node *cluster.Node) cluster.ChunkTask {
		return &msbCount{job: j}
	}
}

func (task *msbCount) SetupLocal(ctx context.Context, node *cluster.Node) error {
	task.node = node
	task.counts = &Long2DArray{
		Val: make([][]int64, task.job.fr.NChunks()),
	}
	return nil
}

func (task *msbCount) Map(ctx context.Context, cidx int) error {
	chk := task.job.fr.Chunk(task.job.cols[0], cidx)
	hist := make([]int64, 256)
	shift := task.job.shift
	for r := 0; r < chk.Len; r++ {
		hist[(chk.At8(r)>>shift)&0xFF]++
	}
	task.counts.Val[cidx] = hist
	return nil
}

func (task *msbCount) CloseLocal(ctx context.Context) error {
	key := task.job.countsKey(task.node.Index)
	if err := task.job.env.DKV.PutSync(ctx, key, task.counts); err != nil {
		return errors.Wrapf(err, "publish msb counts of %s", task.node)
	}
	return nil
}
