package radix

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/daviszhen/radixorder/pkg/cluster"
	"github.com/daviszhen/radixorder/pkg/util"
)

// sendSplitMSB publishes the split buffers of one node to the owners of
// their MSBs and waits for every put.
func sendSplitMSB(ctx context.Context, j *job, node *cluster.Node) error {
	split, ok := j.env.Registry.Take(j.token, node.Index)
	if !ok {
		return invariantf("no split registered for %s", node)
	}
	start := time.Now()
	localChunks := j.fr.LocalChunks(node.Index)
	fs := cluster.NewFutures()
	var sumSize int64
	putErr := func() error {
		for msb, ox := range split.ox {
			if ox == nil {
				continue
			}
			counts, err := split.chunkCounts(msb, localChunks)
			if err != nil {
				return errors.Wrapf(err, "header for msb %d on %s", msb, node)
			}
			header := &MSBNodeHeader{Counts: counts}
			if err = j.env.DKV.Put(ctx, j.nodeHeaderKey(msb, node.Index), header, fs); err != nil {
				return err
			}
			for b := 0; b < ox.NBatches(); b++ {
				batch := ox.Batch(b)
				sumSize += int64(len(batch.O)*8 + len(batch.X))
				if err = j.env.DKV.Put(ctx, j.nodeOXBatchKey(msb, node.Index, b), batch, fs); err != nil {
					return err
				}
			}
		}
		return nil
	}()
	//puts already issued finish before the error is reported
	err := errors.CombineErrors(putErr, fs.BlockForPending())
	if err != nil {
		return errors.Wrapf(err, "send split msb from %s", node)
	}
	if !j.cfg.Radix.KeepCounts {
		if err = j.env.DKV.Remove(ctx, j.countsKey(node.Index)); err != nil {
			return errors.Wrapf(err, "remove msb counts of %s", node)
		}
	}
	util.Debug("radix order: split sent",
		zap.String("node", node.Name),
		zap.Int("puts", fs.Added()),
		zap.String("bytes", humanize.IBytes(uint64(sumSize))),
		zap.Duration("took", time.Since(start)))
	return nil
}
