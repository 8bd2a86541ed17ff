package radix

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/radixorder/pkg/cluster"
	"github.com/daviszhen/radixorder/pkg/frame"
	"github.com/daviszhen/radixorder/pkg/util"
)

var _ cluster.ChunkTask = new(localSplit)

// localSplit moves the rows of one node into per MSB batched buffers. The
// buffers stay on the node and reach the send stage through the registry.
type localSplit struct {
	job  *job
	node *cluster.Node
	// counts[cidx][msb] turns into write offsets during setup and into end
	// offsets once every chunk is mapped.
	counts  [][]int64
	msbHist [256]int64
	ox      [256]*OX
}

func newLocalSplit(j *job) func(node *cluster.Node) cluster.ChunkTask {
	return func(node *cluster.Node) cluster.ChunkTask {
		return &localSplit{job: j}
	}
}

// loadImbalanceLimit is the largest MSB a node should hold before a
// warning.
func loadImbalanceLimit(totalRows int64, clusterSize int) int64 {
	return max(1000, totalRows/20/int64(clusterSize))
}

func (split *localSplit) SetupLocal(ctx context.Context, node *cluster.Node) error {
	j := split.job
	split.node = node
	arr := &Long2DArray{}
	found, err := j.env.DKV.GetGet(ctx, j.countsKey(node.Index), arr)
	if err != nil {
		return errors.Wrapf(err, "fetch msb counts of %s", node)
	}
	if !found {
		return invariantf("msb counts of %s missing", node)
	}
	if len(arr.Val) != j.fr.NChunks() {
		return invariantf("msb counts of %s cover %d chunks, frame has %d",
			node, len(arr.Val), j.fr.NChunks())
	}
	split.counts = arr.Val

	for _, row := range split.counts {
		if row == nil {
			continue
		}
		for msb, cnt := range row {
			split.msbHist[msb] += cnt
		}
	}

	maxBin, maxMSB := util.MaxValue(split.msbHist[:])
	limit := loadImbalanceLimit(j.fr.NumRows(), j.env.Cloud.Size())
	if maxBin > limit {
		util.Warn("radix order: load balancing on node not optimal",
			zap.String("node", node.Name),
			zap.Int("msb", maxMSB),
			zap.Int64("rows", maxBin),
			zap.Int64("limit", limit))
	}

	for msb, total := range split.msbHist {
		if total == 0 {
			continue
		}
		if err = checkGeometry(total, j.batchSize); err != nil {
			return errors.Wrapf(err, "msb %d on %s", msb, node)
		}
		split.ox[msb] = NewOX(total, j.batchSize, j.keySize)
	}

	//chunk counts to write offsets, chunk order preserved within a bucket
	for msb := 0; msb < 256; msb++ {
		var rollSum int64
		for _, row := range split.counts {
			if row == nil {
				continue
			}
			tmp := row[msb]
			row[msb] = rollSum
			rollSum += tmp
		}
	}
	return nil
}

func (split *localSplit) Map(ctx context.Context, cidx int) error {
	j := split.job
	myCounts := split.counts[cidx]
	if myCounts == nil {
		return invariantf("no msb counts for local chunk %d", cidx)
	}
	chunks := make([]frame.Chunk, len(j.cols))
	for c, col := range j.cols {
		chunks[c] = j.fr.Chunk(col, cidx)
	}
	start := chunks[0].Start
	k := j.keySize
	bs := int64(j.batchSize)
	for r := 0; r < chunks[0].Len; r++ {
		msb := (chunks[0].At8(r) >> j.shift) & 0xFF
		ox := split.ox[msb]
		if ox == nil {
			return invariantf("msb %d has rows in chunk %d but no buffer", msb, cidx)
		}
		target := myCounts[msb]
		myCounts[msb]++
		batch, offset := int(target/bs), int(target%bs)
		ox.o[batch][offset] = start + int64(r)
		j.packKey(ox.x[batch][offset*k:(offset+1)*k], chunks, r)
	}
	return nil
}

func (split *localSplit) CloseLocal(ctx context.Context) error {
	split.job.env.Registry.Put(split.job.token, split.node.Index, split)
	return nil
}

// chunkCounts recovers the rows every local chunk sent to msb, in
// ascending chunk order. It is valid once all chunks are mapped.
func (split *localSplit) chunkCounts(msb int, localChunks []int) ([]int32, error) {
	ret := make([]int32, len(localChunks))
	var last int64
	for i, cidx := range localChunks {
		row := split.counts[cidx]
		if row == nil {
			return nil, invariantf("no msb counts for local chunk %d", cidx)
		}
		delta := row[msb] - last
		if delta < 0 || delta > math.MaxInt32 {
			return nil, capacityf("chunk %d sends %d rows to msb %d", cidx, delta, msb)
		}
		ret[i] = int32(delta)
		last = row[msb]
	}
	if last != split.msbHist[msb] {
		return nil, invariantf("msb %d: chunks sent %d rows, histogram has %d",
			msb, last, split.msbHist[msb])
	}
	return ret, nil
}
