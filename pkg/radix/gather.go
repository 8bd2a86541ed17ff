package radix

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/radixorder/pkg/util"
)

// gather collects the rows of one MSB from every node in global chunk
// order and removes the consumed node batches. It returns nil when no node
// sent anything.
func gather(ctx context.Context, j *job, msb int) (*OX, error) {
	dkv := j.env.DKV
	size := j.env.Cloud.Size()
	headers := make([]*MSBNodeHeader, size)
	nodeRows := make([]int64, size)
	var numRows int64
	for n := 0; n < size; n++ {
		header := &MSBNodeHeader{}
		found, err := dkv.GetGet(ctx, j.nodeHeaderKey(msb, n), header)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch header of msb %d from node%d", msb, n)
		}
		if !found {
			continue
		}
		if len(header.Counts) != len(j.fr.LocalChunks(n)) {
			return nil, invariantf("msb %d node%d header has %d counts for %d local chunks",
				msb, n, len(header.Counts), len(j.fr.LocalChunks(n)))
		}
		headers[n] = header
		nodeRows[n] = util.Sum(header.Counts)
		numRows += nodeRows[n]
	}
	if numRows == 0 {
		return nil, nil
	}
	if err := checkGeometry(numRows, j.batchSize); err != nil {
		return nil, errors.Wrapf(err, "msb %d", msb)
	}
	dst := NewOX(numRows, j.batchSize, j.keySize)

	src := make([]*OXBatch, size)
	batchNum := make([]int, size)
	offset := make([]int, size)
	chunkIdx := make([]int, size)
	consumed := make([]int64, size)
	fetch := func(n int) (*OXBatch, error) {
		batch := &OXBatch{}
		found, err := dkv.GetGet(ctx, j.nodeOXBatchKey(msb, n, batchNum[n]), batch)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch msb %d batch %d from node%d", msb, batchNum[n], n)
		}
		if !found {
			return nil, invariantf("msb %d batch %d from node%d missing after %d of %d rows",
				msb, batchNum[n], n, consumed[n], nodeRows[n])
		}
		if len(batch.X) != len(batch.O)*j.keySize {
			return nil, invariantf("msb %d batch %d from node%d: %d keys bytes for %d rows",
				msb, batchNum[n], n, len(batch.X), len(batch.O))
		}
		return batch, nil
	}
	for n := 0; n < size; n++ {
		if nodeRows[n] == 0 {
			continue
		}
		var err error
		if src[n], err = fetch(n); err != nil {
			return nil, err
		}
	}

	k := j.keySize
	var dstPos int64
	for c := 0; c < j.fr.NChunks(); c++ {
		from := j.fr.HomeNode(c)
		header := headers[from]
		if header == nil {
			continue
		}
		rowsToCopy := int(header.Counts[chunkIdx[from]])
		chunkIdx[from]++
		for rowsToCopy > 0 {
			batch := src[from]
			if batch == nil {
				return nil, invariantf("msb %d node%d ran out of rows at chunk %d", msb, from, c)
			}
			db, do := int(dstPos/int64(j.batchSize)), int(dstPos%int64(j.batchSize))
			so := offset[from]
			cnt := min(rowsToCopy, len(batch.O)-so, len(dst.o[db])-do)
			copy(dst.o[db][do:do+cnt], batch.O[so:so+cnt])
			copy(dst.x[db][do*k:(do+cnt)*k], batch.X[so*k:(so+cnt)*k])
			rowsToCopy -= cnt
			offset[from] += cnt
			consumed[from] += int64(cnt)
			dstPos += int64(cnt)
			if offset[from] < len(batch.O) {
				continue
			}
			//batch used up
			if err := dkv.Remove(ctx, j.nodeOXBatchKey(msb, from, batchNum[from])); err != nil {
				return nil, errors.Wrapf(err, "remove msb %d batch %d of node%d", msb, batchNum[from], from)
			}
			batchNum[from]++
			offset[from] = 0
			src[from] = nil
			if consumed[from] == nodeRows[from] {
				//terminal: the node sent exactly the batches it had
				continue
			}
			var err error
			if src[from], err = fetch(from); err != nil {
				return nil, err
			}
		}
	}

	for n := 0; n < size; n++ {
		if headers[n] == nil {
			continue
		}
		if src[n] != nil {
			if err := dkv.Remove(ctx, j.nodeOXBatchKey(msb, n, batchNum[n])); err != nil {
				return nil, errors.Wrapf(err, "remove msb %d batch %d of node%d", msb, batchNum[n], n)
			}
		}
		if consumed[n] != nodeRows[n] || chunkIdx[n] != len(headers[n].Counts) {
			return nil, invariantf("msb %d node%d: consumed %d of %d rows, %d of %d chunks",
				msb, n, consumed[n], nodeRows[n], chunkIdx[n], len(headers[n].Counts))
		}
		if err := dkv.Remove(ctx, j.nodeHeaderKey(msb, n)); err != nil {
			return nil, errors.Wrapf(err, "remove msb %d header of node%d", msb, n)
		}
	}
	if dstPos != numRows {
		return nil, invariantf("msb %d gathered %d of %d rows", msb, dstPos, numRows)
	}
	return dst, nil
}
