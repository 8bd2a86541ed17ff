package radix

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/radixorder/pkg/util"
)

func (res *Result) Bucket(msb int) Bucket {
	return res.Buckets[msb]
}

// DecodeKey splits a packed key back into its column values.
func (res *Result) DecodeKey(key []byte) []int64 {
	vals := make([]int64, len(res.BytesUsed))
	pos := 0
	for c, w := range res.BytesUsed {
		vals[c] = int64(util.UintBE(key[pos:pos+w], w))
		pos += w
	}
	return vals
}

// ReadBucket fetches the sorted rows of msb. An empty bucket yields an
// OX without rows.
func (res *Result) ReadBucket(ctx context.Context, msb int) (*OX, error) {
	if msb < 0 || msb > 255 {
		return nil, errors.Newf("msb %d out of range", msb)
	}
	header := &OXHeader{}
	found, err := res.env.DKV.GetGet(ctx, sortedHeaderKey(res.IsLeft, &res.Owners, msb), header)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch sorted header of msb %d", msb)
	}
	if !found {
		return NewOX(0, res.BatchSize, res.KeySize), nil
	}
	batches := make([]*OXBatch, header.NBatch)
	for b := range batches {
		batches[b] = &OXBatch{}
		found, err = res.env.DKV.GetGet(ctx, sortedOXBatchKey(res.IsLeft, &res.Owners, msb, b), batches[b])
		if err != nil {
			return nil, errors.Wrapf(err, "fetch sorted batch %d of msb %d", b, msb)
		}
		if !found {
			return nil, invariantf("sorted batch %d of msb %d missing", b, msb)
		}
	}
	ox := oxFromBatches(batches, int(header.BatchSize), res.KeySize)
	if ox.numRows != header.NumRows {
		return nil, invariantf("msb %d has %d rows in batches, header says %d",
			msb, ox.numRows, header.NumRows)
	}
	return ox, nil
}

func (res *Result) ReadAll(ctx context.Context) ([256]*OX, error) {
	var ret [256]*OX
	for msb := range ret {
		ox, err := res.ReadBucket(ctx, msb)
		if err != nil {
			return ret, err
		}
		ret[msb] = ox
	}
	return ret, nil
}

// Cleanup removes the sorted output from the store.
func (res *Result) Cleanup(ctx context.Context) error {
	for msb, bucket := range res.Buckets {
		if bucket.NumRows == 0 {
			continue
		}
		for b := 0; b < bucket.NBatch; b++ {
			if err := res.env.DKV.Remove(ctx, sortedOXBatchKey(res.IsLeft, &res.Owners, msb, b)); err != nil {
				return err
			}
		}
		if err := res.env.DKV.Remove(ctx, sortedHeaderKey(res.IsLeft, &res.Owners, msb)); err != nil {
			return err
		}
	}
	return nil
}
