package radix

import (
	"context"

	"github.com/daviszhen/radixorder/pkg/frame"
	"github.com/daviszhen/radixorder/pkg/util"
)

// Verify reads every bucket back and checks it against fr: each row
// appears once, keys match their rows, every key starts with its bucket,
// buckets are sorted, and equal keys keep row order.
func (res *Result) Verify(ctx context.Context, fr *frame.Frame) error {
	buckets, err := res.ReadAll(ctx)
	if err != nil {
		return err
	}
	n := fr.NumRows()
	seen := make([]bool, n)
	var total int64
	want := make([]byte, res.KeySize)
	for msb, ox := range buckets {
		var prev []byte
		var prevRow int64
		for i := int64(0); i < ox.NumRows(); i++ {
			row := ox.Row(i)
			key := ox.Key(i)
			if row < 0 || row >= n {
				return invariantf("msb %d row %d: id %d out of range", msb, i, row)
			}
			if seen[row] {
				return invariantf("msb %d row %d: id %d seen twice", msb, i, row)
			}
			seen[row] = true
			pos := 0
			for c, col := range res.Cols {
				w := res.BytesUsed[c]
				util.PutUintBE(want[pos:pos+w], uint64(fr.Vec(col).At8(row)), w)
				pos += w
			}
			if keycmp(key, want) != 0 {
				return invariantf("msb %d row %d: key %x, row %d packs to %x", msb, i, key, row, want)
			}
			if int(key[0]) != msb {
				return invariantf("msb %d row %d: key %x in wrong bucket", msb, i, key)
			}
			if prev != nil {
				cmp := keycmp(prev, key)
				if cmp > 0 {
					return invariantf("msb %d row %d: key %x after %x", msb, i, key, prev)
				}
				if cmp == 0 && prevRow > row {
					return invariantf("msb %d row %d: equal keys out of row order %d > %d", msb, i, prevRow, row)
				}
			}
			prev = key
			prevRow = row
		}
		total += ox.NumRows()
	}
	if total != n {
		return invariantf("buckets hold %d rows, frame has %d", total, n)
	}
	return nil
}
