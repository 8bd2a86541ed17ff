package radix

import (
	"math"
)

// BatchSize is the number of rows per batch so that one batch of keys and
// one batch of row ids together stay within batchBytes.
func BatchSize(keySize int, batchBytes int) int {
	return batchBytes / max(keySize, 8) / 2
}

// batchGeometry splits n > 0 rows into batches of bs. The last batch may
// be full.
func batchGeometry(n int64, bs int) (nbatch int, lastSize int) {
	nb := (n-1)/int64(bs) + 1
	return int(nb), int(n - (nb-1)*int64(bs))
}

// OX is a batched pair of row ids and packed keys. Row i lives in batch
// i/bs at offset i%bs.
type OX struct {
	o       [][]int64
	x       [][]byte
	bs      int
	keySize int
	numRows int64
}

func checkGeometry(numRows int64, bs int) error {
	if bs < 1 {
		return capacityf("batch size %d", bs)
	}
	if numRows > 0 && (numRows-1)/int64(bs)+1 > math.MaxInt32 {
		return capacityf("%d rows need more than %d batches of %d", numRows, math.MaxInt32, bs)
	}
	return nil
}

func NewOX(numRows int64, bs int, keySize int) *OX {
	ox := &OX{
		bs:      bs,
		keySize: keySize,
		numRows: numRows,
	}
	if numRows == 0 {
		return ox
	}
	nbatch, lastSize := batchGeometry(numRows, bs)
	ox.o = make([][]int64, nbatch)
	ox.x = make([][]byte, nbatch)
	for b := 0; b < nbatch; b++ {
		size := bs
		if b == nbatch-1 {
			size = lastSize
		}
		ox.o[b] = make([]int64, size)
		ox.x[b] = make([]byte, size*keySize)
	}
	return ox
}

// oxFromBatches wraps published batches without copying.
func oxFromBatches(batches []*OXBatch, bs int, keySize int) *OX {
	ox := &OX{
		bs:      bs,
		keySize: keySize,
		o:       make([][]int64, len(batches)),
		x:       make([][]byte, len(batches)),
	}
	for b, batch := range batches {
		ox.o[b] = batch.O
		ox.x[b] = batch.X
		ox.numRows += int64(len(batch.O))
	}
	return ox
}

func (ox *OX) NumRows() int64 {
	return ox.numRows
}

func (ox *OX) NBatches() int {
	return len(ox.o)
}

func (ox *OX) Batch(b int) *OXBatch {
	return &OXBatch{O: ox.o[b], X: ox.x[b]}
}

func (ox *OX) Row(i int64) int64 {
	return ox.o[i/int64(ox.bs)][i%int64(ox.bs)]
}

func (ox *OX) Key(i int64) []byte {
	off := int(i%int64(ox.bs)) * ox.keySize
	return ox.x[i/int64(ox.bs)][off : off+ox.keySize]
}

// copyOX copies n rows from src at srcPos to dst at dstPos. Both sides
// may cross batch boundaries.
func copyOX(dst *OX, dstPos int64, src *OX, srcPos int64, n int64) {
	k := dst.keySize
	for n > 0 {
		sb, so := int(srcPos/int64(src.bs)), int(srcPos%int64(src.bs))
		db, do := int(dstPos/int64(dst.bs)), int(dstPos%int64(dst.bs))
		cnt := int(min(n, int64(len(src.o[sb])-so), int64(len(dst.o[db])-do)))
		copy(dst.o[db][do:do+cnt], src.o[sb][so:so+cnt])
		copy(dst.x[db][do*k:(do+cnt)*k], src.x[sb][so*k:(so+cnt)*k])
		n -= int64(cnt)
		srcPos += int64(cnt)
		dstPos += int64(cnt)
	}
}

// readFlat copies n rows starting at start into contiguous o and x.
func (ox *OX) readFlat(start int64, n int, o []int64, x []byte) {
	k := ox.keySize
	done := 0
	for done < n {
		b, off := int(start/int64(ox.bs)), int(start%int64(ox.bs))
		cnt := min(n-done, len(ox.o[b])-off)
		copy(o[done:done+cnt], ox.o[b][off:off+cnt])
		copy(x[done*k:(done+cnt)*k], ox.x[b][off*k:(off+cnt)*k])
		done += cnt
		start += int64(cnt)
	}
}

// writeFlat is the inverse of readFlat.
func (ox *OX) writeFlat(start int64, n int, o []int64, x []byte) {
	k := ox.keySize
	done := 0
	for done < n {
		b, off := int(start/int64(ox.bs)), int(start%int64(ox.bs))
		cnt := min(n-done, len(ox.o[b])-off)
		copy(ox.o[b][off:off+cnt], o[done:done+cnt])
		copy(ox.x[b][off*k:(off+cnt)*k], x[done*k:(done+cnt)*k])
		done += cnt
		start += int64(cnt)
	}
}
