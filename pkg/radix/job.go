package radix

import (
	"github.com/daviszhen/radixorder/pkg/frame"
	"github.com/daviszhen/radixorder/pkg/kv"
	"github.com/daviszhen/radixorder/pkg/util"
)

// job is the state one RadixOrder call shares with its stage tasks.
type job struct {
	env        *Env
	cfg        *util.Config
	fr         *frame.Frame
	isLeft     bool
	cols       []int
	biggestBit []int
	bytesUsed  []int
	// shift selects the first key byte of the primary column. It is byte
	// aligned so the bucket is the first packed key byte: 0x0100 lands in
	// bucket 1, where biggestBit-8 would give 128.
	shift     uint
	keySize   int
	batchSize int
	owners    [256]int
	token     string
}

func (j *job) countsKey(node int) kv.Key {
	return kv.MakeHomedKey(msbCountsName(j.isLeft, j.cols[0], node), node)
}

func (j *job) nodeHeaderKey(msb int, node int) kv.Key {
	return kv.MakeHomedKey(nodeHeaderName(j.isLeft, msb, node), j.owners[msb])
}

func (j *job) nodeOXBatchKey(msb int, node int, batch int) kv.Key {
	return kv.MakeHomedKey(nodeOXBatchName(j.isLeft, msb, node, batch), j.owners[msb])
}

func sortedHeaderKey(isLeft bool, owners *[256]int, msb int) kv.Key {
	return kv.MakeHomedKey(sortedHeaderName(isLeft, msb), owners[msb])
}

func sortedOXBatchKey(isLeft bool, owners *[256]int, msb int, batch int) kv.Key {
	return kv.MakeHomedKey(sortedOXBatchName(isLeft, msb, batch), owners[msb])
}

// packKey writes the key of row r of the chunk set into dst.
func (j *job) packKey(dst []byte, chunks []frame.Chunk, r int) {
	pos := 0
	for c, chk := range chunks {
		w := j.bytesUsed[c]
		util.PutUintBE(dst[pos:pos+w], uint64(chk.At8(r)), w)
		pos += w
	}
}
