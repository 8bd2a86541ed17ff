package radix

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/petermattis/goid"
	"go.uber.org/zap"

	"github.com/daviszhen/radixorder/pkg/cluster"
	"github.com/daviszhen/radixorder/pkg/util"
)

// sorter orders one batched OX in place by its packed keys with an MSD
// radix sort that falls back to insertion sort on short runs.
type sorter struct {
	ox        *OX
	tmp       *OX
	keySize   int
	threshold int
	// counts[Byte] is the histogram of recursion level Byte. Every level
	// leaves it zeroed.
	counts [][256]int64
	keytmp []byte
	// contiguous scratch for insertion runs that cross batches
	insO []int64
	insX []byte
}

func newSorter(ox *OX, threshold int) *sorter {
	return &sorter{
		ox:        ox,
		tmp:       NewOX(ox.numRows, ox.bs, ox.keySize),
		keySize:   ox.keySize,
		threshold: max(threshold, 1),
		counts:    make([][256]int64, ox.keySize),
		keytmp:    make([]byte, ox.keySize),
	}
}

func (s *sorter) sort() {
	if s.ox.numRows == 0 {
		return
	}
	s.run(0, s.ox.numRows, s.keySize-1)
}

// run sorts rows [start, start+n) which share the key bytes before offset
// keySize-Byte-1.
func (s *sorter) run(start int64, n int64, Byte int) {
	if n < int64(s.threshold) {
		s.insert(start, int(n))
		return
	}
	ox := s.ox
	k := s.keySize
	bs := int64(ox.bs)
	pos := k - Byte - 1
	hist := &s.counts[Byte]

	//pass 1: histogram
	bin := -1
	for b, off, left := int(start/bs), int(start%bs), n; left > 0; b, off = b+1, 0 {
		xb := ox.x[b]
		cnt := int(min(left, int64(len(ox.o[b])-off)))
		idx := off*k + pos
		for i := 0; i < cnt; i++ {
			bin = int(xb[idx])
			hist[bin]++
			idx += k
		}
		left -= int64(cnt)
	}
	if hist[bin] == n {
		//all keys agree on this byte
		hist[bin] = 0
		if Byte > 0 {
			s.run(start, n, Byte-1)
		}
		return
	}

	//exclusive prefix sums, zero bins stay zero
	var rollSum int64
	for c := 0; c < 256; c++ {
		tmp := hist[c]
		if tmp == 0 {
			continue
		}
		hist[c] = rollSum
		rollSum += tmp
	}

	//pass 2: scatter into scratch from offset 0
	tmp := s.tmp
	for b, off, left := int(start/bs), int(start%bs), n; left > 0; b, off = b+1, 0 {
		ob := ox.o[b]
		xb := ox.x[b]
		cnt := int(min(left, int64(len(ob)-off)))
		for i := off; i < off+cnt; i++ {
			target := hist[xb[i*k+pos]]
			hist[xb[i*k+pos]]++
			tb, to := target/bs, int(target%bs)
			tmp.o[tb][to] = ob[i]
			copy(tmp.x[tb][to*k:(to+1)*k], xb[i*k:(i+1)*k])
		}
		left -= int64(cnt)
	}
	copyOX(ox, start, tmp, 0, n)

	var itmp int64
	for c := 0; c < 256; c++ {
		if hist[c] == 0 {
			continue
		}
		grpn := hist[c] - itmp
		if grpn > 1 && Byte > 0 {
			s.run(start+itmp, grpn, Byte-1)
		}
		itmp = hist[c]
		hist[c] = 0
	}
}

// insert sorts a short run with straight insertion. Runs crossing batch
// boundaries are sorted in contiguous scratch.
func (s *sorter) insert(start int64, n int) {
	if n < 2 {
		return
	}
	ox := s.ox
	k := s.keySize
	bs := int64(ox.bs)
	b0, b1 := start/bs, (start+int64(n)-1)/bs
	if b0 == b1 {
		off := int(start % bs)
		insertionSort(ox.o[b0][off:off+n], ox.x[b0][off*k:(off+n)*k], k, s.keytmp)
		return
	}
	if cap(s.insO) < n {
		s.insO = make([]int64, n)
		s.insX = make([]byte, n*k)
	}
	o, x := s.insO[:n], s.insX[:n*k]
	ox.readFlat(start, n, o, x)
	insertionSort(o, x, k, s.keytmp)
	ox.writeFlat(start, n, o, x)
}

func insertionSort(o []int64, x []byte, k int, keytmp []byte) {
	for i := 1; i < len(o); i++ {
		if keycmp(x[i*k:(i+1)*k], x[(i-1)*k:i*k]) >= 0 {
			continue
		}
		copy(keytmp, x[i*k:(i+1)*k])
		otmp := o[i]
		j := i - 1
		for {
			copy(x[(j+1)*k:(j+2)*k], x[j*k:(j+1)*k])
			o[j+1] = o[j]
			j--
			if j < 0 || keycmp(keytmp, x[j*k:(j+1)*k]) >= 0 {
				break
			}
		}
		copy(x[(j+1)*k:(j+2)*k], keytmp)
		o[j+1] = otmp
	}
}

// keycmp compares two keys of equal length as unsigned bytes, like
// strcmp. Keys are at least one byte.
func keycmp(x []byte, y []byte) int {
	p := 0
	for p < len(x)-1 && x[p] == y[p] {
		p++
	}
	return int(x[p]) - int(y[p])
}

// countGroups counts the distinct keys of a sorted OX.
func countGroups(ox *OX) int64 {
	if ox.numRows == 0 {
		return 0
	}
	groups := int64(1)
	prev := ox.Key(0)
	for i := int64(1); i < ox.numRows; i++ {
		cur := ox.Key(i)
		if keycmp(cur, prev) != 0 {
			groups++
		}
		prev = cur
	}
	return groups
}

// sortMSB runs on the owner of msb: gather, sort and publish. It returns
// the published header, nil when the bucket is empty.
func sortMSB(ctx context.Context, j *job, node *cluster.Node, msb int) (*OXHeader, error) {
	start := time.Now()
	ox, err := gather(ctx, j, msb)
	if err != nil {
		return nil, err
	}
	if ox == nil {
		return nil, nil
	}
	gathered := time.Now()
	newSorter(ox, j.cfg.Radix.InsertionThreshold).sort()

	header := &OXHeader{
		NBatch:    int32(ox.NBatches()),
		NumRows:   ox.numRows,
		BatchSize: int32(j.batchSize),
		NGroup:    countGroups(ox),
	}
	fs := cluster.NewFutures()
	putErr := j.env.DKV.Put(ctx, sortedHeaderKey(j.isLeft, &j.owners, msb), header, fs)
	for b := 0; putErr == nil && b < ox.NBatches(); b++ {
		putErr = j.env.DKV.Put(ctx, sortedOXBatchKey(j.isLeft, &j.owners, msb, b), ox.Batch(b), fs)
	}
	if err = errors.CombineErrors(putErr, fs.BlockForPending()); err != nil {
		return nil, errors.Wrapf(err, "publish msb %d", msb)
	}
	util.Debug("radix order: msb sorted",
		zap.Int("msb", msb),
		zap.String("node", node.Name),
		zap.Int64("goid", goid.Get()),
		zap.Int64("rows", header.NumRows),
		zap.Int32("batches", header.NBatch),
		zap.Duration("gather", gathered.Sub(start)),
		zap.Duration("sort", time.Since(gathered)))
	return header, nil
}
