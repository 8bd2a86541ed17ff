package radix

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daviszhen/radixorder/pkg/frame"
	"github.com/daviszhen/radixorder/pkg/util"
)

func newTestEnv(t *testing.T, nodes int, mod func(cfg *util.Config)) *Env {
	cfg := util.DefaultConfig()
	cfg.Cluster.Nodes = nodes
	cfg.Cluster.CoresPerNode = 2
	if mod != nil {
		mod(cfg)
	}
	env, err := NewEnv(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, env.Close())
	})
	return env
}

func readRows(t *testing.T, res *Result, msb int) ([]int64, [][]byte) {
	ox, err := res.ReadBucket(context.Background(), msb)
	require.NoError(t, err)
	var rows []int64
	var keys [][]byte
	for i := int64(0); i < ox.NumRows(); i++ {
		rows = append(rows, ox.Row(i))
		keys = append(keys, bytes.Clone(ox.Key(i)))
	}
	return rows, keys
}

type refRow struct {
	row int64
	key []byte
}

// referenceOrder is the expected output: all rows stably sorted by their
// packed keys.
func referenceOrder(fr *frame.Frame, cols []int, bytesUsed []int) []refRow {
	k := 0
	for _, w := range bytesUsed {
		k += w
	}
	ret := make([]refRow, fr.NumRows())
	for r := range ret {
		key := make([]byte, k)
		pos := 0
		for c, col := range cols {
			util.PutUintBE(key[pos:pos+bytesUsed[c]], uint64(fr.Vec(col).At8(int64(r))), bytesUsed[c])
			pos += bytesUsed[c]
		}
		ret[r] = refRow{row: int64(r), key: key}
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return bytes.Compare(ret[i].key, ret[j].key) < 0
	})
	return ret
}

// concatBuckets reads all buckets in msb order.
func concatBuckets(t *testing.T, res *Result) []refRow {
	var ret []refRow
	for msb := 0; msb < 256; msb++ {
		rows, keys := readRows(t, res, msb)
		for i := range rows {
			ret = append(ret, refRow{row: rows[i], key: keys[i]})
		}
	}
	return ret
}
