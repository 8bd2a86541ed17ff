package radix

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/radixorder/pkg/cluster"
	"github.com/daviszhen/radixorder/pkg/frame"
	"github.com/daviszhen/radixorder/pkg/kv"
	"github.com/daviszhen/radixorder/pkg/util"
)

// randomLayout cuts nRows into uneven chunks homed at random, leaving
// some nodes without chunks and some chunks empty.
func randomLayout(rng *rand.Rand, nRows int, nodes int) frame.Layout {
	var layout frame.Layout
	for left := nRows; left > 0; {
		l := min(left, rng.IntN(40))
		layout.ChunkLens = append(layout.ChunkLens, l)
		layout.Homes = append(layout.Homes, rng.IntN(nodes))
		left -= l
	}
	return layout
}

func randomFrame(t *testing.T, rng *rand.Rand, nRows int, nodes int, maxVals []int64) *frame.Frame {
	cols := make([][]int64, len(maxVals))
	names := make([]string, len(maxVals))
	for c, maxVal := range maxVals {
		names[c] = fmt.Sprintf("c%d", c)
		cols[c] = make([]int64, nRows)
		for r := range cols[c] {
			cols[c][r] = rng.Int64N(maxVal + 1)
		}
	}
	fr, err := frame.FromInt64s(randomLayout(rng, nRows, nodes), names, cols...)
	require.NoError(t, err)
	return fr
}

func Test_randomOrders(t *testing.T) {
	cases := []struct {
		name      string
		nodes     int
		rows      int
		maxVals   []int64
		batchSize int
		threshold int
		owner     string
	}{
		{"one node small keys", 1, 500, []int64{20}, 0, 200, util.OwnerRoundRobin},
		{"two bytes", 3, 2000, []int64{40000}, 7, 8, util.OwnerRoundRobin},
		{"multi column", 4, 3000, []int64{1000, 3, 1 << 20}, 16, 4, util.OwnerRoundRobin},
		{"wide key", 2, 1500, []int64{1<<40 + 17, 1 << 33}, 5, 2, util.OwnerDataHome},
		{"radix only", 5, 2500, []int64{300, 65535}, 3, 1, util.OwnerRoundRobin},
		{"data home", 3, 1200, []int64{1 << 12, 7}, 11, 16, util.OwnerDataHome},
	}
	for i, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rng := rand.New(rand.NewPCG(uint64(i), 42))
			env := newTestEnv(t, c.nodes, func(cfg *util.Config) {
				cfg.Radix.BatchSize = c.batchSize
				cfg.Radix.InsertionThreshold = c.threshold
				cfg.Radix.OwnerPolicy = c.owner
			})
			fr := randomFrame(t, rng, c.rows, c.nodes, c.maxVals)
			cols := make([]int, len(c.maxVals))
			for k := range cols {
				cols[k] = k
			}
			res, err := RadixOrder(context.Background(), env, fr, i%2 == 0, cols)
			require.NoError(t, err)
			require.NoError(t, res.Verify(context.Background(), fr))

			want := referenceOrder(fr, cols, res.BytesUsed)
			got := concatBuckets(t, res)
			require.Equal(t, len(want), len(got))
			for r := range want {
				require.Equal(t, want[r].row, got[r].row, "position %d", r)
				require.Equal(t, want[r].key, got[r].key, "position %d", r)
			}

			//batch integrity
			for msb, bucket := range res.Buckets {
				ox, err := res.ReadBucket(context.Background(), msb)
				require.NoError(t, err)
				require.Equal(t, bucket.NumRows, ox.NumRows())
				if bucket.NumRows == 0 {
					assert.Equal(t, 0, ox.NBatches())
					continue
				}
				nbatch := int(util.CeilDiv(bucket.NumRows, int64(res.BatchSize)))
				require.Equal(t, nbatch, ox.NBatches())
				for b := 0; b < nbatch; b++ {
					batch := ox.Batch(b)
					size := res.BatchSize
					if b == nbatch-1 {
						size = int(bucket.NumRows - int64(nbatch-1)*int64(res.BatchSize))
					}
					assert.Len(t, batch.O, size)
					assert.Len(t, batch.X, size*res.KeySize)
				}
			}

			//only the sorted output stays behind
			keys, err := env.DKV.Keys(keyPrefix)
			require.NoError(t, err)
			for _, key := range keys {
				info, err := ParseKey(key.Name)
				require.NoError(t, err)
				assert.Contains(t, []KeyKind{KindSortedOXHeader, KindSortedOXbatch}, info.Kind, key.Name)
				assert.Equal(t, res.Owners[info.MSB], key.Home)
			}
			assert.Equal(t, 0, env.Registry.Len())

			require.NoError(t, res.Cleanup(context.Background()))
			keys, err = env.DKV.Keys(keyPrefix)
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

// Test_gatherKeepsChunkOrder stops before sorting: gathered buckets hold
// their rows in global chunk order, which is row order.
func Test_gatherKeepsChunkOrder(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 7))
	env := newTestEnv(t, 3, func(cfg *util.Config) {
		cfg.Radix.BatchSize = 4
	})
	fr := randomFrame(t, rng, 800, 3, []int64{1 << 10})
	j, err := newJob(env, fr, true, []int{0})
	require.NoError(t, err)
	require.NoError(t, cluster.DoAll(ctx, env.Cloud, fr, newMSBCount(j)))
	require.NoError(t, cluster.DoAll(ctx, env.Cloud, fr, newLocalSplit(j)))
	require.NoError(t, cluster.DoAllNodes(ctx, env.Cloud, func(ctx context.Context, node *cluster.Node) error {
		return sendSplitMSB(ctx, j, node)
	}))

	var total int64
	for msb := 0; msb < 256; msb++ {
		ox, err := gather(ctx, j, msb)
		require.NoError(t, err)
		if ox == nil {
			continue
		}
		total += ox.NumRows()
		for i := int64(1); i < ox.NumRows(); i++ {
			require.Less(t, ox.Row(i-1), ox.Row(i), "msb %d position %d", msb, i)
		}
		for i := int64(0); i < ox.NumRows(); i++ {
			require.Equal(t, byte(msb), ox.Key(i)[0])
		}
	}
	assert.Equal(t, fr.NumRows(), total)

	keys, err := env.DKV.Keys(keyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func Test_emptyFrame(t *testing.T) {
	env := newTestEnv(t, 2, nil)
	fr, err := frame.FromInt64s(frame.Layout{}, []string{"a"}, []int64{})
	require.NoError(t, err)
	res, err := RadixOrder(context.Background(), env, fr, true, []int{0})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.NumRows)
	assert.Equal(t, []int{1}, res.BiggestBit)
	require.NoError(t, res.Verify(context.Background(), fr))
}

func Test_emptyChunks(t *testing.T) {
	env := newTestEnv(t, 3, nil)
	layout := frame.Layout{ChunkLens: []int{0, 3, 0, 2}, Homes: []int{2, 0, 1, 0}}
	fr, err := frame.FromInt64s(layout, []string{"a"}, []int64{300, 20, 300, 1, 300})
	require.NoError(t, err)
	res, err := RadixOrder(context.Background(), env, fr, true, []int{0})
	require.NoError(t, err)
	rows, _ := readRows(t, res, 1)
	assert.Equal(t, []int64{0, 2, 4}, rows)
	require.NoError(t, res.Verify(context.Background(), fr))
}

func Test_dataHomeOwners(t *testing.T) {
	env := newTestEnv(t, 2, func(cfg *util.Config) {
		cfg.Radix.OwnerPolicy = util.OwnerDataHome
	})
	layout := frame.Layout{ChunkLens: []int{3, 3}, Homes: []int{0, 1}}
	fr, err := frame.FromInt64s(layout, []string{"a"}, []int64{3, 3, 3, 7, 7, 7})
	require.NoError(t, err)
	res, err := RadixOrder(context.Background(), env, fr, true, []int{0})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Owners[3])
	assert.Equal(t, 1, res.Owners[7])
	assert.Equal(t, 1, res.Owners[9])
	assert.Equal(t, 0, res.Owners[10])
	require.NoError(t, res.Verify(context.Background(), fr))
}

func Test_keepCounts(t *testing.T) {
	env := newTestEnv(t, 2, func(cfg *util.Config) {
		cfg.Radix.KeepCounts = true
	})
	fr, err := frame.FromInt64s(frame.EvenLayout(10, 3, 2), []string{"a"},
		[]int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	require.NoError(t, err)
	_, err = RadixOrder(context.Background(), env, fr, false, []int{0})
	require.NoError(t, err)
	for n := 0; n < 2; n++ {
		arr := &Long2DArray{}
		found, err := env.DKV.GetGet(context.Background(),
			kv.MakeHomedKey(msbCountsName(false, 0, n), n), arr)
		require.NoError(t, err)
		require.True(t, found)
		require.Len(t, arr.Val, 4)
		for cidx, row := range arr.Val {
			if cidx%2 == n {
				assert.Len(t, row, 256)
			} else {
				assert.Nil(t, row)
			}
		}
	}
}

func Test_leftAndRightCoexist(t *testing.T) {
	env := newTestEnv(t, 2, nil)
	left, err := frame.FromInt64s(frame.EvenLayout(4, 2, 2), []string{"a"}, []int64{4, 3, 2, 1})
	require.NoError(t, err)
	right, err := frame.FromInt64s(frame.EvenLayout(3, 2, 2), []string{"b"}, []int64{9, 9, 1})
	require.NoError(t, err)
	lres, err := RadixOrder(context.Background(), env, left, true, []int{0})
	require.NoError(t, err)
	rres, err := RadixOrder(context.Background(), env, right, false, []int{0})
	require.NoError(t, err)
	require.NoError(t, lres.Verify(context.Background(), left))
	require.NoError(t, rres.Verify(context.Background(), right))
	rows, _ := readRows(t, rres, 9)
	assert.Equal(t, []int64{0, 1}, rows)
}

func Test_decimalColumn(t *testing.T) {
	env := newTestEnv(t, 1, nil)
	vals := []decimal.Decimal{decimal.MustNew(12, 0), decimal.MustNew(3, 0), decimal.MustNew(7, 0)}
	fr, err := frame.New(frame.EvenLayout(3, 3, 1), frame.NewDecimalVec("d", vals))
	require.NoError(t, err)
	res, err := RadixOrder(context.Background(), env, fr, true, []int{0})
	require.NoError(t, err)
	require.NoError(t, res.Verify(context.Background(), fr))
	rows, _ := readRows(t, res, 3)
	assert.Equal(t, []int64{1}, rows)
}

func Test_invalidColumns(t *testing.T) {
	env := newTestEnv(t, 1, nil)
	layout := frame.EvenLayout(2, 2, 1)
	floats, err := frame.New(layout, frame.NewFloat64Vec("f", []float64{1.5, 2}))
	require.NoError(t, err)
	strs, err := frame.New(layout, frame.NewStringVec("s", []string{"a", "b"}))
	require.NoError(t, err)
	scaled, err := frame.New(layout, frame.NewDecimalVec("d",
		[]decimal.Decimal{decimal.MustNew(15, 1), decimal.MustNew(2, 0)}))
	require.NoError(t, err)
	negative, err := frame.FromInt64s(layout, []string{"n"}, []int64{-1, 5})
	require.NoError(t, err)
	wide, err := frame.New(layout, frame.NewDecimalVec("w",
		[]decimal.Decimal{decimal.MustParse("9999999999999999999"), decimal.MustNew(2, 0)}))
	require.NoError(t, err)

	for name, fr := range map[string]*frame.Frame{
		"float":    floats,
		"string":   strs,
		"scaled":   scaled,
		"negative": negative,
		"wide":     wide,
	} {
		_, err = RadixOrder(context.Background(), env, fr, true, []int{0})
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrInvalidColumn), name)
	}
	_, err = RadixOrder(context.Background(), env, negative, true, nil)
	assert.True(t, errors.Is(err, ErrInvalidColumn))
	_, err = RadixOrder(context.Background(), env, negative, true, []int{3})
	assert.True(t, errors.Is(err, ErrInvalidColumn))
}

func Test_capacityExceeded(t *testing.T) {
	env := newTestEnv(t, 1, nil)
	cols := make([][]int64, 32)
	names := make([]string, 32)
	idx := make([]int, 32)
	for c := range cols {
		cols[c] = []int64{1 << 62}
		names[c] = fmt.Sprintf("c%d", c)
		idx[c] = c
	}
	fr, err := frame.FromInt64s(frame.EvenLayout(1, 1, 1), names, cols...)
	require.NoError(t, err)
	_, err = RadixOrder(context.Background(), env, fr, true, idx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))

	small := newTestEnv(t, 1, func(cfg *util.Config) {
		cfg.Radix.BatchBytes = 8
	})
	fr, err = frame.FromInt64s(frame.EvenLayout(1, 1, 1), []string{"a"}, []int64{1})
	require.NoError(t, err)
	_, err = RadixOrder(context.Background(), small, fr, true, []int{0})
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
}

func Test_homeOutsideCloud(t *testing.T) {
	env := newTestEnv(t, 1, nil)
	fr, err := frame.FromInt64s(frame.EvenLayout(4, 2, 2), []string{"a"}, []int64{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = RadixOrder(context.Background(), env, fr, true, []int{0})
	require.Error(t, err)
}

func Test_storeFailure(t *testing.T) {
	for _, fault := range []string{"put", "get", "remove"} {
		t.Run(fault, func(t *testing.T) {
			env := newTestEnv(t, 2, nil)
			fr, err := frame.FromInt64s(frame.EvenLayout(6, 2, 2), []string{"a"}, []int64{1, 2, 3, 4, 5, 6})
			require.NoError(t, err)

			util.Open(util.FAULTS_SCOPE_KV)
			defer util.Close(util.FAULTS_SCOPE_KV)
			util.Register(util.FAULTS_SCOPE_KV, fault, []string{"node down"}, func(args []string) error {
				return errors.New(args[0])
			})
			_, err = RadixOrder(context.Background(), env, fr, true, []int{0})
			require.Error(t, err)
			assert.True(t, errors.Is(err, kv.ErrKV))
			assert.Contains(t, err.Error(), "node down")
			assert.Equal(t, 0, env.Registry.Len())
			if fault != "remove" {
				util.Close(util.FAULTS_SCOPE_KV)
				keys, err := env.DKV.Keys(keyPrefix)
				require.NoError(t, err)
				assert.Empty(t, keys)
			}
		})
	}
}

func Test_rpcFailure(t *testing.T) {
	env := newTestEnv(t, 2, nil)
	fr, err := frame.FromInt64s(frame.EvenLayout(6, 2, 2), []string{"a"}, []int64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	util.Open(util.FAULTS_SCOPE_RPC)
	defer util.Close(util.FAULTS_SCOPE_RPC)
	util.Register(util.FAULTS_SCOPE_RPC, "call", []string{"unreachable"}, func(args []string) error {
		return errors.New(args[0])
	})
	_, err = RadixOrder(context.Background(), env, fr, true, []int{0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
	keys, err := env.DKV.Keys(keyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func Test_failedRunKeepsOtherSide(t *testing.T) {
	env := newTestEnv(t, 2, nil)
	fr, err := frame.FromInt64s(frame.EvenLayout(6, 2, 2), []string{"a"}, []int64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	left, err := RadixOrder(context.Background(), env, fr, true, []int{0})
	require.NoError(t, err)

	util.Open(util.FAULTS_SCOPE_RPC)
	util.Register(util.FAULTS_SCOPE_RPC, "call", []string{"unreachable"}, func(args []string) error {
		return errors.New(args[0])
	})
	_, err = RadixOrder(context.Background(), env, fr, false, []int{0})
	util.Close(util.FAULTS_SCOPE_RPC)
	require.Error(t, err)

	keys, err := env.DKV.Keys(keyPrefix)
	require.NoError(t, err)
	require.NotEmpty(t, keys)
	for _, key := range keys {
		info, err := ParseKey(key.Name)
		require.NoError(t, err)
		assert.True(t, info.IsLeft, key.Name)
	}
	require.NoError(t, left.Verify(context.Background(), fr))
}

func Test_cancelled(t *testing.T) {
	env := newTestEnv(t, 2, nil)
	fr, err := frame.FromInt64s(frame.EvenLayout(6, 2, 2), []string{"a"}, []int64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RadixOrder(ctx, env, fr, true, []int{0})
	require.Error(t, err)
	assert.Equal(t, 0, env.Registry.Len())
}

func Test_pebbleBackend(t *testing.T) {
	env := newTestEnv(t, 3, func(cfg *util.Config) {
		cfg.Store.Backend = util.StorePebble
		cfg.Store.Compress = true
		cfg.Store.Checksum = true
		cfg.Radix.BatchSize = 64
	})
	rng := rand.New(rand.NewPCG(3, 9))
	fr := randomFrame(t, rng, 3000, 3, []int64{1 << 16, 255})
	res, err := RadixOrder(context.Background(), env, fr, true, []int{0, 1})
	require.NoError(t, err)
	require.NoError(t, res.Verify(context.Background(), fr))
}

func Test_summary(t *testing.T) {
	env := newTestEnv(t, 2, nil)
	fr, err := frame.FromInt64s(frame.EvenLayout(4, 2, 2), []string{"a"}, []int64{5, 1, 9, 1})
	require.NoError(t, err)
	res, err := RadixOrder(context.Background(), env, fr, true, []int{0})
	require.NoError(t, err)
	out := res.Summary()
	assert.True(t, strings.HasPrefix(out, "radix order LEFT cols [0]"))
	assert.Contains(t, out, "node1")
	assert.Contains(t, out, "msb 1: 2 rows, 1 batches, 1 groups")
	assert.Contains(t, out, "msb 5: 1 rows")
	assert.Contains(t, out, "msb 9: 1 rows")
	assert.Contains(t, out, "unique false")
	assert.NotContains(t, out, "node0")
}
