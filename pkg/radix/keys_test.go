package radix

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/radixorder/pkg/kv"
	"github.com/daviszhen/radixorder/pkg/util"
)

func Test_keyNames(t *testing.T) {
	assert.Equal(t, "__radix_order__MSBNodeCounts_col2_node1_LEFT", msbCountsName(true, 2, 1))
	assert.Equal(t, "__radix_order__OXNodeHeader_MSB7_node0_RIGHT", nodeHeaderName(false, 7, 0))
	assert.Equal(t, "__radix_order__NodeOXbatch_MSB255_node3_batch12_LEFT", nodeOXBatchName(true, 255, 3, 12))
	assert.Equal(t, "__radix_order__SortedOXHeader_MSB0_RIGHT", sortedHeaderName(false, 0))
	assert.Equal(t, "__radix_order__SortedOXbatch_MSB9_batch4_LEFT", sortedOXBatchName(true, 9, 4))
}

func Test_parseKey(t *testing.T) {
	infos := []KeyInfo{
		{Kind: KindMSBNodeCounts, Col: 3, MSB: -1, Node: 2, Batch: -1, IsLeft: true},
		{Kind: KindOXNodeHeader, Col: -1, MSB: 17, Node: 0, Batch: -1},
		{Kind: KindNodeOXbatch, Col: -1, MSB: 200, Node: 5, Batch: 31, IsLeft: true},
		{Kind: KindSortedOXHeader, Col: -1, MSB: 1, Node: -1, Batch: -1},
		{Kind: KindSortedOXbatch, Col: -1, MSB: 99, Node: -1, Batch: 0, IsLeft: true},
	}
	for _, info := range infos {
		got, err := ParseKey(info.Name())
		require.NoError(t, err, info.Name())
		assert.Equal(t, info, got)
	}

	for _, bad := range []string{
		"radix",
		"__radix_order__SortedOXHeader_MSB1",
		"__radix_order__Bogus_MSB1_LEFT",
		"__radix_order__SortedOXHeader_MSBx_LEFT",
		"__radix_order__SortedOXHeader_MSB01_LEFT",
		"__radix_order__SortedOXHeader_MSB1_node2_LEFT",
	} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "SortedOXbatch", KindSortedOXbatch.String())
	assert.Equal(t, "unknown", KeyKind(9).String())
}

func Test_valuesThroughStore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 2, func(cfg *util.Config) {
		cfg.Store.Compress = true
	})
	arr := &Long2DArray{Val: [][]int64{nil, {1, 2, 3}, nil, {}}}
	key := kv.MakeHomedKey(msbCountsName(true, 0, 1), 1)
	require.NoError(t, env.DKV.PutSync(ctx, key, arr))
	got := &Long2DArray{}
	found, err := env.DKV.GetGet(ctx, key, got)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got.Val, 4)
	assert.Nil(t, got.Val[0])
	assert.Equal(t, []int64{1, 2, 3}, got.Val[1])
	assert.Nil(t, got.Val[2])
	assert.NotNil(t, got.Val[3])
	assert.Empty(t, got.Val[3])

	header := &OXHeader{NBatch: 3, NumRows: 5, BatchSize: 2, NGroup: 4}
	key = kv.MakeHomedKey(sortedHeaderName(false, 5), 0)
	require.NoError(t, env.DKV.PutSync(ctx, key, header))
	gotHeader := &OXHeader{}
	_, err = env.DKV.GetGet(ctx, key, gotHeader)
	require.NoError(t, err)
	assert.Equal(t, header, gotHeader)
}

func Test_registry(t *testing.T) {
	reg := NewRegistry()
	a, b := &localSplit{}, &localSplit{}
	reg.Put("t1", 0, a)
	reg.Put("t1", 1, b)
	reg.Put("t2", 0, &localSplit{})
	assert.Equal(t, 3, reg.Len())

	got, ok := reg.Take("t1", 0)
	require.True(t, ok)
	assert.Same(t, a, got)
	_, ok = reg.Take("t1", 0)
	assert.False(t, ok)

	assert.Equal(t, 1, reg.Drop("t1"))
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 0, reg.Drop("t3"))
}
