package kv

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/radixorder/pkg/cluster"
	"github.com/daviszhen/radixorder/pkg/util"
)

func openTestDKV(t *testing.T, nodes int, opts util.StoreOptions) *DKV {
	dkv, err := Open(cluster.NewCloud(nodes, 2), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, dkv.Close())
	})
	return dkv
}

func testBackends() map[string]util.StoreOptions {
	return map[string]util.StoreOptions{
		"memory":          {Backend: util.StoreMemory},
		"memory_zstd_sum": {Backend: util.StoreMemory, Compress: true, Checksum: true},
		"pebble":          {Backend: util.StorePebble},
		"pebble_zstd_sum": {Backend: util.StorePebble, Compress: true, Checksum: true},
	}
}

func Test_putGetRemove(t *testing.T) {
	ctx := context.Background()
	for name, opts := range testBackends() {
		t.Run(name, func(t *testing.T) {
			dkv := openTestDKV(t, 3, opts)
			big := rawValue(bytes.Repeat([]byte("radix"), 1000))
			small := rawValue([]byte{1, 2, 3})
			k1 := MakeHomedKey("__t_big", 2)
			k2 := makeKey("user_small", 3)

			fs := cluster.NewFutures()
			require.NoError(t, dkv.Put(ctx, k1, &big, fs))
			require.NoError(t, dkv.Put(ctx, k2, &small, fs))
			require.NoError(t, fs.BlockForPending())

			var got rawValue
			found, err := dkv.GetGet(ctx, k1, &got)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, big, got)

			found, err = dkv.GetGet(ctx, k2, &got)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, small, got)

			//wrong home finds nothing
			found, err = dkv.GetGet(ctx, MakeHomedKey("__t_big", 1), &got)
			require.NoError(t, err)
			assert.False(t, found)

			keys, err := dkv.Keys("")
			require.NoError(t, err)
			require.Len(t, keys, 2)
			assert.Equal(t, k1, keys[0])
			assert.Equal(t, k2, keys[1])

			require.NoError(t, dkv.Remove(ctx, k1))
			found, err = dkv.GetGet(ctx, k1, &got)
			require.NoError(t, err)
			assert.False(t, found)

			stats, err := dkv.Stats()
			require.NoError(t, err)
			var puts, removes int64
			keyCnt := 0
			for _, st := range stats {
				puts += st.Puts
				removes += st.Removes
				keyCnt += st.Keys
			}
			assert.Equal(t, int64(2), puts)
			assert.Equal(t, int64(1), removes)
			assert.Equal(t, 1, keyCnt)
			assert.Equal(t, int64(1), stats[2].Removes)
		})
	}
}

func Test_removePrefix(t *testing.T) {
	ctx := context.Background()
	for name, opts := range testBackends() {
		t.Run(name, func(t *testing.T) {
			dkv := openTestDKV(t, 2, opts)
			for i := 0; i < 10; i++ {
				val := rawValue{byte(i)}
				require.NoError(t, dkv.PutSync(ctx, MakeHomedKey(fmt.Sprintf("__a_%d", i), i%2), &val))
				require.NoError(t, dkv.PutSync(ctx, MakeHomedKey(fmt.Sprintf("__b_%d", i), i%2), &val))
			}
			n, err := dkv.RemovePrefix(ctx, "__a_", "")
			require.NoError(t, err)
			assert.Equal(t, 10, n)
			n, err = dkv.RemovePrefix(ctx, "__b_", "_9")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			keys, err := dkv.Keys("__")
			require.NoError(t, err)
			assert.Len(t, keys, 9)
			for _, key := range keys {
				assert.True(t, key.Hidden)
				assert.Equal(t, "__b_", key.Name[:4])
			}
		})
	}
}

func Test_keyHome(t *testing.T) {
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("k%d", i)
		home := homeOf(name, 5)
		assert.GreaterOrEqual(t, home, 0)
		assert.Less(t, home, 5)
		assert.Equal(t, home, homeOf(name, 5))
	}
	assert.Equal(t, 0, homeOf("anything", 1))
	assert.False(t, makeKey("x", 3).Hidden)
	assert.True(t, MakeHomedKey("x", 1).Hidden)
}

func Test_envelope(t *testing.T) {
	c, err := newCodec(true, true)
	require.NoError(t, err)
	defer c.close()

	raw := bytes.Repeat([]byte{7, 7, 7, 8}, 4096)
	data, err := c.encode(raw, true)
	require.NoError(t, err)
	assert.Less(t, len(data), len(raw))
	assert.True(t, isHidden(data))
	got, err := c.decode(data)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	//flip a checksum byte
	data[10] ^= 0xff
	_, err = c.decode(data)
	assert.Error(t, err)

	plain, err := newCodec(false, false)
	require.NoError(t, err)
	defer plain.close()
	data, err = plain.encode([]byte{1}, false)
	require.NoError(t, err)
	assert.Equal(t, 1+8+1, len(data))
	assert.False(t, isHidden(data))

	_, err = plain.decode(data[:4])
	assert.Error(t, err)
}

func Test_checksumMismatchIsKVError(t *testing.T) {
	ctx := context.Background()
	dkv := openTestDKV(t, 1, util.StoreOptions{Backend: util.StoreMemory, Checksum: true})
	val := rawValue([]byte("payload"))
	key := MakeHomedKey("__c", 0)
	require.NoError(t, dkv.PutSync(ctx, key, &val))

	data, ok, err := dkv.stores[0].Get(key.Name)
	require.NoError(t, err)
	require.True(t, ok)
	data[len(data)-1] ^= 0x01
	require.NoError(t, dkv.stores[0].Set(key.Name, data))

	var got rawValue
	_, err = dkv.GetGet(ctx, key, &got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKV))
}

func Test_faultInjection(t *testing.T) {
	ctx := context.Background()
	dkv := openTestDKV(t, 2, util.StoreOptions{Backend: util.StoreMemory})
	util.Open(util.FAULTS_SCOPE_KV)
	defer util.Close(util.FAULTS_SCOPE_KV)
	util.Register(util.FAULTS_SCOPE_KV, "put", []string{"disk full"}, func(args []string) error {
		return errors.New(args[0])
	})

	val := rawValue{1}
	err := dkv.PutSync(ctx, MakeHomedKey("__f", 1), &val)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKV))
	assert.Contains(t, err.Error(), "disk full")

	fs := cluster.NewFutures()
	require.NoError(t, dkv.Put(ctx, MakeHomedKey("__f", 0), &val, fs))
	err = fs.BlockForPending()
	assert.True(t, errors.Is(err, ErrKV))

	_, err = dkv.GetGet(ctx, MakeHomedKey("__f", 0), &val)
	assert.NoError(t, err)
}

func Test_homeOutOfRange(t *testing.T) {
	dkv := openTestDKV(t, 2, util.StoreOptions{Backend: util.StoreMemory})
	val := rawValue{1}
	err := dkv.PutSync(context.Background(), MakeHomedKey("__x", 5), &val)
	assert.True(t, errors.Is(err, ErrKV))
}

func Test_prefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("ab"), prefixUpperBound([]byte("aa")))
	assert.Equal(t, []byte("b"), prefixUpperBound([]byte{'a', 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff}))
}

type rawValue []byte

func (raw *rawValue) Serialize(serial util.Serialize) error {
	return util.WriteBytes(*raw, serial)
}

func (raw *rawValue) Deserialize(deserial util.Deserialize) error {
	data, err := util.ReadBytes(deserial)
	if err != nil {
		return err
	}
	*raw = data
	return nil
}
