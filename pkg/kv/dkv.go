package kv

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/radixorder/pkg/cluster"
	"github.com/daviszhen/radixorder/pkg/util"
)

// ErrKV marks every failure of a put, get or remove.
var ErrKV = errors.New("kv error")

type nodeCounters struct {
	puts    atomic.Int64
	gets    atomic.Int64
	removes atomic.Int64
	bytesIn atomic.Int64
}

type NodeStats struct {
	Node    int
	Keys    int
	Bytes   int64
	Puts    int64
	Gets    int64
	Removes int64
	// BytesIn is the encoded volume put to the node.
	BytesIn int64
}

// DKV is a key value store spread over the nodes of a cloud. Each key is
// stored on its home node only.
type DKV struct {
	cloud    *cluster.Cloud
	stores   []NodeStore
	counters []nodeCounters
	codec    *codec
}

func Open(cloud *cluster.Cloud, opts util.StoreOptions) (*DKV, error) {
	c, err := newCodec(opts.Compress, opts.Checksum)
	if err != nil {
		return nil, err
	}
	dkv := &DKV{
		cloud:    cloud,
		stores:   make([]NodeStore, cloud.Size()),
		counters: make([]nodeCounters, cloud.Size()),
		codec:    c,
	}
	for i := range dkv.stores {
		switch opts.Backend {
		case util.StorePebble:
			dir := ""
			if opts.Dir != "" {
				dir = filepath.Join(opts.Dir, fmt.Sprintf("node%d", i))
			}
			store, err := newPebbleStore(dir)
			if err != nil {
				_ = dkv.Close()
				return nil, err
			}
			dkv.stores[i] = store
		case util.StoreMemory, "":
			dkv.stores[i] = newMemStore()
		default:
			_ = dkv.Close()
			return nil, errors.Newf("unknown store backend %q", opts.Backend)
		}
	}
	util.Info("kv opened",
		zap.Int("nodes", cloud.Size()),
		zap.String("backend", opts.Backend),
		zap.Bool("compress", opts.Compress),
		zap.Bool("checksum", opts.Checksum))
	return dkv, nil
}

func (dkv *DKV) store(key Key) (NodeStore, error) {
	if key.Home < 0 || key.Home >= len(dkv.stores) {
		return nil, errors.Mark(errors.Newf("key %s: home out of range", key), ErrKV)
	}
	return dkv.stores[key.Home], nil
}

// Put stores val under key. With fs the store happens asynchronously and
// fs collects the outcome; the value is serialized before Put returns.
func (dkv *DKV) Put(ctx context.Context, key Key, val Iced, fs *cluster.Futures) error {
	serial := util.NewBufferSerialize(256)
	if err := val.Serialize(serial); err != nil {
		return errors.Mark(errors.Wrapf(err, "serialize %s", key), ErrKV)
	}
	data, err := dkv.codec.encode(serial.Bytes(), key.Hidden)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "encode %s", key), ErrKV)
	}
	if fs == nil {
		return dkv.putEncoded(ctx, key, data)
	}
	fs.Add(func() error {
		return dkv.putEncoded(ctx, key, data)
	})
	return nil
}

func (dkv *DKV) PutSync(ctx context.Context, key Key, val Iced) error {
	return dkv.Put(ctx, key, val, nil)
}

func (dkv *DKV) putEncoded(ctx context.Context, key Key, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store, err := dkv.store(key)
	if err != nil {
		return err
	}
	if err = util.Fire(util.FAULTS_SCOPE_KV, "put"); err != nil {
		return errors.Mark(errors.Wrapf(err, "put %s", key), ErrKV)
	}
	if err = store.Set(key.Name, data); err != nil {
		return errors.Mark(errors.Wrapf(err, "put %s", key), ErrKV)
	}
	dkv.counters[key.Home].puts.Add(1)
	dkv.counters[key.Home].bytesIn.Add(int64(len(data)))
	return nil
}

// GetGet fetches key into into. found is false for a missing key.
func (dkv *DKV) GetGet(ctx context.Context, key Key, into Iced) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	store, err := dkv.store(key)
	if err != nil {
		return false, err
	}
	if err = util.Fire(util.FAULTS_SCOPE_KV, "get"); err != nil {
		return false, errors.Mark(errors.Wrapf(err, "get %s", key), ErrKV)
	}
	data, ok, err := store.Get(key.Name)
	if err != nil {
		return false, errors.Mark(errors.Wrapf(err, "get %s", key), ErrKV)
	}
	dkv.counters[key.Home].gets.Add(1)
	if !ok {
		return false, nil
	}
	raw, err := dkv.codec.decode(data)
	if err != nil {
		return false, errors.Mark(errors.Wrapf(err, "decode %s", key), ErrKV)
	}
	if err = into.Deserialize(util.NewBufferDeserialize(raw)); err != nil {
		return false, errors.Mark(errors.Wrapf(err, "deserialize %s", key), ErrKV)
	}
	return true, nil
}

func (dkv *DKV) Remove(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store, err := dkv.store(key)
	if err != nil {
		return err
	}
	if err = util.Fire(util.FAULTS_SCOPE_KV, "remove"); err != nil {
		return errors.Mark(errors.Wrapf(err, "remove %s", key), ErrKV)
	}
	if err = store.Delete(key.Name); err != nil {
		return errors.Mark(errors.Wrapf(err, "remove %s", key), ErrKV)
	}
	dkv.counters[key.Home].removes.Add(1)
	return nil
}

// Keys lists the keys with the prefix on every node, ordered by name then
// home.
func (dkv *DKV) Keys(prefix string) ([]Key, error) {
	var keys []Key
	for home, store := range dkv.stores {
		err := store.Scan(prefix, func(name string, val []byte) bool {
			keys = append(keys, Key{Name: name, Home: home, Hidden: isHidden(val)})
			return true
		})
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "scan node%d", home), ErrKV)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Home < keys[j].Home
	})
	return keys, nil
}

// RemovePrefix removes every key named with the prefix and the suffix and
// returns how many were removed.
func (dkv *DKV) RemovePrefix(ctx context.Context, prefix, suffix string) (int, error) {
	keys, err := dkv.Keys(prefix)
	if err != nil {
		return 0, err
	}
	cnt := 0
	for _, key := range keys {
		if !strings.HasSuffix(key.Name, suffix) {
			continue
		}
		if err = dkv.Remove(ctx, key); err != nil {
			return cnt, err
		}
		cnt++
	}
	return cnt, nil
}

func (dkv *DKV) Stats() ([]NodeStats, error) {
	ret := make([]NodeStats, len(dkv.stores))
	for home, store := range dkv.stores {
		st := NodeStats{
			Node:    home,
			Puts:    dkv.counters[home].puts.Load(),
			Gets:    dkv.counters[home].gets.Load(),
			Removes: dkv.counters[home].removes.Load(),
			BytesIn: dkv.counters[home].bytesIn.Load(),
		}
		err := store.Scan("", func(name string, val []byte) bool {
			st.Keys++
			st.Bytes += int64(len(val))
			return true
		})
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "scan node%d", home), ErrKV)
		}
		ret[home] = st
	}
	return ret, nil
}

func (dkv *DKV) Close() error {
	var err error
	for _, store := range dkv.stores {
		if store == nil {
			continue
		}
		err = errors.CombineErrors(err, store.Close())
	}
	dkv.codec.close()
	return err
}
