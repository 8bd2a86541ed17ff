package kv

import (
	"bytes"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/tidwall/btree"

	"github.com/daviszhen/radixorder/pkg/util"
)

// NodeStore is the local storage of one node.
type NodeStore interface {
	Set(key string, val []byte) error
	// Get returns a copy of the stored bytes.
	Get(key string) ([]byte, bool, error)
	Delete(key string) error
	// Scan visits keys with the prefix in ascending order until fn returns
	// false.
	Scan(prefix string, fn func(key string, val []byte) bool) error
	Close() error
}

type memItem struct {
	key string
	val []byte
}

func memItemLess(a, b memItem) bool {
	return a.key < b.key
}

var _ NodeStore = new(memStore)

type memStore struct {
	tree *btree.BTreeG[memItem]
}

func newMemStore() *memStore {
	return &memStore{
		tree: btree.NewBTreeG[memItem](memItemLess),
	}
}

func (store *memStore) Set(key string, val []byte) error {
	store.tree.Set(memItem{key: key, val: bytes.Clone(val)})
	return nil
}

func (store *memStore) Get(key string) ([]byte, bool, error) {
	item, ok := store.tree.Get(memItem{key: key})
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(item.val), true, nil
}

func (store *memStore) Delete(key string) error {
	store.tree.Delete(memItem{key: key})
	return nil
}

func (store *memStore) Scan(prefix string, fn func(key string, val []byte) bool) error {
	store.tree.Ascend(memItem{key: prefix}, func(item memItem) bool {
		if !strings.HasPrefix(item.key, prefix) {
			return false
		}
		return fn(item.key, item.val)
	})
	return nil
}

func (store *memStore) Close() error {
	store.tree.Clear()
	return nil
}

var _ NodeStore = new(pebbleStore)

type pebbleStore struct {
	db *pebble.DB
}

// newPebbleStore opens a pebble instance in dir. An empty dir keeps the
// data in memory.
func newPebbleStore(dir string) (*pebbleStore, error) {
	opts := &pebble.Options{
		Logger: util.Logger().Sugar(),
	}
	if dir == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble at %q", dir)
	}
	return &pebbleStore{db: db}, nil
}

func (store *pebbleStore) Set(key string, val []byte) error {
	return store.db.Set([]byte(key), val, pebble.NoSync)
}

func (store *pebbleStore) Get(key string) ([]byte, bool, error) {
	val, closer, err := store.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return bytes.Clone(val), true, nil
}

func (store *pebbleStore) Delete(key string) error {
	return store.db.Delete([]byte(key), pebble.NoSync)
}

func (store *pebbleStore) Scan(prefix string, fn func(key string, val []byte) bool) error {
	iterOpts := &pebble.IterOptions{}
	if prefix != "" {
		iterOpts.LowerBound = []byte(prefix)
		iterOpts.UpperBound = prefixUpperBound([]byte(prefix))
	}
	iter, err := store.db.NewIter(iterOpts)
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(string(iter.Key()), iter.Value()) {
			break
		}
	}
	return iter.Close()
}

func (store *pebbleStore) Close() error {
	return store.db.Close()
}

func prefixUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
