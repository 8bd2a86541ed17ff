package kv

import (
	"fmt"

	"github.com/dchest/siphash"

	"github.com/daviszhen/radixorder/pkg/util"
)

const (
	sipK0 uint64 = 0x736f6d6570736575
	sipK1 uint64 = 0x646f72616e646f6d
)

// Key names a value and the node that stores it. Hidden keys belong to
// internal jobs and are skipped by user level listings.
type Key struct {
	Name   string
	Home   int
	Hidden bool
}

func (key Key) String() string {
	return fmt.Sprintf("%s@node%d", key.Name, key.Home)
}

// homeOf places a name without a hint on one of size nodes.
func homeOf(name string, size int) int {
	if size <= 1 {
		return 0
	}
	h := siphash.Hash(sipK0, sipK1, util.UnsafeStringToBytes(name))
	return int(h % uint64(size))
}

// makeKey makes a user key homed by hashing its name.
func makeKey(name string, size int) Key {
	return Key{
		Name: name,
		Home: homeOf(name, size),
	}
}

// MakeHomedKey makes a hidden key homed on the given node.
func MakeHomedKey(name string, home int) Key {
	return Key{
		Name:   name,
		Home:   home,
		Hidden: true,
	}
}
