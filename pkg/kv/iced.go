package kv

import (
	"github.com/daviszhen/radixorder/pkg/util"
)

// Iced is a value that can be put into the store.
type Iced interface {
	Serialize(serial util.Serialize) error
	Deserialize(deserial util.Deserialize) error
}
