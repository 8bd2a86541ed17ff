package radix

import (
	"github.com/daviszhen/radixorder/pkg/kv"
	"github.com/daviszhen/radixorder/pkg/util"
)

var (
	_ kv.Iced = new(Long2DArray)
	_ kv.Iced = new(MSBNodeHeader)
	_ kv.Iced = new(OXBatch)
	_ kv.Iced = new(OXHeader)
)

// Long2DArray holds the MSB histograms of one node, indexed by global
// chunk index. Rows of chunks homed elsewhere are nil.
type Long2DArray struct {
	Val [][]int64
}

func (arr *Long2DArray) Serialize(serial util.Serialize) error {
	err := util.Write[uint32](uint32(len(arr.Val)), serial)
	if err != nil {
		return err
	}
	for _, row := range arr.Val {
		err = util.WriteOptional(
			func() bool { return row != nil },
			func(serial util.Serialize) error {
				return util.WriteSlice[int64](row, serial)
			},
			serial)
		if err != nil {
			return err
		}
	}
	return nil
}

func (arr *Long2DArray) Deserialize(deserial util.Deserialize) error {
	var n uint32
	err := util.Read[uint32](&n, deserial)
	if err != nil {
		return err
	}
	arr.Val = make([][]int64, n)
	for i := range arr.Val {
		err = util.ReadOptional(
			func(deserial util.Deserialize) error {
				arr.Val[i], err = util.ReadSlice[int64](deserial)
				return err
			},
			deserial)
		if err != nil {
			return err
		}
	}
	return nil
}

// MSBNodeHeader carries how many rows each local chunk of the publishing
// node sent to one MSB, in ascending chunk order.
type MSBNodeHeader struct {
	Counts []int32
}

func (h *MSBNodeHeader) Serialize(serial util.Serialize) error {
	return util.WriteSlice[int32](h.Counts, serial)
}

func (h *MSBNodeHeader) Deserialize(deserial util.Deserialize) error {
	var err error
	h.Counts, err = util.ReadSlice[int32](deserial)
	return err
}

// OXBatch is one batch of row ids and their packed keys.
type OXBatch struct {
	O []int64
	X []byte
}

func (ox *OXBatch) Serialize(serial util.Serialize) error {
	err := util.WriteSlice[int64](ox.O, serial)
	if err != nil {
		return err
	}
	return util.WriteBytes(ox.X, serial)
}

func (ox *OXBatch) Deserialize(deserial util.Deserialize) error {
	var err error
	ox.O, err = util.ReadSlice[int64](deserial)
	if err != nil {
		return err
	}
	ox.X, err = util.ReadBytes(deserial)
	return err
}

// OXHeader describes the sorted output of one MSB.
type OXHeader struct {
	NBatch    int32
	NumRows   int64
	BatchSize int32
	// NGroup is the number of distinct keys
	NGroup int64
}

func (h *OXHeader) Serialize(serial util.Serialize) error {
	err := util.Write[int32](h.NBatch, serial)
	if err != nil {
		return err
	}
	err = util.Write[int64](h.NumRows, serial)
	if err != nil {
		return err
	}
	err = util.Write[int32](h.BatchSize, serial)
	if err != nil {
		return err
	}
	return util.Write[int64](h.NGroup, serial)
}

func (h *OXHeader) Deserialize(deserial util.Deserialize) error {
	err := util.Read[int32](&h.NBatch, deserial)
	if err != nil {
		return err
	}
	err = util.Read[int64](&h.NumRows, deserial)
	if err != nil {
		return err
	}
	err = util.Read[int32](&h.BatchSize, deserial)
	if err != nil {
		return err
	}
	return util.Read[int64](&h.NGroup, deserial)
}
