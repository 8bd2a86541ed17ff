package radix

import (
	"fmt"

	treemap "github.com/liyue201/gostl/ds/map"
	"github.com/xlab/treeprint"
)

// Summary renders the non empty buckets grouped by owner.
func (res *Result) Summary() string {
	byOwner := treemap.New[int, []Bucket](func(a, b int) int {
		return a - b
	})
	for _, bucket := range res.Buckets {
		if bucket.NumRows == 0 {
			continue
		}
		list, err := byOwner.Get(bucket.Owner)
		if err != nil {
			list = nil
		}
		byOwner.Insert(bucket.Owner, append(list, bucket))
	}
	side := "RIGHT"
	if res.IsLeft {
		side = "LEFT"
	}
	tree := treeprint.NewWithRoot(fmt.Sprintf("radix order %s cols %v", side, res.Cols))
	meta := tree.AddBranch("layout")
	meta.AddNode(fmt.Sprintf("rows %d", res.NumRows))
	meta.AddNode(fmt.Sprintf("key size %d", res.KeySize))
	meta.AddNode(fmt.Sprintf("batch size %d", res.BatchSize))
	meta.AddNode(fmt.Sprintf("biggest bit %v", res.BiggestBit))
	meta.AddNode(fmt.Sprintf("unique %v", res.Unique()))
	for iter := byOwner.Begin(); iter.IsValid(); iter.Next() {
		var rows int64
		for _, bucket := range iter.Value() {
			rows += bucket.NumRows
		}
		branch := tree.AddMetaBranch(fmt.Sprintf("%d rows", rows), fmt.Sprintf("node%d", iter.Key()))
		for _, bucket := range iter.Value() {
			branch.AddNode(fmt.Sprintf("msb %d: %d rows, %d batches, %d groups",
				bucket.MSB, bucket.NumRows, bucket.NBatch, bucket.NGroup))
		}
	}
	return tree.String()
}
