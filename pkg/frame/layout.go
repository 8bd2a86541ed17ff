package frame

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

// Layout splits rows into chunks and places every chunk on a node.
type Layout struct {
	ChunkLens []int
	Homes     []int
}

// LayoutFunc builds the layout for a frame of nRows.
type LayoutFunc func(nRows int) Layout

// EvenLayout cuts nRows into chunks of chunkRows and deals them to nodes
// round robin.
func EvenLayout(nRows int, chunkRows int, nodes int) Layout {
	var layout Layout
	if chunkRows < 1 {
		chunkRows = 1
	}
	if nodes < 1 {
		nodes = 1
	}
	for start, cidx := 0, 0; start < nRows; start, cidx = start+chunkRows, cidx+1 {
		layout.ChunkLens = append(layout.ChunkLens, min(chunkRows, nRows-start))
		layout.Homes = append(layout.Homes, cidx%nodes)
	}
	return layout
}

func EvenLayoutFunc(chunkRows int, nodes int) LayoutFunc {
	return func(nRows int) Layout {
		return EvenLayout(nRows, chunkRows, nodes)
	}
}

func (layout Layout) NumRows() int64 {
	var n int64
	for _, l := range layout.ChunkLens {
		n += int64(l)
	}
	return n
}

func (layout Layout) Validate() error {
	if len(layout.ChunkLens) != len(layout.Homes) {
		return errors.Newf("layout has %d chunk lengths and %d homes",
			len(layout.ChunkLens), len(layout.Homes))
	}
	for cidx, l := range layout.ChunkLens {
		if l < 0 {
			return errors.Newf("chunk %d has negative length %d", cidx, l)
		}
		if layout.Homes[cidx] < 0 {
			return errors.Newf("chunk %d has negative home %d", cidx, layout.Homes[cidx])
		}
	}
	return nil
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
