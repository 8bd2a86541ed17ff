package frame

import (
	"github.com/cockroachdb/errors"
)

// Chunk is the slice of one column stored in one chunk.
type Chunk struct {
	vec   *Vec
	Cidx  int
	Start int64
	Len   int
	Home  int
}

// At8 returns the value of row r of the chunk.
func (chunk Chunk) At8(r int) int64 {
	return chunk.vec.At8(chunk.Start + int64(r))
}

// Frame is a table partitioned into chunks spread over nodes.
type Frame struct {
	vecs   []*Vec
	layout Layout
	starts []int64
	local  [][]int
	nRows  int64
}

func New(layout Layout, vecs ...*Vec) (*Frame, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	fr := &Frame{
		vecs:   vecs,
		layout: layout,
		starts: make([]int64, len(layout.ChunkLens)),
		nRows:  layout.NumRows(),
	}
	for _, vec := range vecs {
		if int64(vec.Len()) != fr.nRows {
			return nil, errors.Newf("column %s has %d rows, layout has %d",
				vec.Name, vec.Len(), fr.nRows)
		}
	}
	var start int64
	for cidx, l := range layout.ChunkLens {
		fr.starts[cidx] = start
		start += int64(l)
		home := layout.Homes[cidx]
		for len(fr.local) <= home {
			fr.local = append(fr.local, nil)
		}
		fr.local[home] = append(fr.local[home], cidx)
	}
	return fr, nil
}

func FromInt64s(layout Layout, names []string, cols ...[]int64) (*Frame, error) {
	if len(names) != len(cols) {
		return nil, errors.Newf("%d names for %d columns", len(names), len(cols))
	}
	vecs := make([]*Vec, len(cols))
	for i, col := range cols {
		vecs[i] = NewInt64Vec(names[i], col)
	}
	return New(layout, vecs...)
}

func (fr *Frame) NChunks() int {
	return len(fr.layout.ChunkLens)
}

func (fr *Frame) NumRows() int64 {
	return fr.nRows
}

func (fr *Frame) NumCols() int {
	return len(fr.vecs)
}

func (fr *Frame) Vec(i int) *Vec {
	return fr.vecs[i]
}

func (fr *Frame) Names() []string {
	names := make([]string, len(fr.vecs))
	for i, vec := range fr.vecs {
		names[i] = vec.Name
	}
	return names
}

func (fr *Frame) Layout() Layout {
	return fr.layout
}

func (fr *Frame) HomeNode(cidx int) int {
	return fr.layout.Homes[cidx]
}

func (fr *Frame) ChunkStart(cidx int) int64 {
	return fr.starts[cidx]
}

func (fr *Frame) ChunkLen(cidx int) int {
	return fr.layout.ChunkLens[cidx]
}

// MaxHome is the largest node index that homes a chunk, -1 for an empty
// frame.
func (fr *Frame) MaxHome() int {
	return len(fr.local) - 1
}

// LocalChunks lists the chunks homed on node in ascending order.
func (fr *Frame) LocalChunks(node int) []int {
	if node < 0 || node >= len(fr.local) {
		return nil
	}
	return fr.local[node]
}

func (fr *Frame) Chunk(col int, cidx int) Chunk {
	return Chunk{
		vec:   fr.vecs[col],
		Cidx:  cidx,
		Start: fr.starts[cidx],
		Len:   fr.layout.ChunkLens[cidx],
		Home:  fr.layout.Homes[cidx],
	}
}
