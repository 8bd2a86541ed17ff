package frame

import (
	"encoding/binary"
	"math"
	"sync"

	hll "github.com/axiomhq/hyperloglog"
	"github.com/dchest/siphash"
	"github.com/govalues/decimal"
)

type ColType int

const (
	TypeInt64 ColType = iota
	TypeDecimal
	TypeFloat64
	TypeString
)

func (typ ColType) String() string {
	switch typ {
	case TypeInt64:
		return "bigint"
	case TypeDecimal:
		return "decimal"
	case TypeFloat64:
		return "double"
	case TypeString:
		return "varchar"
	default:
		return "unknown"
	}
}

// Rollups are whole column statistics.
type Rollups struct {
	Rows int64
	// Min and Max are valid only when HasMinMax
	Min            int64
	Max            int64
	HasMinMax      bool
	ApproxDistinct uint64
}

// Vec is one column of a frame.
type Vec struct {
	Name string
	Typ  ColType
	// Scale is the largest scale of a decimal column
	Scale int
	// Wide marks a decimal column holding a value outside int64
	Wide bool

	i64  []int64
	decs []decimal.Decimal
	f64  []float64
	strs []string

	once    sync.Once
	rollups Rollups
}

func NewInt64Vec(name string, vals []int64) *Vec {
	return &Vec{Name: name, Typ: TypeInt64, i64: vals}
}

func NewDecimalVec(name string, vals []decimal.Decimal) *Vec {
	vec := &Vec{Name: name, Typ: TypeDecimal, decs: vals}
	for _, d := range vals {
		vec.Scale = max(vec.Scale, d.Scale())
		if _, _, ok := d.Int64(d.Scale()); !ok {
			vec.Wide = true
		}
	}
	return vec
}

func NewFloat64Vec(name string, vals []float64) *Vec {
	return &Vec{Name: name, Typ: TypeFloat64, f64: vals}
}

func NewStringVec(name string, vals []string) *Vec {
	return &Vec{Name: name, Typ: TypeString, strs: vals}
}

func (vec *Vec) Len() int {
	switch vec.Typ {
	case TypeInt64:
		return len(vec.i64)
	case TypeDecimal:
		return len(vec.decs)
	case TypeFloat64:
		return len(vec.f64)
	default:
		return len(vec.strs)
	}
}

// IsInt reports whether the column holds integers only.
func (vec *Vec) IsInt() bool {
	switch vec.Typ {
	case TypeInt64:
		return true
	case TypeDecimal:
		return vec.Scale == 0 && !vec.Wide
	default:
		return false
	}
}

// At8 returns row r as an integer. The column must be integral.
func (vec *Vec) At8(r int64) int64 {
	switch vec.Typ {
	case TypeInt64:
		return vec.i64[r]
	case TypeDecimal:
		whole, _, ok := vec.decs[r].Int64(0)
		if !ok {
			panic("decimal out of int64 range")
		}
		return whole
	default:
		panic("usp column type " + vec.Typ.String())
	}
}

// String renders row r.
func (vec *Vec) String(r int64) string {
	switch vec.Typ {
	case TypeInt64:
		return formatInt(vec.i64[r])
	case TypeDecimal:
		return vec.decs[r].String()
	case TypeFloat64:
		return formatFloat(vec.f64[r])
	default:
		return vec.strs[r]
	}
}

func (vec *Vec) Rollups() Rollups {
	vec.once.Do(vec.computeRollups)
	return vec.rollups
}

func (vec *Vec) computeRollups() {
	sketch := hll.New14()
	n := int64(vec.Len())
	roll := Rollups{
		Rows:      n,
		Min:       math.MaxInt64,
		Max:       math.MinInt64,
		HasMinMax: vec.IsInt() && n > 0,
	}
	var buf [8]byte
	for r := int64(0); r < n; r++ {
		var h uint64
		switch vec.Typ {
		case TypeFloat64:
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(vec.f64[r]))
			h = siphash.Hash(0, 0, buf[:])
		case TypeString:
			h = siphash.Hash(0, 0, []byte(vec.strs[r]))
		case TypeDecimal:
			if !roll.HasMinMax {
				h = siphash.Hash(0, 0, []byte(vec.decs[r].String()))
				break
			}
			fallthrough
		default:
			v := vec.At8(r)
			roll.Min = min(roll.Min, v)
			roll.Max = max(roll.Max, v)
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
			h = siphash.Hash(0, 0, buf[:])
		}
		sketch.InsertHash(h)
	}
	if !roll.HasMinMax {
		roll.Min, roll.Max = 0, 0
	}
	roll.ApproxDistinct = sketch.Estimate()
	vec.rollups = roll
}
