package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/govalues/decimal"
	pqLocal "github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	pqReader "github.com/xitongsys/parquet-go/reader"
)

type CSVOptions struct {
	Comma  rune
	Header bool
}

// ReadCSV loads a csv file. Each column becomes bigint when every field
// parses as an integer, decimal when every field parses as a decimal and
// varchar otherwise.
func ReadCSV(path string, opts CSVOptions, layoutFn LayoutFunc) (*Frame, error) {
	file, err := os.OpenFile(path, os.O_RDONLY, 0755)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	var names []string
	var fields [][]string
	for {
		line, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrapf(err, "read %s", path)
		}
		if names == nil {
			if opts.Header {
				names = line
				fields = make([][]string, len(line))
				continue
			}
			names = make([]string, len(line))
			for i := range names {
				names[i] = fmt.Sprintf("c%d", i)
			}
			fields = make([][]string, len(line))
		}
		for i, field := range line {
			fields[i] = append(fields[i], field)
		}
	}
	vecs := make([]*Vec, len(names))
	for i, name := range names {
		vecs[i] = parseColumn(name, fields[i])
	}
	nRows := 0
	if len(fields) > 0 {
		nRows = len(fields[0])
	}
	return New(layoutFn(nRows), vecs...)
}

func parseColumn(name string, fields []string) *Vec {
	ints := make([]int64, len(fields))
	isInt := true
	for i, field := range fields {
		v, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			isInt = false
			break
		}
		ints[i] = v
	}
	if isInt {
		return NewInt64Vec(name, ints)
	}
	decs := make([]decimal.Decimal, len(fields))
	for i, field := range fields {
		d, err := decimal.Parse(field)
		if err != nil {
			return NewStringVec(name, fields)
		}
		decs[i] = d
	}
	return NewDecimalVec(name, decs)
}

// ReadParquet loads the leaf columns colIdxs of a flat parquet file, all
// of them when colIdxs is empty.
func ReadParquet(path string, colIdxs []int, layoutFn LayoutFunc) (*Frame, error) {
	file, err := pqLocal.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	reader, err := pqReader.NewParquetColumnReader(file, 1)
	if err != nil {
		return nil, err
	}
	defer reader.ReadStop()

	nRows := reader.GetNumRows()
	if len(colIdxs) == 0 {
		for idx := 0; idx+1 < len(reader.Footer.Schema); idx++ {
			colIdxs = append(colIdxs, idx)
		}
	}
	vecs := make([]*Vec, len(colIdxs))
	for j, idx := range colIdxs {
		var elem *parquet.SchemaElement
		if idx+1 < len(reader.Footer.Schema) {
			elem = reader.Footer.Schema[idx+1]
		}
		name := fmt.Sprintf("c%d", idx)
		if elem != nil {
			name = elem.GetName()
		}
		values, _, _, err := reader.ReadColumnByIndex(int64(idx), nRows)
		if err != nil {
			return nil, errors.Wrapf(err, "read column %d of %s", idx, path)
		}
		if int64(len(values)) != nRows {
			return nil, errors.Newf("column %d has %d values, file has %d rows", idx, len(values), nRows)
		}
		vecs[j], err = parquetColumn(name, elem, values)
		if err != nil {
			return nil, err
		}
	}
	return New(layoutFn(int(nRows)), vecs...)
}

func parquetColumn(name string, elem *parquet.SchemaElement, values []any) (*Vec, error) {
	if len(values) == 0 {
		return NewInt64Vec(name, nil), nil
	}
	scale := 0
	isDecimal := false
	if elem != nil && elem.ConvertedType != nil && *elem.ConvertedType == parquet.ConvertedType_DECIMAL {
		isDecimal = true
		scale = int(elem.GetScale())
	}
	switch values[0].(type) {
	case int32, int64:
		ints := make([]int64, len(values))
		for i, field := range values {
			switch v := field.(type) {
			case int32:
				ints[i] = int64(v)
			case int64:
				ints[i] = v
			default:
				return nil, errors.Newf("column %s row %d: unexpected %T", name, i, field)
			}
		}
		if !isDecimal {
			return NewInt64Vec(name, ints), nil
		}
		decs := make([]decimal.Decimal, len(ints))
		for i, v := range ints {
			d, err := decimal.New(v, scale)
			if err != nil {
				return nil, errors.Wrapf(err, "column %s row %d", name, i)
			}
			decs[i] = d
		}
		return NewDecimalVec(name, decs), nil
	case float32, float64:
		fs := make([]float64, len(values))
		for i, field := range values {
			switch v := field.(type) {
			case float32:
				fs[i] = float64(v)
			case float64:
				fs[i] = v
			default:
				return nil, errors.Newf("column %s row %d: unexpected %T", name, i, field)
			}
		}
		return NewFloat64Vec(name, fs), nil
	case string:
		strs := make([]string, len(values))
		for i, field := range values {
			s, ok := field.(string)
			if !ok {
				return nil, errors.Newf("column %s row %d: unexpected %T", name, i, field)
			}
			strs[i] = s
		}
		return NewStringVec(name, strs), nil
	default:
		return nil, errors.Newf("column %s: unsupported parquet value %T", name, values[0])
	}
}

// Generate builds a frame of random non negative integers in [0, maxVal].
func Generate(rows int, cols int, maxVal int64, seed uint64, layout Layout) (*Frame, error) {
	rnd := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	vecs := make([]*Vec, cols)
	for c := 0; c < cols; c++ {
		vals := make([]int64, rows)
		for r := range vals {
			if maxVal == math.MaxInt64 {
				vals[r] = rnd.Int64()
			} else {
				vals[r] = rnd.Int64N(maxVal + 1)
			}
		}
		vecs[c] = NewInt64Vec(fmt.Sprintf("c%d", c), vals)
	}
	return New(layout, vecs...)
}
