package radix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const keyPrefix = "__radix_order__"

type KeyKind int

const (
	KindMSBNodeCounts KeyKind = iota
	KindOXNodeHeader
	KindNodeOXbatch
	KindSortedOXHeader
	KindSortedOXbatch
)

var kindNames = []string{
	KindMSBNodeCounts:  "MSBNodeCounts",
	KindOXNodeHeader:   "OXNodeHeader",
	KindNodeOXbatch:    "NodeOXbatch",
	KindSortedOXHeader: "SortedOXHeader",
	KindSortedOXbatch:  "SortedOXbatch",
}

func (kind KeyKind) String() string {
	if kind < 0 || int(kind) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[kind]
}

// KeyInfo is the decoded form of a radix key name. Fields that the kind
// does not carry are -1.
type KeyInfo struct {
	Kind   KeyKind
	Col    int
	MSB    int
	Node   int
	Batch  int
	IsLeft bool
}

func sideSuffix(isLeft bool) string {
	if isLeft {
		return "_LEFT"
	}
	return "_RIGHT"
}

func msbCountsName(isLeft bool, col int, node int) string {
	return fmt.Sprintf("%sMSBNodeCounts_col%d_node%d%s", keyPrefix, col, node, sideSuffix(isLeft))
}

func nodeHeaderName(isLeft bool, msb int, node int) string {
	return fmt.Sprintf("%sOXNodeHeader_MSB%d_node%d%s", keyPrefix, msb, node, sideSuffix(isLeft))
}

func nodeOXBatchName(isLeft bool, msb int, node int, batch int) string {
	return fmt.Sprintf("%sNodeOXbatch_MSB%d_node%d_batch%d%s", keyPrefix, msb, node, batch, sideSuffix(isLeft))
}

func sortedHeaderName(isLeft bool, msb int) string {
	return fmt.Sprintf("%sSortedOXHeader_MSB%d%s", keyPrefix, msb, sideSuffix(isLeft))
}

func sortedOXBatchName(isLeft bool, msb int, batch int) string {
	return fmt.Sprintf("%sSortedOXbatch_MSB%d_batch%d%s", keyPrefix, msb, batch, sideSuffix(isLeft))
}

func (info KeyInfo) Name() string {
	switch info.Kind {
	case KindMSBNodeCounts:
		return msbCountsName(info.IsLeft, info.Col, info.Node)
	case KindOXNodeHeader:
		return nodeHeaderName(info.IsLeft, info.MSB, info.Node)
	case KindNodeOXbatch:
		return nodeOXBatchName(info.IsLeft, info.MSB, info.Node, info.Batch)
	case KindSortedOXHeader:
		return sortedHeaderName(info.IsLeft, info.MSB)
	case KindSortedOXbatch:
		return sortedOXBatchName(info.IsLeft, info.MSB, info.Batch)
	default:
		panic("usp key kind")
	}
}

// ParseKey decodes a radix key name.
func ParseKey(name string) (KeyInfo, error) {
	info := KeyInfo{Col: -1, MSB: -1, Node: -1, Batch: -1}
	rest, ok := strings.CutPrefix(name, keyPrefix)
	if !ok {
		return info, errors.Newf("not a radix key: %q", name)
	}
	switch {
	case strings.HasSuffix(rest, "_LEFT"):
		info.IsLeft = true
		rest = strings.TrimSuffix(rest, "_LEFT")
	case strings.HasSuffix(rest, "_RIGHT"):
		rest = strings.TrimSuffix(rest, "_RIGHT")
	default:
		return info, errors.Newf("radix key without side: %q", name)
	}
	parts := strings.Split(rest, "_")
	info.Kind = -1
	for i, kindName := range kindNames {
		if parts[0] == kindName {
			info.Kind = KeyKind(i)
			break
		}
	}
	if info.Kind < 0 {
		return info, errors.Newf("unknown radix key kind in %q", name)
	}
	fields := map[string]*int{
		"col":   &info.Col,
		"MSB":   &info.MSB,
		"node":  &info.Node,
		"batch": &info.Batch,
	}
	for _, part := range parts[1:] {
		matched := false
		for label, dst := range fields {
			num, ok := strings.CutPrefix(part, label)
			if !ok {
				continue
			}
			v, err := strconv.Atoi(num)
			if err != nil {
				continue
			}
			*dst = v
			matched = true
			break
		}
		if !matched {
			return info, errors.Newf("bad field %q in radix key %q", part, name)
		}
	}
	//names are canonical, so a round trip must reproduce the input
	if info.Name() != name {
		return info, errors.Newf("malformed radix key %q", name)
	}
	return info, nil
}
