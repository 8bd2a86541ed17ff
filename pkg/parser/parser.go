// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parser

import (
	"github.com/cockroachdb/errors"
	pg_query "github.com/pganalyze/pg_query_go/v5"
)

const (
	TableBuckets = "radix_buckets"
	TableRows    = "radix_rows"
)

func Parse(s string) ([]*pg_query.RawStmt, error) {
	result, err := pg_query.Parse(s)
	if err != nil {
		return nil, err
	}
	return result.Stmts, nil
}

// Query is a select over one of the result tables. MSB is -1 when the
// query has no msb filter.
type Query struct {
	Table string
	MSB   int
}

// ParseQuery accepts
//
//	SELECT * FROM radix_buckets [WHERE msb = N]
//	SELECT * FROM radix_rows WHERE msb = N
func ParseQuery(sql string) (*Query, error) {
	stmts, err := Parse(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, errors.Newf("expect one statement, got %d", len(stmts))
	}
	sel := stmts[0].GetStmt().GetSelectStmt()
	if sel == nil {
		return nil, errors.New("only select is supported")
	}
	if len(sel.GetTargetList()) != 1 || !isStar(sel.GetTargetList()[0]) {
		return nil, errors.New("only select * is supported")
	}
	if len(sel.GetFromClause()) != 1 || sel.GetFromClause()[0].GetRangeVar() == nil {
		return nil, errors.New("expect exactly one table")
	}
	q := &Query{
		Table: sel.GetFromClause()[0].GetRangeVar().GetRelname(),
		MSB:   -1,
	}
	switch q.Table {
	case TableBuckets, TableRows:
	default:
		return nil, errors.Newf("unknown table %s", q.Table)
	}
	if where := sel.GetWhereClause(); where != nil {
		if q.MSB, err = msbFilter(where); err != nil {
			return nil, err
		}
	}
	if q.Table == TableRows && q.MSB < 0 {
		return nil, errors.Newf("%s needs a msb filter", TableRows)
	}
	if sel.GetLimitCount() != nil || len(sel.GetSortClause()) != 0 || len(sel.GetGroupClause()) != 0 {
		return nil, errors.New("only a msb filter is supported")
	}
	return q, nil
}

func isStar(target *pg_query.Node) bool {
	colRef := target.GetResTarget().GetVal().GetColumnRef()
	if colRef == nil || len(colRef.GetFields()) != 1 {
		return false
	}
	return colRef.GetFields()[0].GetAStar() != nil
}

func msbFilter(where *pg_query.Node) (int, error) {
	expr := where.GetAExpr()
	if expr == nil || expr.GetKind() != pg_query.A_Expr_Kind_AEXPR_OP ||
		len(expr.GetName()) != 1 || expr.GetName()[0].GetString_().GetSval() != "=" {
		return 0, errors.New("only msb = N is supported")
	}
	colRef := expr.GetLexpr().GetColumnRef()
	if colRef == nil || len(colRef.GetFields()) != 1 ||
		colRef.GetFields()[0].GetString_().GetSval() != "msb" {
		return 0, errors.New("only msb = N is supported")
	}
	aconst := expr.GetRexpr().GetAConst()
	if aconst == nil || aconst.GetIval() == nil {
		return 0, errors.New("msb must be compared with an integer")
	}
	msb := int(aconst.GetIval().GetIval())
	if msb < 0 || msb > 255 {
		return 0, errors.Newf("msb %d out of range [0,255]", msb)
	}
	return msb, nil
}
