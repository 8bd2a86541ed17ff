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

package server

import (
	"context"
	"encoding/hex"
	"net"

	"github.com/cockroachdb/errors"
	wire "github.com/jeroenrinzema/psql-wire"
	"github.com/lib/pq/oid"
	"go.uber.org/zap"

	"github.com/daviszhen/radixorder/pkg/parser"
	"github.com/daviszhen/radixorder/pkg/radix"
	"github.com/daviszhen/radixorder/pkg/util"
)

// Source is a finished radix order.
type Source interface {
	Bucket(msb int) radix.Bucket
	ReadBucket(ctx context.Context, msb int) (*radix.OX, error)
	DecodeKey(key []byte) []int64
}

var _ Source = new(radix.Result)

var bucketColumns = wire.Columns{
	{Name: "msb", Oid: oid.T_int8, Width: 8},
	{Name: "owner", Oid: oid.T_int8, Width: 8},
	{Name: "num_rows", Oid: oid.T_int8, Width: 8},
	{Name: "n_batches", Oid: oid.T_int8, Width: 8},
	{Name: "n_groups", Oid: oid.T_int8, Width: 8},
}

var rowColumns = wire.Columns{
	{Name: "row_id", Oid: oid.T_int8, Width: 8},
	{Name: "key", Oid: oid.T_varchar, Width: -1},
	{Name: "primary", Oid: oid.T_int8, Width: 8},
}

type Handler struct {
	src Source
}

func NewHandler(src Source) *Handler {
	return &Handler{src: src}
}

// Parse answers one query string of a psql session.
func (h *Handler) Parse(ctx context.Context, query string) (wire.PreparedStatements, error) {
	util.Info("incoming SQL :", zap.String("query", query))
	q, err := parser.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	cols := bucketColumns
	if q.Table == parser.TableRows {
		cols = rowColumns
	}
	return wire.Prepared(
		wire.NewStatement(func(ctx context.Context, writer wire.DataWriter, parameters []wire.Parameter) error {
			rows, err := h.Rows(ctx, q)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if err = writer.Row(row); err != nil {
					return err
				}
			}
			return writer.Complete("")
		}, wire.WithColumns(cols)),
	), nil
}

// Rows evaluates q against the source.
func (h *Handler) Rows(ctx context.Context, q *parser.Query) ([][]any, error) {
	switch q.Table {
	case parser.TableBuckets:
		var ret [][]any
		for msb := 0; msb < 256; msb++ {
			if q.MSB >= 0 && msb != q.MSB {
				continue
			}
			bucket := h.src.Bucket(msb)
			ret = append(ret, []any{
				int64(bucket.MSB),
				int64(bucket.Owner),
				bucket.NumRows,
				int64(bucket.NBatch),
				bucket.NGroup,
			})
		}
		return ret, nil
	case parser.TableRows:
		ox, err := h.src.ReadBucket(ctx, q.MSB)
		if err != nil {
			return nil, err
		}
		ret := make([][]any, 0, ox.NumRows())
		for i := int64(0); i < ox.NumRows(); i++ {
			key := ox.Key(i)
			ret = append(ret, []any{ox.Row(i), hex.EncodeToString(key), h.src.DecodeKey(key)[0]})
		}
		return ret, nil
	default:
		return nil, errors.Newf("unknown table %s", q.Table)
	}
}

// Serve listens on addr until ctx is done.
func Serve(ctx context.Context, addr string, src Source) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	return ServeListener(ctx, lis, src)
}

func ServeListener(ctx context.Context, lis net.Listener, src Source) error {
	srv, err := wire.NewServer(NewHandler(src).Parse)
	if err != nil {
		_ = lis.Close()
		return err
	}
	util.Info("psql server listening", zap.String("addr", lis.Addr().String()))
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	err = srv.Serve(lis)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
