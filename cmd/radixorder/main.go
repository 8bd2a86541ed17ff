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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/daviszhen/radixorder/pkg/frame"
	"github.com/daviszhen/radixorder/pkg/radix"
	"github.com/daviszhen/radixorder/pkg/server"
	"github.com/daviszhen/radixorder/pkg/util"
)

func init() {
	cobra.OnInitialize(loadConfig)
	initFlags()
}

var runCfg = util.DefaultConfig()

type inputOptions struct {
	csv     string
	parquet string
	rows    int
	cols    int
	maxVal  int64
	seed    uint64
	by      string
	right   bool
}

var input inputOptions

///root cmd

var info = "distributed radix row ordering"
var RootCmd = &cobra.Command{
	Use:          "radixorder",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use radixorder --help or -h")
	},
}

//sort cmd

var sortInfo = "order a frame on a simulated cluster"
var sortCmd = &cobra.Command{
	Use:   "sort",
	Short: sortInfo,
	Long:  sortInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, env, err := runSort(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		fmt.Println(res.Summary())
		return nil
	},
}

//serve cmd

var serveInfo = "order a frame and serve the buckets over the postgres wire protocol"
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: serveInfo,
	Long:  serveInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		res, env, err := runSort(ctx)
		if err != nil {
			return err
		}
		defer env.Close()
		if runCfg.Debug.PrintBuckets {
			fmt.Println(res.Summary())
		}
		return server.Serve(ctx, runCfg.Server.Addr, res)
	},
}

func initFlags() {
	RootCmd.AddCommand(sortCmd, serveCmd)
	flags := RootCmd.PersistentFlags()
	flags.Int("nodes", 1, "cluster size")
	flags.Int("cores", runCfg.Cluster.CoresPerNode, "cores per node")
	flags.Int("chunk_rows", util.DefaultChunkRows, "rows per chunk")
	flags.Int("batch_size", 0, "rows per batch. 0 derives it from batch_bytes")
	flags.Int("batch_bytes", util.DefaultBatchBytes, "bytes per batch of keys and row ids")
	flags.Int("insertion_threshold", util.DefaultInsertionThreshold, "runs below this use insertion sort")
	flags.String("owner_policy", util.OwnerRoundRobin, "msb owner policy. roundrobin, datahome")
	flags.String("store", util.StoreMemory, "kv backend. memory, pebble")
	flags.String("store_dir", "", "pebble directory. empty keeps it in memory")
	flags.Bool("compress", false, "compress kv values")
	flags.Bool("checksum", false, "checksum kv values")
	flags.Bool("verify", false, "check the sorted buckets against the frame")
	flags.String("addr", runCfg.Server.Addr, "psql listen address")

	for _, b := range flagBindings {
		viper.BindPFlag(b.key, flags.Lookup(b.flag))
	}

	flags.StringVar(&input.csv, "csv", "", "csv file to order")
	flags.StringVar(&input.parquet, "parquet", "", "parquet file to order")
	flags.IntVar(&input.rows, "rows", 1000000, "rows to generate without an input file")
	flags.IntVar(&input.cols, "cols", 1, "columns to generate")
	flags.Int64Var(&input.maxVal, "max", 1<<20, "largest generated value")
	flags.Uint64Var(&input.seed, "seed", 1, "generator seed")
	flags.StringVar(&input.by, "by", "0", "comma separated column indexes, primary first")
	flags.BoolVar(&input.right, "right", false, "order as the right side")
}

// flagBinding overrides one config field when its flag is set on the
// command line.
type flagBinding struct {
	flag string
	key  string
	set  func(cfg *util.Config, key string)
}

var flagBindings = []flagBinding{
	{"nodes", "cluster.nodes", func(cfg *util.Config, key string) { cfg.Cluster.Nodes = viper.GetInt(key) }},
	{"cores", "cluster.coresPerNode", func(cfg *util.Config, key string) { cfg.Cluster.CoresPerNode = viper.GetInt(key) }},
	{"chunk_rows", "cluster.chunkRows", func(cfg *util.Config, key string) { cfg.Cluster.ChunkRows = viper.GetInt(key) }},
	{"batch_size", "radix.batchSize", func(cfg *util.Config, key string) { cfg.Radix.BatchSize = viper.GetInt(key) }},
	{"batch_bytes", "radix.batchBytes", func(cfg *util.Config, key string) { cfg.Radix.BatchBytes = viper.GetInt(key) }},
	{"insertion_threshold", "radix.insertionThreshold", func(cfg *util.Config, key string) { cfg.Radix.InsertionThreshold = viper.GetInt(key) }},
	{"owner_policy", "radix.ownerPolicy", func(cfg *util.Config, key string) { cfg.Radix.OwnerPolicy = viper.GetString(key) }},
	{"store", "store.backend", func(cfg *util.Config, key string) { cfg.Store.Backend = viper.GetString(key) }},
	{"store_dir", "store.dir", func(cfg *util.Config, key string) { cfg.Store.Dir = viper.GetString(key) }},
	{"compress", "store.compress", func(cfg *util.Config, key string) { cfg.Store.Compress = viper.GetBool(key) }},
	{"checksum", "store.checksum", func(cfg *util.Config, key string) { cfg.Store.Checksum = viper.GetBool(key) }},
	{"verify", "debug.verify", func(cfg *util.Config, key string) { cfg.Debug.Verify = viper.GetBool(key) }},
	{"addr", "server.addr", func(cfg *util.Config, key string) { cfg.Server.Addr = viper.GetString(key) }},
}

// applyFlags copies the flags given on the command line over cfg.
func applyFlags(cfg *util.Config, changed func(name string) bool) error {
	for _, b := range flagBindings {
		if changed(b.flag) {
			b.set(cfg, b.key)
		}
	}
	return cfg.Validate()
}

func initRunCfg() error {
	return applyFlags(runCfg, RootCmd.PersistentFlags().Changed)
}

func parseCols(by string) ([]int, error) {
	var cols []int
	for _, field := range strings.Split(by, ",") {
		col, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, errors.Wrapf(err, "bad column %q", field)
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func loadFrame() (*frame.Frame, error) {
	layoutFn := frame.EvenLayoutFunc(runCfg.Cluster.ChunkRows, runCfg.Cluster.Nodes)
	switch {
	case input.csv != "":
		return frame.ReadCSV(input.csv, frame.CSVOptions{Comma: ',', Header: true}, layoutFn)
	case input.parquet != "":
		return frame.ReadParquet(input.parquet, nil, layoutFn)
	default:
		return frame.Generate(input.rows, input.cols, input.maxVal, input.seed, layoutFn(input.rows))
	}
}

func runSort(ctx context.Context) (*radix.Result, *radix.Env, error) {
	if err := initRunCfg(); err != nil {
		return nil, nil, err
	}
	cols, err := parseCols(input.by)
	if err != nil {
		return nil, nil, err
	}
	fr, err := loadFrame()
	if err != nil {
		return nil, nil, err
	}
	util.Info("frame loaded",
		zap.Strings("cols", fr.Names()),
		zap.Int64("rows", fr.NumRows()),
		zap.Int("chunks", fr.NChunks()))
	env, err := radix.NewEnv(runCfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := radix.RadixOrder(ctx, env, fr, !input.right, cols)
	if err != nil {
		_ = env.Close()
		return nil, nil, err
	}
	if runCfg.Debug.Verify {
		if err = res.Verify(ctx, fr); err != nil {
			_ = env.Close()
			return nil, nil, err
		}
		util.Info("radix order verified", zap.Int64("rows", res.NumRows))
	}
	return res, env, nil
}

var defCfgFilePaths = []string{".", "etc"}
var cfgFileName = "radix.toml"

func loadConfig() {
	runCfg = findConfig(defCfgFilePaths, cfgFileName)
}

// findConfig decodes the first valid config file under dirs. Defaults are
// used when there is none.
func findConfig(dirs []string, name string) *util.Config {
	for _, dirPath := range dirs {
		fpath := filepath.Join(dirPath, name)
		if !util.FileIsValid(fpath) {
			continue
		}
		cfg, err := util.LoadConfig(fpath)
		if err != nil {
			util.Error("load config file failed",
				zap.String("fpath", fpath),
				zap.Error(err))
			continue
		}
		util.Info("config loaded", zap.String("fpath", fpath))
		return cfg
	}
	return util.DefaultConfig()
}

func main() {
	defer util.Sync()
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
