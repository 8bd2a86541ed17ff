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

package util

import (
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

const (
	DefaultBatchBytes         = 256 * 1024 * 1024
	DefaultInsertionThreshold = 200
	DefaultChunkRows          = 1 << 16

	OwnerRoundRobin = "roundrobin"
	OwnerDataHome   = "datahome"

	StoreMemory = "memory"
	StorePebble = "pebble"
)

type RadixOptions struct {
	BatchBytes int `tag:"batchBytes"`
	//force batch size. 0 means derived from BatchBytes and the key size
	BatchSize          int    `tag:"batchSize"`
	InsertionThreshold int    `tag:"insertionThreshold"`
	OwnerPolicy        string `tag:"ownerPolicy"`
	KeepCounts         bool   `tag:"keepCounts"`
}

type ClusterOptions struct {
	Nodes        int `tag:"nodes"`
	CoresPerNode int `tag:"coresPerNode"`
	ChunkRows    int `tag:"chunkRows"`
}

type StoreOptions struct {
	Backend  string `tag:"backend"`
	Dir      string `tag:"dir"`
	Compress bool   `tag:"compress"`
	Checksum bool   `tag:"checksum"`
}

type ServerOptions struct {
	Addr string `tag:"addr"`
}

type DebugOptions struct {
	PrintBuckets bool `tag:"printBuckets"`
	Verify       bool `tag:"verify"`
}

type Config struct {
	Radix   RadixOptions   `tag:"radix"`
	Cluster ClusterOptions `tag:"cluster"`
	Store   StoreOptions   `tag:"store"`
	Server  ServerOptions  `tag:"server"`
	Debug   DebugOptions   `tag:"debug"`
}

func DefaultConfig() *Config {
	return &Config{
		Radix: RadixOptions{
			BatchBytes:         DefaultBatchBytes,
			InsertionThreshold: DefaultInsertionThreshold,
			OwnerPolicy:        OwnerRoundRobin,
		},
		Cluster: ClusterOptions{
			Nodes:        1,
			CoresPerNode: runtime.GOMAXPROCS(0),
			ChunkRows:    DefaultChunkRows,
		},
		Store: StoreOptions{
			Backend: StoreMemory,
		},
		Server: ServerOptions{
			Addr: "127.0.0.1:5432",
		},
	}
}

// LoadConfig decodes a toml file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Radix.BatchBytes <= 0 {
		return errors.Newf("radix.batchBytes must be positive, got %d", cfg.Radix.BatchBytes)
	}
	if cfg.Radix.BatchSize < 0 {
		return errors.Newf("radix.batchSize must not be negative, got %d", cfg.Radix.BatchSize)
	}
	if cfg.Radix.InsertionThreshold < 1 {
		return errors.Newf("radix.insertionThreshold must be at least 1, got %d", cfg.Radix.InsertionThreshold)
	}
	switch cfg.Radix.OwnerPolicy {
	case OwnerRoundRobin, OwnerDataHome:
	default:
		return errors.Newf("unknown radix.ownerPolicy %q", cfg.Radix.OwnerPolicy)
	}
	if cfg.Cluster.Nodes < 1 {
		return errors.Newf("cluster.nodes must be at least 1, got %d", cfg.Cluster.Nodes)
	}
	if cfg.Cluster.CoresPerNode < 1 {
		return errors.Newf("cluster.coresPerNode must be at least 1, got %d", cfg.Cluster.CoresPerNode)
	}
	if cfg.Cluster.ChunkRows < 1 {
		return errors.Newf("cluster.chunkRows must be at least 1, got %d", cfg.Cluster.ChunkRows)
	}
	switch cfg.Store.Backend {
	case StoreMemory, StorePebble:
	default:
		return errors.Newf("unknown store.backend %q", cfg.Store.Backend)
	}
	return nil
}
