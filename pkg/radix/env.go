package radix

import (
	"github.com/cockroachdb/errors"

	"github.com/daviszhen/radixorder/pkg/cluster"
	"github.com/daviszhen/radixorder/pkg/kv"
	"github.com/daviszhen/radixorder/pkg/util"
)

// Env is the cluster a radix order runs on.
type Env struct {
	Cloud    *cluster.Cloud
	DKV      *kv.DKV
	Cfg      *util.Config
	Registry *Registry
}

func NewEnv(cfg *util.Config) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cloud := cluster.NewCloud(cfg.Cluster.Nodes, cfg.Cluster.CoresPerNode)
	dkv, err := kv.Open(cloud, cfg.Store)
	if err != nil {
		return nil, errors.Wrap(err, "open kv")
	}
	return &Env{
		Cloud:    cloud,
		DKV:      dkv,
		Cfg:      cfg,
		Registry: NewRegistry(),
	}, nil
}

func (env *Env) Close() error {
	return env.DKV.Close()
}
