package radix

import (
	"context"
	"math"
	"math/bits"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"go.uber.org/zap"

	"github.com/daviszhen/radixorder/pkg/cluster"
	"github.com/daviszhen/radixorder/pkg/frame"
	"github.com/daviszhen/radixorder/pkg/util"
)

const maxKeySize = 255

// Bucket describes the sorted output of one MSB.
type Bucket struct {
	MSB     int
	Owner   int
	NumRows int64
	NBatch  int
	NGroup  int64
}

// Result locates the sorted buckets of one radix order.
type Result struct {
	IsLeft     bool
	Cols       []int
	KeySize    int
	BatchSize  int
	BiggestBit []int
	BytesUsed  []int
	Owners     [256]int
	Buckets    [256]Bucket
	NumRows    int64

	env *Env
}

// Unique reports whether every packed key occurs once.
func (res *Result) Unique() bool {
	var groups int64
	for _, bucket := range res.Buckets {
		groups += bucket.NGroup
	}
	return groups == res.NumRows
}

// RadixOrder orders the rows of fr by the columns cols, primary first. The
// sorted buckets are left in the kv store of env, homed on their owners.
func RadixOrder(
	ctx context.Context,
	env *Env,
	fr *frame.Frame,
	isLeft bool,
	cols []int,
) (*Result, error) {
	j, err := newJob(env, fr, isLeft, cols)
	if err != nil {
		return nil, err
	}
	util.Info("radix order: start",
		zap.Int64("rows", fr.NumRows()),
		zap.Int("chunks", fr.NChunks()),
		zap.Ints("cols", cols),
		zap.Ints("biggestBit", j.biggestBit),
		zap.Int("keySize", j.keySize),
		zap.Int("batchSize", j.batchSize),
		zap.Int("nodes", env.Cloud.Size()),
		zap.String("token", j.token))

	res, err := j.execute(ctx)
	if err != nil {
		j.dropPartial(context.WithoutCancel(ctx))
		return nil, err
	}
	return res, nil
}

// dropPartial removes what a failed run left in the registry and the store.
// Store cleanup is best effort.
func (j *job) dropPartial(ctx context.Context) {
	env := j.env
	dropped := env.Registry.Drop(j.token)
	removed, err := env.DKV.RemovePrefix(ctx, keyPrefix, sideSuffix(j.isLeft))
	if err != nil {
		util.Warn("radix order: cleanup of failed run incomplete",
			zap.String("token", j.token),
			zap.Int("removed", removed),
			zap.Error(err))
		return
	}
	util.Debug("radix order: failed run dropped",
		zap.String("token", j.token),
		zap.Int("splits", dropped),
		zap.Int("keys", removed))
}

func newJob(env *Env, fr *frame.Frame, isLeft bool, cols []int) (*job, error) {
	if len(cols) == 0 {
		return nil, invalidColumnf("no columns to order by")
	}
	if fr.MaxHome() >= env.Cloud.Size() {
		return nil, errors.Newf("frame homes chunks on node%d, cloud has %d nodes",
			fr.MaxHome(), env.Cloud.Size())
	}
	for cidx := 0; cidx < fr.NChunks(); cidx++ {
		if fr.ChunkLen(cidx) > math.MaxInt32 {
			return nil, capacityf("chunk %d has %d rows", cidx, fr.ChunkLen(cidx))
		}
	}
	j := &job{
		env:        env,
		cfg:        clone.Clone(env.Cfg).(*util.Config),
		fr:         fr,
		isLeft:     isLeft,
		cols:       cols,
		biggestBit: make([]int, len(cols)),
		bytesUsed:  make([]int, len(cols)),
		token:      uuid.New().String(),
	}
	for i, col := range cols {
		bb, err := biggestBit(fr, col)
		if err != nil {
			return nil, err
		}
		j.biggestBit[i] = bb
		j.bytesUsed[i] = (bb + 7) / 8
		j.keySize += j.bytesUsed[i]
	}
	if j.keySize > maxKeySize {
		return nil, capacityf("key of %d bytes, limit %d", j.keySize, maxKeySize)
	}
	if j.biggestBit[0] < 8 {
		util.Warn("radix order: primary column uses fewer than 8 bits",
			zap.Int("col", cols[0]),
			zap.Int("biggestBit", j.biggestBit[0]))
	}
	j.shift = uint(8 * (j.bytesUsed[0] - 1))
	j.batchSize = j.cfg.Radix.BatchSize
	if j.batchSize == 0 {
		j.batchSize = BatchSize(j.keySize, j.cfg.Radix.BatchBytes)
	}
	if j.batchSize < 1 || j.batchSize > math.MaxInt32 {
		return nil, capacityf("batch size %d for %d byte keys", j.batchSize, j.keySize)
	}
	for msb := range j.owners {
		j.owners[msb] = msb % env.Cloud.Size()
	}
	return j, nil
}

// biggestBit is the number of bits the largest value of col needs, at
// least 1.
func biggestBit(fr *frame.Frame, col int) (int, error) {
	if col < 0 || col >= fr.NumCols() {
		return 0, invalidColumnf("column %d out of range [0,%d)", col, fr.NumCols())
	}
	vec := fr.Vec(col)
	if vec.Wide {
		return 0, invalidColumnf("column %s has values outside int64", vec.Name)
	}
	if !vec.IsInt() {
		return 0, invalidColumnf("column %s is %s with scale %d, not integral",
			vec.Name, vec.Typ, vec.Scale)
	}
	roll := vec.Rollups()
	if !roll.HasMinMax {
		return 1, nil
	}
	if roll.Min < 0 {
		return 0, invalidColumnf("column %s has negative value %d", vec.Name, roll.Min)
	}
	return max(1, bits.Len64(uint64(roll.Max))), nil
}

func logStage(stage string, start time.Time, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("stage", stage),
		zap.Duration("took", time.Since(start)),
	}, fields...)
	util.Info("radix order: stage done", fields...)
}

func (j *job) execute(ctx context.Context) (*Result, error) {
	env := j.env

	t0 := time.Now()
	if err := cluster.DoAll(ctx, env.Cloud, j.fr, newMSBCount(j)); err != nil {
		return nil, errors.Wrap(err, "msb count")
	}
	logStage("MSBCount", t0)

	if j.cfg.Radix.OwnerPolicy == util.OwnerDataHome {
		if err := j.assignDataHomeOwners(ctx); err != nil {
			return nil, err
		}
	}

	t0 = time.Now()
	if err := cluster.DoAll(ctx, env.Cloud, j.fr, newLocalSplit(j)); err != nil {
		return nil, errors.Wrap(err, "local split")
	}
	logStage("LocalSplit", t0)

	t0 = time.Now()
	err := cluster.DoAllNodes(ctx, env.Cloud, func(ctx context.Context, node *cluster.Node) error {
		return sendSplitMSB(ctx, j, node)
	})
	if err != nil {
		return nil, errors.Wrap(err, "send split msb")
	}
	var sent int64
	if stats, err := env.DKV.Stats(); err == nil {
		for _, st := range stats {
			sent += st.Bytes
		}
	}
	logStage("SendSplitMSB", t0, zap.String("resident", humanize.IBytes(uint64(sent))))

	t0 = time.Now()
	headers := make([]*OXHeader, 256)
	fs := cluster.NewFutures()
	for msb := 0; msb < 256; msb++ {
		owner := env.Cloud.Node(j.owners[msb])
		fs.AddFuture(cluster.Call(ctx, owner, func(ctx context.Context, node *cluster.Node) error {
			header, err := sortMSB(ctx, j, node, msb)
			if err != nil {
				return errors.Wrapf(err, "sort msb %d on %s", msb, node)
			}
			headers[msb] = header
			return nil
		}))
	}
	if err = fs.BlockForPending(); err != nil {
		return nil, errors.Wrap(err, "per msb sort")
	}
	logStage("PerMSBSort", t0)

	res := &Result{
		IsLeft:     j.isLeft,
		Cols:       j.cols,
		KeySize:    j.keySize,
		BatchSize:  j.batchSize,
		BiggestBit: j.biggestBit,
		BytesUsed:  j.bytesUsed,
		Owners:     j.owners,
		env:        env,
	}
	for msb, header := range headers {
		bucket := Bucket{MSB: msb, Owner: j.owners[msb]}
		if header != nil {
			bucket.NumRows = header.NumRows
			bucket.NBatch = int(header.NBatch)
			bucket.NGroup = header.NGroup
		}
		res.Buckets[msb] = bucket
		res.NumRows += bucket.NumRows
	}
	if res.NumRows != j.fr.NumRows() {
		return nil, invariantf("sorted %d rows of %d", res.NumRows, j.fr.NumRows())
	}
	return res, nil
}

// assignDataHomeOwners homes every MSB on the node that holds most of its
// rows. Empty MSBs keep the round robin owner.
func (j *job) assignDataHomeOwners(ctx context.Context) error {
	size := j.env.Cloud.Size()
	perNode := make([][256]int64, size)
	for n := 0; n < size; n++ {
		arr := &Long2DArray{}
		found, err := j.env.DKV.GetGet(ctx, j.countsKey(n), arr)
		if err != nil {
			return errors.Wrapf(err, "fetch msb counts of node%d", n)
		}
		if !found {
			return invariantf("msb counts of node%d missing", n)
		}
		for _, row := range arr.Val {
			for msb, cnt := range row {
				perNode[n][msb] += cnt
			}
		}
	}
	for msb := 0; msb < 256; msb++ {
		best := int64(0)
		for n := 0; n < size; n++ {
			if perNode[n][msb] > best {
				best = perNode[n][msb]
				j.owners[msb] = n
			}
		}
	}
	return nil
}
