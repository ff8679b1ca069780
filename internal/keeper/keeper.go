// Package keeper 负责会话级的保存与恢复：会话结束时把选中的子树写入存储，
// 下次启动时读取记录并破坏性地重建。
package keeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/scenekeep-go/internal/codec"
	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
	"github.com/lk2023060901/scenekeep-go/internal/store"
	"github.com/lk2023060901/scenekeep-go/pkg/log"
	"github.com/lk2023060901/scenekeep-go/pkg/metrics"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

const (
	DefaultKey      = "PersistSerializationClipboard"
	rescueKeySuffix = ".rescue"
)

// Status 是一次 Restore 的结局。
type Status string

const (
	StatusRestored      Status = "restored"
	StatusNoRecord      Status = "no_record"
	StatusUnchanged     Status = "unchanged"
	StatusNotRestorable Status = "not_restorable"
	StatusRescued       Status = "rescued"
	StatusFailed        Status = "failed"
)

// Outcome 描述 Restore 的结果，Result 仅在 StatusRestored 时有效。
type Outcome struct {
	Status Status
	Result snapshot.Result
}

// Options 为 Keeper 的依赖注入参数。
type Options struct {
	Engine *snapshot.Engine
	Codec  *codec.Codec
	Store  store.Store

	// Key 为保存记录的存储 key，为空时使用 DefaultKey。
	Key string
	// RescueKey 为无法恢复的记录的转存 key，为空时使用 Key + ".rescue"。
	RescueKey string
	// StrictParents 透传给 snapshot.WithStrictParents。
	StrictParents bool
	// OnRestored 在恢复成功后同步调用。
	OnRestored func(snapshot.Result)

	Logger *log.MLogger
}

// Keeper 编排 Serialize/编码/存储 以及其逆过程。
type Keeper struct {
	log.Binder

	engine *snapshot.Engine
	codec  *codec.Codec
	store  store.Store

	key           string
	rescueKey     string
	strictParents bool
	onRestored    func(snapshot.Result)
}

// New 创建 Keeper。
func New(opts Options) (*Keeper, error) {
	if opts.Engine == nil {
		return nil, merr.WrapErrParameterMissing("engine")
	}
	if opts.Codec == nil {
		return nil, merr.WrapErrParameterMissing("codec")
	}
	if opts.Store == nil {
		return nil, merr.WrapErrParameterMissing("store")
	}
	k := &Keeper{
		engine:        opts.Engine,
		codec:         opts.Codec,
		store:         opts.Store,
		key:           opts.Key,
		rescueKey:     opts.RescueKey,
		strictParents: opts.StrictParents,
		onRestored:    opts.OnRestored,
	}
	if k.key == "" {
		k.key = DefaultKey
	}
	if k.rescueKey == "" {
		k.rescueKey = k.key + rescueKeySuffix
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.With(log.FieldModule("keeper"))
	}
	k.SetLogger(logger.With(zap.String("key", k.key)))
	return k, nil
}

// Key 返回保存记录使用的存储 key。
func (k *Keeper) Key() string {
	return k.key
}

// RescueKey 返回转存 key。
func (k *Keeper) RescueKey() string {
	return k.rescueKey
}

func (k *Keeper) record(op, result string, start time.Time) {
	metrics.SnapshotOperations.WithLabelValues(op, result).Inc()
	metrics.SnapshotLatency.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
}

// Save 快照 roots 并写入存储，覆盖旧记录。返回写入的字节数。
func (k *Keeper) Save(ctx context.Context, roots []snapshot.Node) (int, error) {
	start := time.Now()
	ctx = k.Attach(ctx)

	rec, err := k.engine.Serialize(ctx, roots)
	if err == nil {
		var data []byte
		if data, err = k.codec.Marshal(rec); err == nil {
			if err = k.store.Save(ctx, k.key, data); err == nil {
				k.record(metrics.SaveLabel, metrics.SuccessLabel, start)
				log.Ctx(ctx).Info("selection saved",
					zap.Int("roots", len(rec.RootIndices)),
					zap.Int("nodes", len(rec.Nodes)),
					zap.Int("bytes", len(data)),
					zap.Bool("foundStatic", rec.FoundStatic))
				return len(data), nil
			}
		}
	}
	k.record(metrics.SaveLabel, metrics.FailLabel, start)
	log.Ctx(ctx).Warn("save selection failed", zap.Error(err))
	return 0, err
}

// Restore 读取并删除已保存的记录，然后破坏性地重建。
//
// current 为当前宿主中的保存根（通常由 Select 得到），用于判断记录与现状是否一致；
// 一致时不做任何修改。记录含 static 节点时原样转存到 RescueKey，并返回 merr.ErrStaticObject；
// 重建失败但原始节点未被销毁时（如未知属性包类型、引用字段数不一致）同样转存，并返回原错误。
// 原始节点销毁后的失败返回 merr.ErrRestoreAfterDestroy（merr.IsCritical 为 true）。
func (k *Keeper) Restore(ctx context.Context, current []snapshot.Node) (Outcome, error) {
	start := time.Now()
	ctx = k.Attach(ctx)
	logger := log.Ctx(ctx)

	outcome, err := k.restore(ctx, current)

	result := metrics.SuccessLabel
	switch {
	case merr.IsCritical(err):
		result = metrics.CriticalLabel
		logger.Error("failed to restore after destroying originals", zap.String("hint", merr.Detail(err)), zap.Error(err))
	case err != nil && outcome.Status == StatusRescued:
		result = metrics.RejectLabel
	case err != nil:
		result = metrics.FailLabel
		logger.Warn("restore selection failed", zap.Error(err))
	case outcome.Status == StatusNotRestorable:
		result = metrics.RejectLabel
	case outcome.Status != StatusRestored:
		result = metrics.SkipLabel
	}
	k.record(metrics.RestoreLabel, result, start)
	return outcome, err
}

func (k *Keeper) restore(ctx context.Context, current []snapshot.Node) (Outcome, error) {
	logger := log.Ctx(ctx)

	data, ok, err := k.store.Load(ctx, k.key)
	if err != nil {
		return Outcome{Status: StatusFailed}, err
	}
	if !ok {
		return Outcome{Status: StatusNoRecord}, nil
	}
	if err := k.store.Delete(ctx, k.key); err != nil {
		return Outcome{Status: StatusFailed}, err
	}

	rec, err := k.codec.Unmarshal(data)
	if err != nil {
		return Outcome{Status: StatusFailed}, err
	}

	unchanged, err := k.unchanged(ctx, rec, current)
	if err != nil {
		return Outcome{Status: StatusFailed}, err
	}
	if unchanged {
		logger.Debug("saved selection matches current state, nothing to restore")
		return Outcome{Status: StatusUnchanged}, nil
	}

	if !k.engine.CanDeserialize(rec) {
		if rec.FoundStatic {
			if err := k.store.Save(ctx, k.rescueKey, data); err != nil {
				return Outcome{Status: StatusFailed}, err
			}
			logger.Error("saved selection contains a static node and cannot be restored; data kept under rescue key",
				zap.String("rescueKey", k.rescueKey))
			return Outcome{Status: StatusRescued}, merr.WrapErrStaticObject(k.rescueKey, "record stashed under rescue key")
		}
		logger.Warn("saved selection is not restorable, no root container is loaded")
		return Outcome{Status: StatusNotRestorable}, nil
	}

	var res snapshot.Result
	roots, err := k.engine.Deserialize(ctx, rec,
		snapshot.WithDestroyOriginals(true),
		snapshot.WithStrictParents(k.strictParents),
		snapshot.WithOnRestored(func(r snapshot.Result) { res = r }),
	)
	if err != nil && !merr.IsCritical(err) {
		// 原始节点仍在，记录留待再次恢复。
		if serr := k.store.Save(ctx, k.rescueKey, data); serr != nil {
			return Outcome{Status: StatusFailed}, merr.Combine(err, serr)
		}
		logger.Error("saved selection was refused before originals were destroyed; data kept under rescue key",
			zap.String("rescueKey", k.rescueKey), zap.Error(err))
		return Outcome{Status: StatusRescued}, err
	}
	if err != nil {
		return Outcome{Status: StatusFailed}, err
	}

	logger.Info("selection restored",
		zap.Int("roots", len(roots)),
		zap.Int("diagnostics", len(res.Diagnostics)),
		zap.Ints("skipped", res.Skipped))
	if k.onRestored != nil {
		k.onRestored(res)
	}
	return Outcome{Status: StatusRestored, Result: res}, nil
}

// unchanged 判断 rec 是否与 current 的新快照一致。
func (k *Keeper) unchanged(ctx context.Context, rec *snapshot.SelectionRecord, current []snapshot.Node) (bool, error) {
	fresh, err := k.engine.Serialize(ctx, current)
	if err != nil {
		return false, err
	}
	saved, err := codec.Fingerprint(rec)
	if err != nil {
		return false, err
	}
	now, err := codec.Fingerprint(fresh)
	if err != nil {
		return false, err
	}
	return saved == now, nil
}
