package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/scenekeep-go/pkg/log"
	"github.com/lk2023060901/scenekeep-go/pkg/metrics"
	"github.com/lk2023060901/scenekeep-go/pkg/util/funcutil"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

const tracerName = "snapshot"

// Options 用于构造 Engine 的依赖注入参数。
type Options struct {
	Host     Host
	Registry *Registry
	Logger   *log.MLogger // 允许为 nil（内部使用全局 Logger）
}

// Engine 负责场景图的快照（Serialize）与重建（Deserialize）。
//
// Engine 本身无状态，每次调用独占其 SelectionRecord；
// 但宿主对象图只能单线程访问，调用方不应并发调用同一宿主上的 Engine。
type Engine struct {
	log.Binder

	host     Host
	registry *Registry

	// restoreLog 带限流分组，用于大量外部引用无法解析时的告警。
	restoreLog *log.MLogger
}

// New 创建一个基于给定依赖的 Engine。
func New(opts Options) (*Engine, error) {
	if opts.Host == nil {
		return nil, merr.WrapErrParameterMissing("host")
	}
	if opts.Registry == nil {
		return nil, merr.WrapErrParameterMissing("registry")
	}

	e := &Engine{
		host:     opts.Host,
		registry: opts.Registry,
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.With(log.FieldModule("snapshot"))
	}
	e.SetLogger(logger)
	e.restoreLog = logger.With(log.FieldComponent("deserializer")).
		WithRateGroup("snapshot.restore.unresolved", 1, 30)
	return e, nil
}

// Registry 返回 Engine 使用的属性包类型登记表。
func (e *Engine) Registry() *Registry {
	return e.registry
}

// CanDeserialize 判断记录当前能否被重建：
// 记录中没有 engine-static 节点，且至少有一个根所在的容器处于加载状态。
//
// 调用方必须在执行破坏性的 Deserialize 之前检查。
func (e *Engine) CanDeserialize(rec *SelectionRecord) bool {
	if rec == nil || rec.FoundStatic {
		return false
	}
	for _, idx := range rec.RootIndices {
		if idx < 0 || idx >= len(rec.Nodes) {
			continue
		}
		if e.host.ContainerLoaded(rec.Nodes[idx].ContainerPath) {
			return true
		}
	}
	return false
}

// startOp 为一次操作绑定 Logger、开启 span，并返回结束时调用的收尾函数。
func (e *Engine) startOp(ctx context.Context, op string) (context.Context, func(objects int, err error)) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = e.Attach(ctx)
	ctx, span := log.NewIntentContext(ctx, tracerName, op)
	start := time.Now()

	return ctx, func(objects int, err error) {
		defer span.End()

		result := metrics.SuccessLabel
		switch {
		case merr.IsCritical(err):
			result = metrics.CriticalLabel
		case err != nil:
			result = metrics.FailLabel
		}
		metrics.SnapshotOperations.WithLabelValues(op, result).Inc()
		metrics.SnapshotLatency.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
		if err == nil {
			metrics.SnapshotObjects.WithLabelValues(op).Observe(float64(objects))
		} else {
			span.RecordError(err)
			log.Ctx(ctx).Warn("snapshot operation failed",
				zap.String("op", op),
				zap.Int32("code", merr.Code(err)),
				zap.Error(err))
		}
	}
}

func checkCtx(ctx context.Context) error {
	if ctx != nil && !funcutil.CheckCtxValid(ctx) {
		return ctx.Err()
	}
	return nil
}
