package snapshot

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/scenekeep-go/pkg/log"
	"github.com/lk2023060901/scenekeep-go/pkg/metrics"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
	"github.com/lk2023060901/scenekeep-go/pkg/util/typeutil"
)

// DiagnosticKind 是重建过程中非致命问题的分类。
type DiagnosticKind string

const (
	// DiagUnresolvedExternal 外部引用目标已不存在，字段被置空。
	DiagUnresolvedExternal DiagnosticKind = "unresolved_external"
	// DiagMissingParent 根节点的外部父节点已不存在，根节点保持无父状态。
	DiagMissingParent DiagnosticKind = "missing_parent"
	// DiagSkippedRoot 根节点所在容器未加载，整棵子树被跳过。
	DiagSkippedRoot DiagnosticKind = "skipped_root"
	// DiagDanglingInternal 内部引用指向被跳过子树中的对象，字段被置空。
	DiagDanglingInternal DiagnosticKind = "dangling_internal"
)

// Diagnostic 描述一条非致命问题，Node 为记录中节点的位置。
type Diagnostic struct {
	Kind   DiagnosticKind `json:"kind"`
	Node   int            `json:"node"`
	Detail string         `json:"detail"`
}

// Result 是一次成功重建的完整结果。
type Result struct {
	// Roots 为新建的根节点，按原始枚举顺序排列（跳过的根不在其中）。
	Roots       []Node
	Diagnostics []Diagnostic
	// Skipped 为被跳过的根在记录中的位置。
	Skipped []int
}

type restoreConfig struct {
	destroyOriginals bool
	strictParents    bool
	onRestored       func(Result)
}

// RestoreOption 用于调整 Deserialize 行为。
type RestoreOption func(*restoreConfig)

// WithDestroyOriginals 设置是否在重建前销毁原始根节点（按 RootIDs 解析）。
func WithDestroyOriginals(destroy bool) RestoreOption {
	return func(c *restoreConfig) {
		c.destroyOriginals = destroy
	}
}

// WithStrictParents 设置找不到外部父节点时是否视为错误；默认仅记录诊断。
func WithStrictParents(strict bool) RestoreOption {
	return func(c *restoreConfig) {
		c.strictParents = strict
	}
}

// WithOnRestored 设置重建完成后的同步回调，仅在 Deserialize 成功时调用一次。
func WithOnRestored(fn func(Result)) RestoreOption {
	return func(c *restoreConfig) {
		c.onRestored = fn
	}
}

// restoredNode 记录一个新建节点与其来源记录。
type restoredNode struct {
	index int
	node  Node
}

// pendingRef 是留到第二阶段解析的内部引用。
type pendingRef struct {
	node   int
	bag    Bag
	bt     *BagType
	field  refField
	target int
}

// restoreState 是一次 Deserialize 调用的临时状态，每次调用重新创建。
type restoreState struct {
	ctx     context.Context
	cfg     restoreConfig
	rec     *SelectionRecord
	offsets []int
	types   map[TypeID]*BagType

	// arena 与序列化端的全局对象序列一一对应，被跳过的子树保持 nil。
	arena   []Object
	nodes   []restoredNode
	pending []pendingRef
	result  Result
}

func (st *restoreState) diagnose(kind DiagnosticKind, node int, detail string) {
	st.result.Diagnostics = append(st.result.Diagnostics, Diagnostic{Kind: kind, Node: node, Detail: detail})
	metrics.SnapshotDiagnostics.WithLabelValues(string(kind)).Inc()
}

// Deserialize 按记录重建节点，返回新建的根节点。
//
// 流程：
//   - 预检：结构校验、CanDeserialize、属性包类型与引用字段表比对；失败时宿主不受任何影响；
//   - 阶段 0：按需销毁原始根节点；
//   - 阶段 1：按先序重建节点与属性包，立即恢复空引用与外部引用；
//   - 阶段 2：恢复外部父节点、兄弟序号，解析内部引用。
//
// 原始节点销毁后的任何失败都会包装为 merr.ErrRestoreAfterDestroy。
func (e *Engine) Deserialize(ctx context.Context, rec *SelectionRecord, opts ...RestoreOption) (roots []Node, err error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	ctx, done := e.startOp(ctx, metrics.DeserializeLabel)
	objects := 0
	defer func() { done(objects, err) }()

	st, err := e.prepare(ctx, rec, opts)
	if err != nil {
		return nil, err
	}

	destroyed, err := e.destroyOriginals(st)
	if err != nil {
		return nil, err
	}
	afterDestroy := func(err error) error {
		if destroyed > 0 {
			return merr.WrapErrRestoreAfterDestroy(err, destroyed)
		}
		return err
	}

	if err := e.build(st); err != nil {
		return nil, afterDestroy(err)
	}
	if err := e.fixup(st); err != nil {
		return nil, afterDestroy(err)
	}

	objects = len(lo.Compact(st.arena))
	log.Ctx(ctx).Info("selection restored",
		zap.Int("roots", len(st.result.Roots)),
		zap.Int("skipped", len(st.result.Skipped)),
		zap.Int("diagnostics", len(st.result.Diagnostics)),
		zap.Int("destroyed", destroyed))

	if st.cfg.onRestored != nil {
		st.cfg.onRestored(st.result)
	}
	return st.result.Roots, nil
}

// prepare 完成所有不触碰宿主对象图的检查。
func (e *Engine) prepare(ctx context.Context, rec *SelectionRecord, opts []RestoreOption) (*restoreState, error) {
	if rec == nil {
		return nil, merr.WrapErrParameterMissing("record")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.FoundStatic {
		return nil, merr.WrapErrSelectionNotRestorable("selection contains engine-static node")
	}
	if !e.CanDeserialize(rec) {
		return nil, merr.WrapErrSelectionNotRestorable("no root container is loaded")
	}

	st := &restoreState{
		ctx:     ctx,
		rec:     rec,
		offsets: rec.ObjectOffsets(),
		types:   make(map[TypeID]*BagType),
		arena:   make([]Object, rec.ObjectCount()),
	}
	for _, opt := range opts {
		opt(&st.cfg)
	}

	// 未知类型或引用字段数量不一致会导致整次重建中止，因此在销毁原始节点之前统一检查。
	for i := range rec.Nodes {
		for _, br := range rec.Nodes[i].Bags {
			bt, ok := st.types[br.Type]
			if !ok {
				var err error
				bt, err = e.registry.Lookup(br.Type)
				if err != nil {
					return nil, err
				}
				st.types[br.Type] = bt
			}
			if len(br.Refs) != len(bt.fields) {
				return nil, merr.WrapErrRefFieldMismatch(br.Type, len(bt.fields), len(br.Refs),
					fmt.Sprintf("node %d", i))
			}
		}
	}
	return st, nil
}

// destroyOriginals 执行阶段 0，返回实际销毁的根节点数量。
// 已不存在的原始节点直接忽略。
func (e *Engine) destroyOriginals(st *restoreState) (int, error) {
	if !st.cfg.destroyOriginals {
		return 0, nil
	}
	destroyed := 0
	for _, id := range st.rec.RootIDs {
		if id == "" {
			continue
		}
		n, ok := e.host.Resolve(id).(Node)
		if !ok || n == nil {
			continue
		}
		if err := e.host.Destroy(n); err != nil {
			err = merr.WrapErrHostOperation("destroy", err)
			if destroyed > 0 {
				return destroyed, merr.WrapErrRestoreAfterDestroy(err, destroyed)
			}
			return 0, err
		}
		destroyed++
	}
	return destroyed, nil
}

// build 执行阶段 1。
func (e *Engine) build(st *restoreState) error {
	for _, idx := range st.rec.RootIndices {
		nr := &st.rec.Nodes[idx]
		if !e.host.ContainerLoaded(nr.ContainerPath) {
			st.result.Skipped = append(st.result.Skipped, idx)
			st.diagnose(DiagSkippedRoot, idx, fmt.Sprintf("container %q not loaded", nr.ContainerPath))
			continue
		}
		root, _, err := e.buildNode(st, idx)
		if err != nil {
			return err
		}
		st.result.Roots = append(st.result.Roots, root)
	}
	return nil
}

// buildNode 重建位置 i 的节点及其子树，返回节点与子树最后一个节点的位置。
func (e *Engine) buildNode(st *restoreState, i int) (Node, int, error) {
	nr := &st.rec.Nodes[i]

	node, err := e.host.NewNode(nr.ContainerPath)
	if err != nil {
		return nil, 0, merr.WrapErrHostOperation("new node", err)
	}
	if !e.host.ContainerDirty(nr.ContainerPath) {
		e.host.MarkContainerDirty(nr.ContainerPath)
	}
	if err := node.Restore(nr.Snapshot); err != nil {
		return nil, 0, merr.WrapErrSnapshotApply(fmt.Sprintf("node %d", i), err)
	}
	st.arena[st.offsets[i]] = node
	st.nodes = append(st.nodes, restoredNode{index: i, node: node})

	claimed := typeutil.NewSet[Bag]()
	for b := range nr.Bags {
		bag, err := e.buildBag(st, i, node, &nr.Bags[b], claimed)
		if err != nil {
			return nil, 0, err
		}
		st.arena[st.offsets[i]+1+b] = bag
	}

	last := i
	next := nr.FirstChild
	for c := 0; c < nr.ChildCount; c++ {
		child, end, err := e.buildNode(st, next)
		if err != nil {
			return nil, 0, err
		}
		if err := child.SetParent(node); err != nil {
			return nil, 0, merr.WrapErrHostOperation("set parent", err)
		}
		last = end
		next = end + 1
	}
	return node, last, nil
}

func (e *Engine) buildBag(st *restoreState, i int, node Node, br *BagRecord, claimed typeutil.Set[Bag]) (Bag, error) {
	bt := st.types[br.Type]

	var bag Bag
	if bt.intrinsic {
		// 固有属性包随节点创建，取第一个尚未使用的同类型实例。
		bag, _ = lo.Find(node.Bags(), func(b Bag) bool {
			if b == nil || b.TypeID() != br.Type {
				return false
			}
			return !claimed.Contain(b)
		})
		if bag == nil {
			return nil, merr.WrapErrHostOperation("find intrinsic bag",
				merr.WrapErrBagTypeUnknown(br.Type, fmt.Sprintf("node %d has no intrinsic instance", i)))
		}
	} else {
		bag = bt.New()
		if err := e.host.AttachBag(node, bag); err != nil {
			return nil, merr.WrapErrHostOperation("attach bag", err)
		}
	}
	claimed.Insert(bag)

	if err := bag.Restore(br.Snapshot); err != nil {
		return nil, merr.WrapErrSnapshotApply(br.Type, err)
	}

	for j, ref := range br.Refs {
		f := bt.fields[j]
		switch ref.Kind {
		case RefNull:
			if err := f.set(bag, nil); err != nil {
				return nil, err
			}
		case RefExternal:
			target := e.host.Resolve(ref.ID)
			if target == nil {
				st.diagnose(DiagUnresolvedExternal, i, fmt.Sprintf("%s.%s -> %s", br.Type, f.name, ref.ID))
				e.restoreLog.RatedWarn(1, "external reference target not found, field left null",
					zap.Stringer("type", br.Type),
					zap.String("field", f.name),
					log.FieldObjectID(string(ref.ID)))
			}
			if err := f.set(bag, target); err != nil {
				return nil, err
			}
		case RefInternal:
			st.pending = append(st.pending, pendingRef{node: i, bag: bag, bt: bt, field: f, target: ref.Index})
		}
	}
	return bag, nil
}

// fixup 执行阶段 2。
//
// 此时新节点已经全部存在，单个失败不会中断后续修复，所有错误合并后返回，
// 保证对象图处于一致状态。
func (e *Engine) fixup(st *restoreState) error {
	var errs []error

	// 外部父节点只对没有结构性父节点的根生效。
	for _, rn := range st.nodes {
		nr := &st.rec.Nodes[rn.index]
		if !nr.HasParent || rn.node.Parent() != nil {
			continue
		}
		parent, ok := e.host.Resolve(nr.ParentID).(Node)
		if !ok || parent == nil {
			if st.cfg.strictParents {
				errs = append(errs, merr.WrapErrParentNotFound(nr.ParentID, fmt.Sprintf("node %d", rn.index)))
				continue
			}
			st.diagnose(DiagMissingParent, rn.index, fmt.Sprintf("parent %s not found", nr.ParentID))
			log.Ctx(st.ctx).Warn("external parent not found, root restored without parent",
				log.FieldObjectID(string(nr.ParentID)))
			continue
		}
		if err := rn.node.SetParent(parent); err != nil {
			errs = append(errs, merr.WrapErrHostOperation("set parent", err))
		}
	}

	// 按目标序号升序设置，使同一父节点下的多个新节点不会相互挤占位置。
	ordered := make([]restoredNode, len(st.nodes))
	copy(ordered, st.nodes)
	sort.SliceStable(ordered, func(a, b int) bool {
		return st.rec.Nodes[ordered[a].index].SiblingIndex < st.rec.Nodes[ordered[b].index].SiblingIndex
	})
	for _, rn := range ordered {
		if err := rn.node.SetSiblingIndex(st.rec.Nodes[rn.index].SiblingIndex); err != nil {
			errs = append(errs, merr.WrapErrHostOperation("set sibling index", err))
		}
	}

	for _, p := range st.pending {
		target := st.arena[p.target]
		if target == nil {
			st.diagnose(DiagDanglingInternal, p.node,
				fmt.Sprintf("%s.%s -> object %d in skipped subtree", p.bt.id, p.field.name, p.target))
		}
		if err := p.field.set(p.bag, target); err != nil {
			errs = append(errs, err)
		}
	}

	return merr.Combine(errs...)
}
