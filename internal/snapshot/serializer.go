package snapshot

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/scenekeep-go/pkg/log"
	"github.com/lk2023060901/scenekeep-go/pkg/metrics"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
	"github.com/lk2023060901/scenekeep-go/pkg/util/typeutil"
)

// serializeState 是一次 Serialize 调用的临时状态。
type serializeState struct {
	ctx     context.Context
	rec     *SelectionRecord
	objects map[Object]int // 全局对象序列：节点后紧跟其属性包
}

// Serialize 捕获 roots 及其全部后代，生成一份 SelectionRecord。
//
// Serialize 只读取宿主状态，不做任何修改。遇到 engine-static 节点时
// 仅设置 FoundStatic 并继续，由调用方在重建前检查。
func (e *Engine) Serialize(ctx context.Context, roots []Node) (rec *SelectionRecord, err error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	ctx, done := e.startOp(ctx, metrics.SerializeLabel)
	defer func() {
		objects := 0
		if rec != nil {
			objects = rec.ObjectCount()
		}
		done(objects, err)
	}()

	trueRoots := reduceRoots(roots)

	// 先建立完整的全局对象序列，再逐个输出节点：
	// 某个节点的引用可能指向稍后才输出的节点。
	st := &serializeState{
		ctx:     ctx,
		rec:     &SelectionRecord{},
		objects: make(map[Object]int),
	}
	for _, root := range trueRoots {
		for _, n := range tree(root) {
			st.objects[n] = len(st.objects)
			for _, bag := range n.Bags() {
				if bag == nil {
					continue
				}
				st.objects[bag] = len(st.objects)
			}
		}
	}

	for _, root := range trueRoots {
		st.rec.RootIndices = append(st.rec.RootIndices, len(st.rec.Nodes))
		st.rec.RootIDs = append(st.rec.RootIDs, e.host.Identify(root))
		if err := e.serializeNode(st, root); err != nil {
			return nil, err
		}
	}

	log.Ctx(ctx).Debug("selection serialized",
		zap.Int("roots", len(st.rec.RootIndices)),
		zap.Int("nodes", len(st.rec.Nodes)),
		zap.Int("objects", len(st.objects)),
		zap.Bool("foundStatic", st.rec.FoundStatic))
	return st.rec, nil
}

func (e *Engine) serializeNode(st *serializeState, n Node) error {
	data, err := n.Snapshot()
	if err != nil {
		return merr.WrapErrSnapshotCapture(e.host.Identify(n), err)
	}

	children := n.Children()
	nr := NodeRecord{
		Snapshot:      data,
		ContainerPath: n.ContainerPath(),
		SiblingIndex:  n.SiblingIndex(),
		ChildCount:    len(children),
		FirstChild:    len(st.rec.Nodes) + 1,
	}
	if parent := n.Parent(); parent != nil {
		nr.HasParent = true
		nr.ParentID = e.host.Identify(parent)
	}

	for _, bag := range n.Bags() {
		if bag == nil {
			continue
		}
		br, err := e.serializeBag(st, bag)
		if err != nil {
			return err
		}
		nr.Bags = append(nr.Bags, br)
	}

	st.rec.Nodes = append(st.rec.Nodes, nr)

	if n.IsStatic() {
		st.rec.FoundStatic = true
		log.Ctx(st.ctx).Warn("serializing engine-static node, selection will not be restorable",
			log.FieldObjectID(string(e.host.Identify(n))),
			log.FieldContainer(nr.ContainerPath))
	}

	for _, child := range children {
		if err := e.serializeNode(st, child); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) serializeBag(st *serializeState, bag Bag) (BagRecord, error) {
	bt, err := e.registry.Lookup(bag.TypeID())
	if err != nil {
		return BagRecord{}, err
	}
	data, err := bag.Snapshot()
	if err != nil {
		return BagRecord{}, merr.WrapErrSnapshotCapture(bt.id, err)
	}

	br := BagRecord{
		Type:     bt.id,
		Snapshot: data,
		Refs:     make([]RefEntry, 0, len(bt.fields)),
	}
	for _, f := range bt.fields {
		target, err := f.get(bag)
		if err != nil {
			return BagRecord{}, err
		}
		br.Refs = append(br.Refs, e.classify(st, bt, f, target))
	}
	return br, nil
}

// classify 将引用目标分类为 null / internal / external。
func (e *Engine) classify(st *serializeState, bt *BagType, f refField, target Object) RefEntry {
	if target == nil {
		return NullRef()
	}
	if idx, ok := st.objects[target]; ok {
		return InternalRef(idx)
	}
	id := e.host.Identify(target)
	if id == "" {
		// 外部对象没有持久化标识，无法跨越恢复边界，只能按空引用记录。
		log.Ctx(st.ctx).Warn("external reference target has no persistent identity, recorded as null",
			zap.Stringer("type", bt.id),
			zap.String("field", f.name),
			zap.String("target", fmt.Sprintf("%T", target)))
		return NullRef()
	}
	return ExternalRef(id)
}

// reduceRoots 去掉输入中祖先链上已有其它输入节点的节点，避免同一子树被捕获两次。
// 只有一个输入时直接作为唯一的根。
func reduceRoots(nodes []Node) []Node {
	nodes = lo.Uniq(lo.Filter(nodes, func(n Node, _ int) bool { return n != nil }))
	if len(nodes) <= 1 {
		return nodes
	}
	selected := typeutil.NewSet(nodes...)
	return lo.Filter(nodes, func(n Node, _ int) bool {
		for p := n.Parent(); p != nil; p = p.Parent() {
			if selected.Contain(p) {
				return false
			}
		}
		return true
	})
}

// tree 返回以 root 为根的子树的先序序列。
func tree(root Node) []Node {
	out := []Node{root}
	for _, child := range root.Children() {
		out = append(out, tree(child)...)
	}
	return out
}
