// Package memhost 提供一个内存中的宿主对象模型实现，
// 用于单元测试与命令行演示。它完整实现 snapshot.Host 的全部约定。
package memhost

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"

	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Container 对应宿主中的一个场景/文档。
type Container struct {
	Path   string
	loaded bool
	dirty  bool
	roots  []*Node
}

// Roots 返回容器根部的节点，按兄弟顺序排列。
func (c *Container) Roots() []*Node {
	return append([]*Node(nil), c.roots...)
}

// World 是内存宿主。单线程使用，不加锁。
type World struct {
	containers map[string]*Container
	objects    map[snapshot.ObjectID]snapshot.Object
	ids        map[snapshot.Object]snapshot.ObjectID
}

var _ snapshot.Host = (*World)(nil)

// NewWorld 创建一个空的 World。
func NewWorld() *World {
	return &World{
		containers: make(map[string]*Container),
		objects:    make(map[snapshot.ObjectID]snapshot.Object),
		ids:        make(map[snapshot.Object]snapshot.ObjectID),
	}
}

// AddContainer 创建（或返回已有的）容器，新容器处于加载状态。
func (w *World) AddContainer(path string) *Container {
	if c, ok := w.containers[path]; ok {
		return c
	}
	c := &Container{Path: path, loaded: true}
	w.containers[path] = c
	return c
}

// Container 返回指定路径的容器。
func (w *World) Container(path string) (*Container, bool) {
	c, ok := w.containers[path]
	return c, ok
}

// Load 将容器标记为已加载。
func (w *World) Load(path string) error {
	c, ok := w.containers[path]
	if !ok {
		return merr.WrapErrContainerAbsent(path)
	}
	c.loaded = true
	return nil
}

// Unload 将容器标记为未加载，其中的对象不再能被 Resolve。
func (w *World) Unload(path string) error {
	c, ok := w.containers[path]
	if !ok {
		return merr.WrapErrContainerAbsent(path)
	}
	c.loaded = false
	return nil
}

// CreateNode 在容器根部创建一个具名节点。
func (w *World) CreateNode(path, name string) (*Node, error) {
	n, err := w.newNode(path)
	if err != nil {
		return nil, err
	}
	n.Name = name
	return n, nil
}

// NewNode 实现 snapshot.Host。新节点自带一个 Transform。
func (w *World) NewNode(containerPath string) (snapshot.Node, error) {
	n, err := w.newNode(containerPath)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (w *World) newNode(path string) (*Node, error) {
	c, ok := w.containers[path]
	if !ok || !c.loaded {
		return nil, merr.WrapErrContainerAbsent(path)
	}
	n := &Node{world: w, container: c, Active: true}
	c.roots = append(c.roots, n)
	w.register(n)
	if err := w.attach(n, &Transform{Scale: Vec3{1, 1, 1}}); err != nil {
		return nil, err
	}
	return n, nil
}

// AttachBag 实现 snapshot.Host。
func (w *World) AttachBag(node snapshot.Node, bag snapshot.Bag) error {
	n, ok := node.(*Node)
	if !ok || n == nil {
		return errors.Newf("memhost: foreign node %T", node)
	}
	if n.destroyed {
		return errors.New("memhost: node destroyed")
	}
	return w.attach(n, bag)
}

func (w *World) attach(n *Node, bag snapshot.Bag) error {
	ob, ok := bag.(ownedBag)
	if !ok {
		return merr.WrapErrBagTypeUnknown(bag.TypeID(), "not a memhost bag")
	}
	if ob.owner() != nil {
		return errors.Newf("memhost: bag %s already attached", bag.TypeID())
	}
	ob.setOwner(n)
	n.bags = append(n.bags, bag)
	w.register(bag)
	return nil
}

// Destroy 实现 snapshot.Host，销毁节点、其属性包与整棵子树。
func (w *World) Destroy(node snapshot.Node) error {
	n, ok := node.(*Node)
	if !ok || n == nil {
		return errors.Newf("memhost: foreign node %T", node)
	}
	if n.destroyed {
		return nil
	}
	n.detach()
	w.destroyTree(n)
	return nil
}

func (w *World) destroyTree(n *Node) {
	for _, child := range n.children {
		w.destroyTree(child)
	}
	for _, bag := range n.bags {
		w.unregister(bag)
	}
	w.unregister(n)
	n.destroyed = true
	n.children = nil
}

// Resolve 实现 snapshot.Host。所在容器未加载的对象视为不存在。
func (w *World) Resolve(id snapshot.ObjectID) snapshot.Object {
	obj, ok := w.objects[id]
	if !ok {
		return nil
	}
	if n := nodeOf(obj); n != nil && !n.container.loaded {
		return nil
	}
	return obj
}

// Identify 实现 snapshot.Host。
func (w *World) Identify(obj snapshot.Object) snapshot.ObjectID {
	if obj == nil {
		return ""
	}
	return w.ids[obj]
}

// ContainerLoaded 实现 snapshot.Host。
func (w *World) ContainerLoaded(path string) bool {
	c, ok := w.containers[path]
	return ok && c.loaded
}

// MarkContainerDirty 实现 snapshot.Host。
func (w *World) MarkContainerDirty(path string) {
	if c, ok := w.containers[path]; ok {
		c.dirty = true
	}
}

// ContainerDirty 实现 snapshot.Host。
func (w *World) ContainerDirty(path string) bool {
	c, ok := w.containers[path]
	return ok && c.dirty
}

// ClearDirty 清除容器的修改标记（相当于保存）。
func (w *World) ClearDirty(path string) {
	if c, ok := w.containers[path]; ok {
		c.dirty = false
	}
}

// Live 返回当前存活对象的数量（节点与属性包）。
func (w *World) Live() int {
	return len(w.objects)
}

// Find 按 "A/B/C" 形式的名字路径在容器中查找节点。
func (w *World) Find(containerPath, namePath string) (*Node, bool) {
	c, ok := w.containers[containerPath]
	if !ok {
		return nil, false
	}
	level := c.roots
	var found *Node
	for _, name := range lo.Compact(strings.Split(namePath, "/")) {
		n, ok := lo.Find(level, func(n *Node) bool { return n.Name == name })
		if !ok {
			return nil, false
		}
		found = n
		level = n.children
	}
	return found, found != nil
}

// Walk 按先序遍历容器中的全部节点，fn 返回 false 时停止。
func (w *World) Walk(containerPath string, fn func(n *Node) bool) {
	c, ok := w.containers[containerPath]
	if !ok {
		return
	}
	var visit func(n *Node) bool
	visit = func(n *Node) bool {
		if !fn(n) {
			return false
		}
		for _, child := range n.children {
			if !visit(child) {
				return false
			}
		}
		return true
	}
	for _, root := range c.roots {
		if !visit(root) {
			return
		}
	}
}

func (w *World) register(obj snapshot.Object) {
	id := snapshot.ObjectID(uuid.NewString())
	w.objects[id] = obj
	w.ids[obj] = id
}

func (w *World) unregister(obj snapshot.Object) {
	if id, ok := w.ids[obj]; ok {
		delete(w.objects, id)
		delete(w.ids, obj)
	}
}

func nodeOf(obj snapshot.Object) *Node {
	switch v := obj.(type) {
	case *Node:
		return v
	case ownedBag:
		return v.owner()
	}
	return nil
}
