package memhost

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
)

// Node 是内存宿主中的节点。
type Node struct {
	Name   string
	Active bool
	// Static 模拟宿主的结构性合并标记。
	Static bool

	world     *World
	container *Container
	parent    *Node
	children  []*Node
	bags      []snapshot.Bag
	destroyed bool
}

var _ snapshot.Node = (*Node)(nil)

// nodeState 是节点结构快照的内容。
type nodeState struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ID 返回节点的持久化标识，已销毁时为空。
func (n *Node) ID() snapshot.ObjectID {
	return n.world.Identify(n)
}

// Destroyed 表示节点是否已被销毁。
func (n *Node) Destroyed() bool {
	return n.destroyed
}

// Container 返回节点所在容器。
func (n *Node) Container() *Container {
	return n.container
}

// ChildNodes 返回子节点的具体类型切片。
func (n *Node) ChildNodes() []*Node {
	return append([]*Node(nil), n.children...)
}

// ParentNode 返回父节点的具体类型，无父节点时为 nil。
func (n *Node) ParentNode() *Node {
	return n.parent
}

// AddChild 在 n 下创建一个具名子节点。
func (n *Node) AddChild(name string) (*Node, error) {
	child, err := n.world.newNode(n.container.Path)
	if err != nil {
		return nil, err
	}
	child.Name = name
	if err := child.SetParent(n); err != nil {
		return nil, err
	}
	return child, nil
}

// Attach 将属性包挂到节点上。
func (n *Node) Attach(bag snapshot.Bag) error {
	return n.world.AttachBag(n, bag)
}

func (n *Node) Children() []snapshot.Node {
	return lo.Map(n.children, func(c *Node, _ int) snapshot.Node { return c })
}

func (n *Node) Parent() snapshot.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *Node) SetParent(parent snapshot.Node) error {
	if n.destroyed {
		return errors.New("memhost: node destroyed")
	}
	if parent == nil {
		n.detach()
		n.container.roots = append(n.container.roots, n)
		return nil
	}
	p, ok := parent.(*Node)
	if !ok || p == nil {
		return errors.Newf("memhost: foreign parent %T", parent)
	}
	if p.destroyed {
		return errors.New("memhost: parent destroyed")
	}
	for a := p; a != nil; a = a.parent {
		if a == n {
			return errors.New("memhost: parent cycle")
		}
	}
	n.detach()
	n.parent = p
	p.children = append(p.children, n)
	n.setContainer(p.container)
	return nil
}

func (n *Node) SiblingIndex() int {
	return lo.IndexOf(n.siblings(), n)
}

// SetSiblingIndex 将节点移动到兄弟序列中的 index 位置，越界时钳制到两端。
func (n *Node) SetSiblingIndex(index int) error {
	if n.destroyed {
		return errors.New("memhost: node destroyed")
	}
	list := lo.Without(n.siblings(), n)
	index = lo.Clamp(index, 0, len(list))
	list = append(list[:index], append([]*Node{n}, list[index:]...)...)
	if n.parent != nil {
		n.parent.children = list
	} else {
		n.container.roots = list
	}
	return nil
}

func (n *Node) IsStatic() bool {
	return n.Static
}

func (n *Node) ContainerPath() string {
	return n.container.Path
}

func (n *Node) Bags() []snapshot.Bag {
	return append([]snapshot.Bag(nil), n.bags...)
}

func (n *Node) Snapshot() ([]byte, error) {
	return json.Marshal(nodeState{Name: n.Name, Active: n.Active})
}

func (n *Node) Restore(data []byte) error {
	var st nodeState
	if err := json.Unmarshal(data, &st); err != nil {
		return errors.Wrap(err, "memhost: restore node")
	}
	n.Name = st.Name
	n.Active = st.Active
	return nil
}

func (n *Node) siblings() []*Node {
	if n.parent != nil {
		return n.parent.children
	}
	return n.container.roots
}

// detach 将节点从当前兄弟序列中移除。
func (n *Node) detach() {
	if n.parent != nil {
		n.parent.children = lo.Without(n.parent.children, n)
		n.parent = nil
		return
	}
	n.container.roots = lo.Without(n.container.roots, n)
}

func (n *Node) setContainer(c *Container) {
	n.container = c
	for _, child := range n.children {
		child.setContainer(c)
	}
}

// BagOf 返回节点上第一个类型为 T 的属性包。
func BagOf[T snapshot.Bag](n *Node) (T, bool) {
	for _, b := range n.bags {
		if t, ok := b.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}
