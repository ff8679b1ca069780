package snapshot

import (
	"fmt"

	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

// ObjectID 是宿主分配的持久化标识，只要对象仍然存在，就能跨越保存/恢复边界解析回该对象。
type ObjectID string

// TypeID 标识一种属性包类型：模块（命名空间）+ 类型名。
type TypeID struct {
	Module string `json:"module"`
	Name   string `json:"name"`
}

func (t TypeID) String() string {
	if t.Module == "" {
		return t.Name
	}
	return t.Module + "." + t.Name
}

// RefKind 表示一个引用字段的分类结果。
type RefKind uint8

const (
	// RefNull 字段不持有引用。
	RefNull RefKind = iota
	// RefInternal 字段指向选择集内部的对象，按全局对象序号编码。
	RefInternal
	// RefExternal 字段指向选择集外部的对象，按持久化标识编码。
	RefExternal
)

var refKindName = map[RefKind]string{
	RefNull:     "null",
	RefInternal: "internal",
	RefExternal: "external",
}

func (k RefKind) String() string {
	if name, ok := refKindName[k]; ok {
		return name
	}
	return fmt.Sprintf("RefKind(%d)", uint8(k))
}

// RefEntry 是单个引用字段的分类记录。
//
// Index 仅在 Kind == RefInternal 时有效，ID 仅在 Kind == RefExternal 时有效。
type RefEntry struct {
	Kind  RefKind  `json:"kind"`
	Index int      `json:"index,omitempty"`
	ID    ObjectID `json:"id,omitempty"`
}

// NullRef 返回一个空引用记录。
func NullRef() RefEntry {
	return RefEntry{Kind: RefNull}
}

// InternalRef 返回指向全局对象序号 index 的内部引用记录。
func InternalRef(index int) RefEntry {
	return RefEntry{Kind: RefInternal, Index: index}
}

// ExternalRef 返回指向持久化标识 id 的外部引用记录。
func ExternalRef(id ObjectID) RefEntry {
	return RefEntry{Kind: RefExternal, ID: id}
}

// BagRecord 是一个属性包的快照。
type BagRecord struct {
	Type     TypeID     `json:"type"`
	Snapshot []byte     `json:"snapshot"`
	Refs     []RefEntry `json:"refs,omitempty"`
}

// NodeRecord 是一个节点的快照。
//
// FirstChild 恒等于该节点自身在扁平序列中的位置 + 1，
// 结合 ChildCount 即可按先序顺序重建整棵树。
type NodeRecord struct {
	Snapshot      []byte      `json:"snapshot"`
	Bags          []BagRecord `json:"bags,omitempty"`
	ContainerPath string      `json:"containerPath"`
	HasParent     bool        `json:"hasParent"`
	ParentID      ObjectID    `json:"parentID,omitempty"`
	SiblingIndex  int         `json:"siblingIndex"`
	ChildCount    int         `json:"childCount"`
	FirstChild    int         `json:"firstChild"`
}

// SelectionRecord 是一次 Serialize 调用产生的完整快照。
//
// 记录本身是惰性数据：在 Serialize 与 Deserialize 之间可以任意持久化或传输，
// 且只应被一次 Deserialize 调用消费。
type SelectionRecord struct {
	Nodes       []NodeRecord `json:"nodes"`
	RootIndices []int        `json:"rootIndices"`
	RootIDs     []ObjectID   `json:"rootIDs"`
	FoundStatic bool         `json:"foundStatic"`
}

// ObjectCount 返回内部引用序号空间的大小：每个节点计 1，外加其全部属性包。
func (r *SelectionRecord) ObjectCount() int {
	n := 0
	for i := range r.Nodes {
		n += 1 + len(r.Nodes[i].Bags)
	}
	return n
}

// ObjectOffsets 返回每个节点在全局对象序列中的起始序号。
// 节点 i 自身位于 offsets[i]，其第 b 个属性包位于 offsets[i]+1+b。
func (r *SelectionRecord) ObjectOffsets() []int {
	offsets := make([]int, len(r.Nodes))
	n := 0
	for i := range r.Nodes {
		offsets[i] = n
		n += 1 + len(r.Nodes[i].Bags)
	}
	return offsets
}

// Validate 检查记录的结构完整性，不访问宿主。
//
// 检查项：
//   - RootIndices 与 RootIDs 一一对应；
//   - 各根的子树按先序首尾相接，恰好覆盖整个 Nodes 序列；
//   - 每个节点的 FirstChild 等于自身位置 + 1，ChildCount 不越界；
//   - 内部引用序号落在全局对象序号空间内，外部引用携带标识。
func (r *SelectionRecord) Validate() error {
	if r == nil {
		return merr.WrapErrRecordInvalid("record is nil")
	}
	if len(r.RootIndices) != len(r.RootIDs) {
		return merr.WrapErrRecordInvalid(fmt.Sprintf("root indices/ids length mismatch: %d != %d",
			len(r.RootIndices), len(r.RootIDs)))
	}

	cursor := 0
	for k, root := range r.RootIndices {
		if root != cursor {
			return merr.WrapErrRecordInvalid(fmt.Sprintf("root %d starts at %d, expected %d", k, root, cursor))
		}
		end, err := r.walk(root)
		if err != nil {
			return err
		}
		cursor = end + 1
	}
	if cursor != len(r.Nodes) {
		return merr.WrapErrRecordInvalid(fmt.Sprintf("roots cover %d of %d nodes", cursor, len(r.Nodes)))
	}

	total := r.ObjectCount()
	for i := range r.Nodes {
		for b, bag := range r.Nodes[i].Bags {
			if bag.Type.Name == "" {
				return merr.WrapErrRecordInvalid(fmt.Sprintf("node %d bag %d has empty type name", i, b))
			}
			for j, ref := range bag.Refs {
				switch ref.Kind {
				case RefNull:
				case RefInternal:
					if ref.Index < 0 || ref.Index >= total {
						return merr.WrapErrRecordInvalid(fmt.Sprintf(
							"node %d bag %d ref %d: internal index %d out of range [0,%d)", i, b, j, ref.Index, total))
					}
				case RefExternal:
					if ref.ID == "" {
						return merr.WrapErrRecordInvalid(fmt.Sprintf("node %d bag %d ref %d: external ref without id", i, b, j))
					}
				default:
					return merr.WrapErrRecordInvalid(fmt.Sprintf("node %d bag %d ref %d: unknown kind %d", i, b, j, ref.Kind))
				}
			}
		}
	}
	return nil
}

// walk 按先序消费以 i 为根的子树，返回子树最后一个节点的位置。
func (r *SelectionRecord) walk(i int) (int, error) {
	if i < 0 || i >= len(r.Nodes) {
		return 0, merr.WrapErrRecordInvalid(fmt.Sprintf("node index %d out of range", i))
	}
	nr := &r.Nodes[i]
	if nr.FirstChild != i+1 {
		return 0, merr.WrapErrRecordInvalid(fmt.Sprintf("node %d first child %d, expected %d", i, nr.FirstChild, i+1))
	}
	if nr.ChildCount < 0 {
		return 0, merr.WrapErrRecordInvalid(fmt.Sprintf("node %d has negative child count", i))
	}
	last := i
	for c := 0; c < nr.ChildCount; c++ {
		end, err := r.walk(last + 1)
		if err != nil {
			return 0, err
		}
		last = end
	}
	return last, nil
}
