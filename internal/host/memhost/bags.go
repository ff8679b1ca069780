package memhost

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

// Module 是 memhost 属性包类型的模块名。
const Module = "memhost"

var (
	TransformType = snapshot.TypeID{Module: Module, Name: "Transform"}
	TagType       = snapshot.TypeID{Module: Module, Name: "Tag"}
	FollowType    = snapshot.TypeID{Module: Module, Name: "Follow"}
	LinkType      = snapshot.TypeID{Module: Module, Name: "Link"}
	PersistType   = snapshot.TypeID{Module: Module, Name: "Persist"}
)

// ownedBag 由所有 memhost 属性包实现，用于记录所属节点。
type ownedBag interface {
	snapshot.Bag
	owner() *Node
	setOwner(n *Node)
}

type bagBase struct {
	node *Node
}

func (b *bagBase) owner() *Node {
	return b.node
}

func (b *bagBase) setOwner(n *Node) {
	b.node = n
}

// Owner 返回属性包所属节点。
func (b *bagBase) Owner() *Node {
	return b.node
}

type Vec3 [3]float64

// Transform 是节点固有的属性包，每个节点恰好一个。
type Transform struct {
	bagBase
	Position Vec3 `json:"position"`
	Scale    Vec3 `json:"scale"`
}

func (*Transform) TypeID() snapshot.TypeID { return TransformType }
func (t *Transform) Snapshot() ([]byte, error) { return json.Marshal(t) }
func (t *Transform) Restore(data []byte) error { return restoreInto(t, data) }

// Tag 携带名字与层级，没有引用字段。
type Tag struct {
	bagBase
	Label string `json:"label"`
	Layer int    `json:"layer"`
}

func (*Tag) TypeID() snapshot.TypeID { return TagType }
func (t *Tag) Snapshot() ([]byte, error) { return json.Marshal(t) }
func (t *Tag) Restore(data []byte) error { return restoreInto(t, data) }

// Follow 跟随一个目标节点。
type Follow struct {
	bagBase
	Speed  float64 `json:"speed"`
	Target *Node   `json:"-"`
}

func (*Follow) TypeID() snapshot.TypeID { return FollowType }
func (f *Follow) Snapshot() ([]byte, error) { return json.Marshal(f) }
func (f *Follow) Restore(data []byte) error { return restoreInto(f, data) }

// Link 同时引用一个节点与一个属性包。
type Link struct {
	bagBase
	Label string       `json:"label"`
	From  *Node        `json:"-"`
	To    snapshot.Bag `json:"-"`
}

func (*Link) TypeID() snapshot.TypeID { return LinkType }
func (l *Link) Snapshot() ([]byte, error) { return json.Marshal(l) }
func (l *Link) Restore(data []byte) error { return restoreInto(l, data) }

// Persist 是会话保存标记：挂有启用状态的 Persist 的节点会在会话结束时被快照。
type Persist struct {
	bagBase
	Enabled bool `json:"enabled"`
}

func (*Persist) TypeID() snapshot.TypeID { return PersistType }
func (p *Persist) Snapshot() ([]byte, error) { return json.Marshal(p) }
func (p *Persist) Restore(data []byte) error { return restoreInto(p, data) }

func restoreInto(bag snapshot.Bag, data []byte) error {
	if err := json.Unmarshal(data, bag); err != nil {
		return errors.Wrapf(err, "memhost: restore %s", bag.TypeID())
	}
	return nil
}

// Registry 返回登记了全部 memhost 属性包类型的 snapshot.Registry。
func Registry() *snapshot.Registry {
	r := snapshot.NewRegistry()
	for _, err := range []error{
		snapshot.Intrinsic(r, TransformType, func() *Transform { return &Transform{} }),
		snapshot.Register(r, TagType, func() *Tag { return &Tag{} }),
		snapshot.Register(r, FollowType, func() *Follow { return &Follow{} },
			snapshot.Field[*Follow]{
				Name: "Target",
				Get:  func(f *Follow) snapshot.Object { return objectOf(f.Target) },
				Set: func(f *Follow, o snapshot.Object) (err error) {
					f.Target, err = asNode("Target", o)
					return err
				},
			}),
		snapshot.Register(r, LinkType, func() *Link { return &Link{} },
			snapshot.Field[*Link]{
				Name: "From",
				Get:  func(l *Link) snapshot.Object { return objectOf(l.From) },
				Set: func(l *Link, o snapshot.Object) (err error) {
					l.From, err = asNode("From", o)
					return err
				},
			},
			snapshot.Field[*Link]{
				Name: "To",
				Get: func(l *Link) snapshot.Object {
					if l.To == nil {
						return nil
					}
					return l.To
				},
				Set: func(l *Link, o snapshot.Object) error {
					if o == nil {
						l.To = nil
						return nil
					}
					b, ok := o.(snapshot.Bag)
					if !ok {
						return merr.WrapErrRefTargetInvalid("To", o)
					}
					l.To = b
					return nil
				},
			}),
		snapshot.Register(r, PersistType, func() *Persist { return &Persist{} }),
	} {
		if err != nil {
			// 类型表是静态的，登记失败只可能是编程错误。
			panic(err)
		}
	}
	return r
}

func objectOf(n *Node) snapshot.Object {
	if n == nil {
		return nil
	}
	return n
}

func asNode(field string, o snapshot.Object) (*Node, error) {
	if o == nil {
		return nil, nil
	}
	n, ok := o.(*Node)
	if !ok {
		return nil, merr.WrapErrRefTargetInvalid(field, o)
	}
	return n, nil
}
