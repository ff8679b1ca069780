package snapshot

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

// Field 描述属性包类型 T 上的一个引用字段。
//
// 一个类型的 Field 列表即该类型引用字段的访问顺序，序列化与重建共用同一张表，
// 因此两侧的顺序天然一致。Get 在字段为空时必须返回 nil 接口值（而非带类型的 nil 指针）。
type Field[T Bag] struct {
	Name string
	Get  func(bag T) Object
	Set  func(bag T, target Object) error
}

type refField struct {
	name string
	get  func(Bag) (Object, error)
	set  func(Bag, Object) error
}

// BagType 是注册表中的一项：一个属性包类型的工厂与引用字段表。
type BagType struct {
	id        TypeID
	intrinsic bool
	factory   func() Bag
	fields    []refField
}

func (t *BagType) ID() TypeID {
	return t.id
}

// Intrinsic 表示该类型由宿主随节点自动创建，重建时复用节点上已有的实例。
func (t *BagType) Intrinsic() bool {
	return t.intrinsic
}

// FieldNames 返回引用字段名，顺序即访问顺序。
func (t *BagType) FieldNames() []string {
	names := make([]string, len(t.fields))
	for i, f := range t.fields {
		names[i] = f.name
	}
	return names
}

// New 创建一个空的属性包实例。
func (t *BagType) New() Bag {
	return t.factory()
}

// Registry 是属性包类型的登记表，在进程启动时填充，之后只读。
type Registry struct {
	mu    sync.RWMutex
	types map[TypeID]*BagType
}

// NewRegistry 创建一个空的 Registry。
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[TypeID]*BagType),
	}
}

// Register 登记一个可动态创建的属性包类型。
func Register[T Bag](r *Registry, id TypeID, factory func() T, fields ...Field[T]) error {
	return register(r, id, false, factory, fields)
}

// Intrinsic 登记一个宿主固有的属性包类型（每个新节点都自带一个实例）。
func Intrinsic[T Bag](r *Registry, id TypeID, factory func() T, fields ...Field[T]) error {
	return register(r, id, true, factory, fields)
}

func register[T Bag](r *Registry, id TypeID, intrinsic bool, factory func() T, fields []Field[T]) error {
	if r == nil {
		return merr.WrapErrParameterMissing("registry")
	}
	if id.Name == "" {
		return merr.WrapErrParameterInvalidMsg("bag type name is empty")
	}
	if factory == nil {
		return merr.WrapErrParameterMissing("factory", id.String())
	}

	bt := &BagType{
		id:        id,
		intrinsic: intrinsic,
		factory:   func() Bag { return factory() },
		fields:    make([]refField, 0, len(fields)),
	}
	for _, f := range fields {
		if f.Get == nil || f.Set == nil {
			return merr.WrapErrParameterInvalidMsg("field %s.%s lacks accessor", id, f.Name)
		}
		bt.fields = append(bt.fields, typedField(f))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[id]; ok {
		return merr.WrapErrBagTypeDuplicate(id)
	}
	r.types[id] = bt
	return nil
}

func typedField[T Bag](f Field[T]) refField {
	return refField{
		name: f.Name,
		get: func(b Bag) (Object, error) {
			t, ok := b.(T)
			if !ok {
				return nil, merr.WrapErrRefTargetInvalid(f.Name, b, "bag does not match registered type")
			}
			return f.Get(t), nil
		},
		set: func(b Bag, target Object) error {
			t, ok := b.(T)
			if !ok {
				return merr.WrapErrRefTargetInvalid(f.Name, b, "bag does not match registered type")
			}
			return f.Set(t, target)
		},
	}
}

// Lookup 按类型标识查找属性包类型，未登记时返回 ErrBagTypeUnknown。
func (r *Registry) Lookup(id TypeID) (*BagType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bt, ok := r.types[id]
	if !ok {
		return nil, merr.WrapErrBagTypeUnknown(id)
	}
	return bt, nil
}

// Types 返回所有已登记的类型标识，按字符串排序。
func (r *Registry) Types() []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := lo.Keys(r.types)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
