package snapshot

// Object 是宿主对象句柄（节点或属性包）。
// 句柄会被用作 map 键，因此必须是可比较类型，通常为指针。
type Object any

// Node 是宿主场景图中的节点。
//
// Children 必须按稳定的兄弟顺序返回；Parent 在没有父节点时返回 nil 接口值。
type Node interface {
	Children() []Node
	Parent() Node
	// SetParent 将节点挂到 parent 下（追加到末尾），parent 为 nil 表示移到容器根部。
	SetParent(parent Node) error
	SiblingIndex() int
	SetSiblingIndex(index int) error
	// IsStatic 表示节点被宿主做过结构性合并，无法安全重建。
	IsStatic() bool
	ContainerPath() string
	// Bags 按宿主定义的挂载顺序返回属性包，可能包含 nil（已失效的属性包）。
	Bags() []Bag
	// Snapshot 与 Restore 读写节点自身的非引用状态，格式由宿主决定。
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// Bag 是挂在节点上的属性包。
// 引用字段不在此接口上暴露，而是通过 Registry 中登记的 Field 表访问。
type Bag interface {
	TypeID() TypeID
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// Host 是宿主对象模型需要提供的能力集合。
type Host interface {
	// NewNode 在指定容器中创建一个空节点，宿主的固有属性包（见 Intrinsic）随节点一起创建。
	NewNode(containerPath string) (Node, error)
	// AttachBag 将新建的属性包挂到节点上。
	AttachBag(node Node, bag Bag) error
	// Destroy 不可逆地销毁节点及其属性包与整棵子树。
	Destroy(node Node) error

	// Resolve 将持久化标识解析为存活对象，不存在或未加载时返回 nil。
	Resolve(id ObjectID) Object
	// Identify 返回对象的持久化标识，没有标识时返回空串。
	Identify(obj Object) ObjectID

	ContainerLoaded(path string) bool
	MarkContainerDirty(path string)
	ContainerDirty(path string) bool
}
