package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameContainer = "container"
	FieldNameObjectID  = "objectID"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldContainer 返回一个包含宿主容器路径（场景/文档）的 zap 字段。
func FieldContainer(path string) zap.Field {
	return zap.String(FieldNameContainer, path)
}

// FieldObjectID 返回一个包含宿主持久化标识的 zap 字段。
func FieldObjectID(id string) zap.Field {
	return zap.String(FieldNameObjectID, id)
}
