package serializer

import (
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

// 序列化方案名称，写入记录头部，解码时据此选择实现。
const (
	KindJSON = "json"
	KindWire = "wire"
)

// Serializer 抽象了“选择记录 <-> 字节流”的序列化能力。
//
// 设计目标：
//   - 既支持便于人工查看的 JSON，也支持紧凑的二进制格式。
//   - 调用方通过接口注入具体实现，便于后续扩展其它序列化方案。
type Serializer interface {
	// Kind 返回序列化方案名称。
	Kind() string

	// Marshal 将对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象。
	//
	// v 通常为指针类型，用于接收解码结果。
	Unmarshal(data []byte, v any) error
}

// ByKind 按名称返回内置的序列化实现。
func ByKind(kind string) (Serializer, error) {
	switch kind {
	case KindJSON, "":
		return JSONSerializer{}, nil
	case KindWire:
		return WireSerializer{}, nil
	default:
		return nil, merr.WrapErrParameterInvalid("json|wire", kind, "unknown serializer")
	}
}
