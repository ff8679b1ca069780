// Package json 封装 bytedance/sonic，统一项目内的 JSON 编解码入口。
package json

import (
	"github.com/bytedance/sonic"
)

// api 采用标准库兼容配置：map 键排序、转义 HTML，保证输出稳定。
var api = sonic.ConfigStd

// RawMessage 与 encoding/json.RawMessage 兼容。
type RawMessage = []byte

// Marshal 将 v 编码为 JSON。
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent 将 v 编码为带缩进的 JSON。
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// Unmarshal 将 JSON 数据解码到 v。
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Valid 判断 data 是否为合法 JSON。
func Valid(data []byte) bool {
	return api.Valid(data)
}
