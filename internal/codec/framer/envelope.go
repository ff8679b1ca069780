package framer

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Flags 标记 payload 经过的可选处理阶段。
type Flags uint64

const (
	FlagCompressed Flags = 1 << iota
	FlagEncrypted
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

// Header 是持久化记录的报文头。
type Header struct {
	// Version 为记录格式版本（semver）。
	Version string
	// Serializer 为 payload 使用的序列化器类型，见 serializer.Kind*。
	Serializer string
	Flags      Flags
	// Size 等于 Envelope.Payload 的长度，由 WriteFrame 自动修正。
	Size uint32
	// Timestamp 为编码时间（Unix 毫秒）。
	Timestamp int64
}

// Envelope 为一帧的内容：报文头 + payload。
type Envelope struct {
	Header  Header
	Payload []byte
}

// Header 字段：1=version 2=serializer 3=flags 4=size 5=timestamp
// Envelope 字段：1=header(bytes) 2=payload

func appendHeader(b []byte, h *Header) []byte {
	if h.Version != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, h.Version)
	}
	if h.Serializer != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, h.Serializer)
	}
	if h.Flags != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(h.Flags))
	}
	if h.Size != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(h.Size))
	}
	if h.Timestamp != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(h.Timestamp))
	}
	return b
}

// MarshalHeader 返回报文头的线格式，codec 将其作为加密的关联数据。
func MarshalHeader(h *Header) []byte {
	return appendHeader(nil, h)
}

func marshalEnvelope(env *Envelope) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, appendHeader(nil, &env.Header))
	if len(env.Payload) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, env.Payload)
	}
	return b
}

// walk 逐个解析字段，跳过未知类型。
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v uint64, bs []byte)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "framer: bad tag")
		}
		b = b[n:]

		var (
			v  uint64
			bs []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			bs, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "framer: bad field %d", num)
		}
		b = b[n:]
		fn(num, typ, v, bs)
	}
	return nil
}

func unmarshalHeader(b []byte, h *Header) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v uint64, bs []byte) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			h.Version = string(bs)
		case num == 2 && typ == protowire.BytesType:
			h.Serializer = string(bs)
		case num == 3 && typ == protowire.VarintType:
			h.Flags = Flags(v)
		case num == 4 && typ == protowire.VarintType:
			h.Size = uint32(v)
		case num == 5 && typ == protowire.VarintType:
			h.Timestamp = int64(v)
		}
	})
}

func unmarshalEnvelope(b []byte, env *Envelope) error {
	var headerErr error
	err := walk(b, func(num protowire.Number, typ protowire.Type, _ uint64, bs []byte) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			headerErr = unmarshalHeader(bs, &env.Header)
		case num == 2 && typ == protowire.BytesType:
			env.Payload = append([]byte(nil), bs...)
		}
	})
	if err != nil {
		return err
	}
	return headerErr
}
