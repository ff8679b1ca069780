package serializer

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
)

// WireSerializer 使用 protobuf 线格式（protowire）编码 SelectionRecord。
//
// 字段编号：
//
//	SelectionRecord: 1=node(bytes, repeated) 2=root index(zigzag, repeated) 3=root id(string, repeated) 4=found static
//	NodeRecord:      1=snapshot 2=bag(repeated) 3=container 4=has parent 5=parent id 6=sibling 7=child count 8=first child
//	BagRecord:       1=module 2=name 3=snapshot 4=ref(repeated)
//	RefEntry:        1=kind 2=index(zigzag) 3=id
//
// 未知字段会被跳过，便于新增字段后旧版本仍能读取。
type WireSerializer struct{}

var _ Serializer = (*WireSerializer)(nil)

func (WireSerializer) Kind() string {
	return KindWire
}

func (WireSerializer) Marshal(v any) ([]byte, error) {
	rec, ok := v.(*snapshot.SelectionRecord)
	if !ok || rec == nil {
		return nil, errors.Newf("serializer: WireSerializer requires *snapshot.SelectionRecord, got %T", v)
	}
	return appendRecord(nil, rec), nil
}

func (WireSerializer) Unmarshal(data []byte, v any) error {
	rec, ok := v.(*snapshot.SelectionRecord)
	if !ok || rec == nil {
		return errors.Newf("serializer: WireSerializer requires *snapshot.SelectionRecord, got %T", v)
	}
	*rec = snapshot.SelectionRecord{}
	return consumeRecord(data, rec)
}

func appendRecord(b []byte, rec *snapshot.SelectionRecord) []byte {
	for i := range rec.Nodes {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, appendNode(nil, &rec.Nodes[i]))
	}
	for _, idx := range rec.RootIndices {
		b = appendInt(b, 2, idx)
	}
	for _, id := range rec.RootIDs {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, string(id))
	}
	if rec.FoundStatic {
		b = appendBool(b, 4, true)
	}
	return b
}

func appendNode(b []byte, nr *snapshot.NodeRecord) []byte {
	b = appendBytes(b, 1, nr.Snapshot)
	for i := range nr.Bags {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, appendBag(nil, &nr.Bags[i]))
	}
	b = appendString(b, 3, nr.ContainerPath)
	if nr.HasParent {
		b = appendBool(b, 4, true)
	}
	b = appendString(b, 5, string(nr.ParentID))
	b = appendInt(b, 6, nr.SiblingIndex)
	b = appendInt(b, 7, nr.ChildCount)
	b = appendInt(b, 8, nr.FirstChild)
	return b
}

func appendBag(b []byte, br *snapshot.BagRecord) []byte {
	b = appendString(b, 1, br.Type.Module)
	b = appendString(b, 2, br.Type.Name)
	b = appendBytes(b, 3, br.Snapshot)
	for _, ref := range br.Refs {
		var rb []byte
		rb = protowire.AppendTag(rb, 1, protowire.VarintType)
		rb = protowire.AppendVarint(rb, uint64(ref.Kind))
		if ref.Index != 0 {
			rb = appendInt(rb, 2, ref.Index)
		}
		rb = appendString(rb, 3, string(ref.ID))
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, rb)
	}
	return b
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendInt(b []byte, num protowire.Number, v int) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// field 是解析出的一个字段。
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

// consumeFields 逐个解析 b 中的字段并交给 fn 处理。
func consumeFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "serializer: bad tag")
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "serializer: bad field %d", num)
		}
		b = b[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) int() int {
	return int(protowire.DecodeZigZag(f.varint))
}

func (f field) clone() []byte {
	return append([]byte(nil), f.bytes...)
}

func consumeRecord(b []byte, rec *snapshot.SelectionRecord) error {
	return consumeFields(b, func(f field) error {
		switch {
		case f.num == 1 && f.typ == protowire.BytesType:
			var nr snapshot.NodeRecord
			if err := consumeNode(f.bytes, &nr); err != nil {
				return err
			}
			rec.Nodes = append(rec.Nodes, nr)
		case f.num == 2 && f.typ == protowire.VarintType:
			rec.RootIndices = append(rec.RootIndices, f.int())
		case f.num == 3 && f.typ == protowire.BytesType:
			rec.RootIDs = append(rec.RootIDs, snapshot.ObjectID(f.bytes))
		case f.num == 4 && f.typ == protowire.VarintType:
			rec.FoundStatic = protowire.DecodeBool(f.varint)
		}
		return nil
	})
}

func consumeNode(b []byte, nr *snapshot.NodeRecord) error {
	return consumeFields(b, func(f field) error {
		switch {
		case f.num == 1 && f.typ == protowire.BytesType:
			nr.Snapshot = f.clone()
		case f.num == 2 && f.typ == protowire.BytesType:
			var br snapshot.BagRecord
			if err := consumeBag(f.bytes, &br); err != nil {
				return err
			}
			nr.Bags = append(nr.Bags, br)
		case f.num == 3 && f.typ == protowire.BytesType:
			nr.ContainerPath = string(f.bytes)
		case f.num == 4 && f.typ == protowire.VarintType:
			nr.HasParent = protowire.DecodeBool(f.varint)
		case f.num == 5 && f.typ == protowire.BytesType:
			nr.ParentID = snapshot.ObjectID(f.bytes)
		case f.num == 6 && f.typ == protowire.VarintType:
			nr.SiblingIndex = f.int()
		case f.num == 7 && f.typ == protowire.VarintType:
			nr.ChildCount = f.int()
		case f.num == 8 && f.typ == protowire.VarintType:
			nr.FirstChild = f.int()
		}
		return nil
	})
}

func consumeBag(b []byte, br *snapshot.BagRecord) error {
	return consumeFields(b, func(f field) error {
		switch {
		case f.num == 1 && f.typ == protowire.BytesType:
			br.Type.Module = string(f.bytes)
		case f.num == 2 && f.typ == protowire.BytesType:
			br.Type.Name = string(f.bytes)
		case f.num == 3 && f.typ == protowire.BytesType:
			br.Snapshot = f.clone()
		case f.num == 4 && f.typ == protowire.BytesType:
			var ref snapshot.RefEntry
			err := consumeFields(f.bytes, func(rf field) error {
				switch {
				case rf.num == 1 && rf.typ == protowire.VarintType:
					if rf.varint > uint64(snapshot.RefExternal) {
						return errors.Newf("serializer: ref kind %d out of range", rf.varint)
					}
					ref.Kind = snapshot.RefKind(rf.varint)
				case rf.num == 2 && rf.typ == protowire.VarintType:
					ref.Index = rf.int()
				case rf.num == 3 && rf.typ == protowire.BytesType:
					ref.ID = snapshot.ObjectID(rf.bytes)
				}
				return nil
			})
			if err != nil {
				return err
			}
			br.Refs = append(br.Refs, ref)
		}
		return nil
	})
}
