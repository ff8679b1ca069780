package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

var tagType = snapshot.TypeID{Module: "demo", Name: "Tag"}

func sampleRecord() *snapshot.SelectionRecord {
	return &snapshot.SelectionRecord{
		Nodes: []snapshot.NodeRecord{
			{
				Snapshot:      []byte(`{"name":"P"}`),
				ContainerPath: "scenes/a.scene",
				HasParent:     true,
				ParentID:      "outer",
				SiblingIndex:  2,
				ChildCount:    1,
				FirstChild:    1,
				Bags: []snapshot.BagRecord{{
					Type:     tagType,
					Snapshot: []byte(`{"label":"x"}`),
					Refs: []snapshot.RefEntry{
						snapshot.InternalRef(0),
						snapshot.NullRef(),
						snapshot.ExternalRef("ext-1"),
					},
				}},
			},
			{Snapshot: []byte(`{"name":"C"}`), ContainerPath: "scenes/a.scene", FirstChild: 2},
		},
		RootIndices: []int{0},
		RootIDs:     []snapshot.ObjectID{"root-0"},
		FoundStatic: true,
	}
}

func TestByKind(t *testing.T) {
	s, err := ByKind("")
	require.NoError(t, err)
	assert.Equal(t, KindJSON, s.Kind())

	s, err = ByKind(KindWire)
	require.NoError(t, err)
	assert.Equal(t, KindWire, s.Kind())

	_, err = ByKind("xml")
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []Serializer{JSONSerializer{}, WireSerializer{}} {
		t.Run(s.Kind(), func(t *testing.T) {
			data, err := s.Marshal(sampleRecord())
			require.NoError(t, err)

			got := &snapshot.SelectionRecord{}
			require.NoError(t, s.Unmarshal(data, got))
			assert.Equal(t, sampleRecord(), got)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestWireNegativeValues(t *testing.T) {
	rec := &snapshot.SelectionRecord{
		Nodes:       []snapshot.NodeRecord{{SiblingIndex: -3, ChildCount: -1, FirstChild: 1}},
		RootIndices: []int{0},
		RootIDs:     []snapshot.ObjectID{"r"},
	}
	data, err := WireSerializer{}.Marshal(rec)
	require.NoError(t, err)
	got := &snapshot.SelectionRecord{}
	require.NoError(t, WireSerializer{}.Unmarshal(data, got))
	assert.Equal(t, -3, got.Nodes[0].SiblingIndex)
	assert.Equal(t, -1, got.Nodes[0].ChildCount)
}

func TestWireSkipsUnknownFields(t *testing.T) {
	data, err := WireSerializer{}.Marshal(sampleRecord())
	require.NoError(t, err)

	data = protowire.AppendTag(data, 99, protowire.Fixed32Type)
	data = protowire.AppendFixed32(data, 7)
	data = protowire.AppendTag(data, 100, protowire.BytesType)
	data = protowire.AppendString(data, "future")

	got := &snapshot.SelectionRecord{}
	require.NoError(t, WireSerializer{}.Unmarshal(data, got))
	assert.Equal(t, sampleRecord(), got)
}

func TestWireErrors(t *testing.T) {
	_, err := WireSerializer{}.Marshal(struct{}{})
	assert.Error(t, err)
	assert.Error(t, WireSerializer{}.Unmarshal(nil, &struct{}{}))

	data, err := WireSerializer{}.Marshal(sampleRecord())
	require.NoError(t, err)
	assert.Error(t, WireSerializer{}.Unmarshal(data[:len(data)-3], &snapshot.SelectionRecord{}))
}

func TestWireRejectsOutOfRangeRefKind(t *testing.T) {
	var ref []byte
	ref = protowire.AppendTag(ref, 1, protowire.VarintType)
	ref = protowire.AppendVarint(ref, 257)

	var bag []byte
	bag = protowire.AppendTag(bag, 2, protowire.BytesType)
	bag = protowire.AppendString(bag, "Tag")
	bag = protowire.AppendTag(bag, 4, protowire.BytesType)
	bag = protowire.AppendBytes(bag, ref)

	var node []byte
	node = protowire.AppendTag(node, 2, protowire.BytesType)
	node = protowire.AppendBytes(node, bag)
	node = protowire.AppendTag(node, 8, protowire.VarintType)
	node = protowire.AppendVarint(node, protowire.EncodeZigZag(1))

	var data []byte
	data = protowire.AppendTag(data, 1, protowire.BytesType)
	data = protowire.AppendBytes(data, node)

	err := WireSerializer{}.Unmarshal(data, &snapshot.SelectionRecord{})
	assert.ErrorContains(t, err, "ref kind 257")
}
