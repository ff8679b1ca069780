package memhost

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

const scene = "scenes/test.scene"

type WorldSuite struct {
	suite.Suite
	world *World
}

func (s *WorldSuite) SetupTest() {
	s.world = NewWorld()
	s.world.AddContainer(scene)
}

func (s *WorldSuite) create(name string) *Node {
	n, err := s.world.CreateNode(scene, name)
	s.Require().NoError(err)
	return n
}

func (s *WorldSuite) TestNewNodeHasTransform() {
	n := s.create("A")
	s.Require().Len(n.Bags(), 1)
	tr, ok := BagOf[*Transform](n)
	s.Require().True(ok)
	s.Equal(Vec3{1, 1, 1}, tr.Scale)
	s.Same(n, tr.Owner())
	s.NotEmpty(n.ID())
	s.Equal(scene, n.ContainerPath())

	_, err := s.world.NewNode("missing.scene")
	s.ErrorIs(err, merr.ErrContainerAbsent)
}

func (s *WorldSuite) TestHierarchy() {
	p := s.create("P")
	a, err := p.AddChild("A")
	s.Require().NoError(err)
	b, err := p.AddChild("B")
	s.Require().NoError(err)
	c, err := p.AddChild("C")
	s.Require().NoError(err)

	s.Equal(0, p.SiblingIndex())
	s.Equal([]int{0, 1, 2}, []int{a.SiblingIndex(), b.SiblingIndex(), c.SiblingIndex()})
	s.Same(p, a.Parent().(*Node))
	s.Nil(p.Parent())

	s.Require().NoError(c.SetSiblingIndex(0))
	s.Equal([]*Node{c, a, b}, p.ChildNodes())
	s.Require().NoError(c.SetSiblingIndex(10))
	s.Equal([]*Node{a, b, c}, p.ChildNodes())

	s.Error(p.SetParent(a), "cycle")
	s.Require().NoError(a.SetParent(nil))
	s.Equal([]*Node{b, c}, p.ChildNodes())
	root, _ := s.world.Container(scene)
	s.Equal([]*Node{p, a}, root.Roots())

	found, ok := s.world.Find(scene, "P/C")
	s.True(ok)
	s.Same(c, found)
	_, ok = s.world.Find(scene, "P/A")
	s.False(ok)

	var visited []string
	s.world.Walk(scene, func(n *Node) bool {
		visited = append(visited, n.Name)
		return true
	})
	s.Equal([]string{"P", "B", "C", "A"}, visited)
}

func (s *WorldSuite) TestDestroy() {
	p := s.create("P")
	a, err := p.AddChild("A")
	s.Require().NoError(err)
	tag := &Tag{Label: "t"}
	s.Require().NoError(a.Attach(tag))
	ids := []snapshot.ObjectID{p.ID(), a.ID(), s.world.Identify(tag)}
	live := s.world.Live()

	s.Require().NoError(s.world.Destroy(p))
	for _, id := range ids {
		s.Nil(s.world.Resolve(id))
	}
	s.True(a.Destroyed())
	s.Equal(live-5, s.world.Live())
	s.Error(a.Attach(&Tag{}))
	s.NoError(s.world.Destroy(p))
}

func (s *WorldSuite) TestUnloadedContainer() {
	n := s.create("A")
	id := n.ID()
	s.Require().NoError(s.world.Unload(scene))
	s.False(s.world.ContainerLoaded(scene))
	s.Nil(s.world.Resolve(id))
	_, err := s.world.CreateNode(scene, "B")
	s.ErrorIs(err, merr.ErrContainerAbsent)

	s.Require().NoError(s.world.Load(scene))
	s.Same(n, s.world.Resolve(id))
	s.ErrorIs(s.world.Load("nope"), merr.ErrContainerAbsent)
}

func (s *WorldSuite) TestDirty() {
	s.False(s.world.ContainerDirty(scene))
	s.world.MarkContainerDirty(scene)
	s.True(s.world.ContainerDirty(scene))
	s.world.ClearDirty(scene)
	s.False(s.world.ContainerDirty(scene))
}

func (s *WorldSuite) TestSnapshots() {
	n := s.create("A")
	n.Active = false
	data, err := n.Snapshot()
	s.Require().NoError(err)

	m := s.create("")
	s.Require().NoError(m.Restore(data))
	s.Equal("A", m.Name)
	s.False(m.Active)
	s.Error(m.Restore([]byte("{")))

	link := &Link{Label: "x", From: n}
	data, err = link.Snapshot()
	s.Require().NoError(err)
	s.JSONEq(`{"label":"x"}`, string(data))
}

func (s *WorldSuite) TestRegistryFields() {
	r := Registry()
	bt, err := r.Lookup(LinkType)
	s.Require().NoError(err)
	s.Equal([]string{"From", "To"}, bt.FieldNames())
	tr, err := r.Lookup(TransformType)
	s.Require().NoError(err)
	s.True(tr.Intrinsic())
	s.Len(r.Types(), 5)
}

func (s *WorldSuite) TestMarked() {
	p := s.create("P")
	a, err := p.AddChild("A")
	s.Require().NoError(err)
	s.Require().NoError(p.Attach(&Persist{Enabled: true}))
	s.Require().NoError(a.Attach(&Persist{}))

	other := "scenes/other.scene"
	s.world.AddContainer(other)
	b, err := s.world.CreateNode(other, "B")
	s.Require().NoError(err)
	s.Require().NoError(b.Attach(&Persist{Enabled: true}))

	s.Equal([]snapshot.Node{b, p, a}, s.world.Marked())
	s.True(IsMarked(p))
	s.False(IsMarked(a))
	s.False(IsMarked(nil))

	s.Require().NoError(s.world.Unload(other))
	s.Equal([]snapshot.Node{p, a}, s.world.Marked())
}

func (s *WorldSuite) TestRemoveMarkers() {
	p := s.create("P")
	s.Require().NoError(p.Attach(&Persist{Enabled: true}))
	s.Require().NoError(p.Attach(&Tag{Label: "keep"}))
	a, err := p.AddChild("A")
	s.Require().NoError(err)
	marker := &Persist{}
	s.Require().NoError(a.Attach(marker))
	markerID := s.world.Identify(marker)

	other := "scenes/other.scene"
	s.world.AddContainer(other)
	b, err := s.world.CreateNode(other, "B")
	s.Require().NoError(err)
	s.Require().NoError(b.Attach(&Persist{Enabled: true}))
	s.Require().NoError(s.world.Unload(other))

	s.Equal(2, s.world.RemoveMarkers())
	s.Empty(s.world.Marked())
	s.True(s.world.ContainerDirty(scene))
	s.False(s.world.ContainerDirty(other))
	s.Nil(s.world.Resolve(markerID))
	s.Nil(marker.Owner())
	s.Len(p.Bags(), 2)
	_, ok := BagOf[*Tag](p)
	s.True(ok)

	s.Require().NoError(s.world.Load(other))
	s.Equal([]snapshot.Node{b}, s.world.Marked())
	s.Equal(1, s.world.RemoveMarkers())
}

func TestWorld(t *testing.T) {
	suite.Run(t, new(WorldSuite))
}
