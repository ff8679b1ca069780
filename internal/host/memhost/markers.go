package memhost

import (
	"sort"

	"github.com/samber/lo"

	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
)

// IsMarked 判断节点是否挂有启用的 Persist 标记。
func IsMarked(node snapshot.Node) bool {
	n, ok := node.(*Node)
	if !ok || n == nil {
		return false
	}
	p, ok := BagOf[*Persist](n)
	return ok && p.Enabled
}

// Marked 返回已加载容器中所有挂有 Persist 标记的节点（不论是否启用），
// 按容器路径排序、容器内按先序排列。
func (w *World) Marked() []snapshot.Node {
	paths := lo.Keys(w.containers)
	sort.Strings(paths)

	var out []snapshot.Node
	for _, path := range paths {
		if !w.containers[path].loaded {
			continue
		}
		w.Walk(path, func(n *Node) bool {
			if _, ok := BagOf[*Persist](n); ok {
				out = append(out, n)
			}
			return true
		})
	}
	return out
}

// RemoveMarkers 移除已加载容器中全部 Persist 标记，并将受影响的容器置脏。
// 返回移除的标记个数。
func (w *World) RemoveMarkers() int {
	removed := 0
	for _, node := range w.Marked() {
		n := node.(*Node)
		kept := n.bags[:0]
		for _, bag := range n.bags {
			p, ok := bag.(*Persist)
			if !ok {
				kept = append(kept, bag)
				continue
			}
			w.unregister(p)
			p.setOwner(nil)
			removed++
		}
		clear(n.bags[len(kept):])
		n.bags = kept
		w.MarkContainerDirty(n.container.Path)
	}
	return removed
}
