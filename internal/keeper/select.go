package keeper

import (
	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
)

// MarkerFunc 判断节点是否挂有启用的保存标记。
type MarkerFunc func(node snapshot.Node) bool

// RejectReason 说明候选节点不能作为保存根的原因。
type RejectReason string

const (
	RejectDisabled       RejectReason = "marker_disabled"
	RejectMarkedAncestor RejectReason = "marked_ancestor"
	RejectStatic         RejectReason = "static_descendant"
)

// Rejection 是一个被拒绝的候选节点。
type Rejection struct {
	Node   snapshot.Node
	Reason RejectReason
}

// Select 从候选节点中选出有效的保存根：标记启用、没有标记启用的祖先、子树中没有 static 节点。
//
// 有效根按候选顺序返回。
func Select(candidates []snapshot.Node, isMarked MarkerFunc) ([]snapshot.Node, []Rejection) {
	var (
		selected []snapshot.Node
		rejected []Rejection
	)
	for _, n := range candidates {
		if n == nil {
			continue
		}
		var reason RejectReason
		switch {
		case !isMarked(n):
			reason = RejectDisabled
		case hasMarkedAncestor(n, isMarked):
			reason = RejectMarkedAncestor
		case hasStatic(n):
			reason = RejectStatic
		default:
			selected = append(selected, n)
			continue
		}
		rejected = append(rejected, Rejection{Node: n, Reason: reason})
	}
	return selected, rejected
}

func hasMarkedAncestor(n snapshot.Node, isMarked MarkerFunc) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if isMarked(p) {
			return true
		}
	}
	return false
}

func hasStatic(n snapshot.Node) bool {
	if n.IsStatic() {
		return true
	}
	for _, child := range n.Children() {
		if hasStatic(child) {
			return true
		}
	}
	return false
}
