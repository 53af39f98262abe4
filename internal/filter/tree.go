package filter

import (
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/timeline"
)

// CheckState is the tri-state check box of a tree node.
type CheckState string

const (
	Checked       CheckState = "checked"
	Unchecked     CheckState = "unchecked"
	Indeterminate CheckState = "indeterminate"
)

// Level of a node in the process -> step -> part id tree.
type Level string

const (
	LevelProcess Level = "process"
	LevelStep    Level = "step"
	LevelPart    Level = "part"
)

// Node is one node of the interlock group tree. Leaves lists every group key
// under the node; a part node has exactly one.
type Node struct {
	ID       string
	Name     string
	Level    Level
	Count    int
	Leaves   []models.GroupKey
	Children []*Node
}

// BuildTree nests groups by process and step, keeping the group order.
func BuildTree(groups []timeline.LaneGroup) []*Node {
	var roots []*Node
	processes := make(map[string]*Node)
	steps := make(map[string]*Node)

	for _, g := range groups {
		p, ok := processes[g.Process]
		if !ok {
			p = &Node{ID: "process:" + g.Process, Name: g.Process, Level: LevelProcess}
			processes[g.Process] = p
			roots = append(roots, p)
		}
		stepID := "step:" + g.Process + "/" + g.Step
		s, ok := steps[stepID]
		if !ok {
			s = &Node{ID: stepID, Name: g.Step, Level: LevelStep}
			steps[stepID] = s
			p.Children = append(p.Children, s)
		}
		leaf := &Node{
			ID:     string(g.Key),
			Name:   g.PartID,
			Level:  LevelPart,
			Count:  g.Count,
			Leaves: []models.GroupKey{g.Key},
		}
		s.Children = append(s.Children, leaf)
		s.Leaves = append(s.Leaves, g.Key)
		s.Count += g.Count
		p.Leaves = append(p.Leaves, g.Key)
		p.Count += g.Count
	}
	return roots
}

// Universe returns every group key in order.
func Universe(groups []timeline.LaneGroup) []models.GroupKey {
	keys := make([]models.GroupKey, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	return keys
}

// CheckState is checked when every leaf is selected, unchecked when none is,
// indeterminate otherwise.
func (n *Node) CheckState(sel GroupSelection) CheckState {
	selected := 0
	for _, k := range n.Leaves {
		if sel.Contains(k) {
			selected++
		}
	}
	switch {
	case len(n.Leaves) > 0 && selected == len(n.Leaves):
		return Checked
	case selected == 0:
		return Unchecked
	default:
		return Indeterminate
	}
}

// ToggleNode turns every leaf under n off when n is checked, on otherwise.
func ToggleNode(n *Node, sel GroupSelection, universe []models.GroupKey) GroupSelection {
	return sel.SetKeys(n.Leaves, n.CheckState(sel) != Checked, universe)
}

// FindNode returns the node with id, or nil.
func FindNode(roots []*Node, id string) *Node {
	for _, n := range roots {
		if n.ID == id {
			return n
		}
		if found := FindNode(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}

// NodeView is a node with its check state, for clients.
type NodeView struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Level    Level      `json:"level"`
	Count    int        `json:"count"`
	State    CheckState `json:"state"`
	Children []NodeView `json:"children,omitempty"`
}

// Annotate attaches check states to the tree.
func Annotate(roots []*Node, sel GroupSelection) []NodeView {
	out := make([]NodeView, 0, len(roots))
	for _, n := range roots {
		out = append(out, NodeView{
			ID:       n.ID,
			Name:     n.Name,
			Level:    n.Level,
			Count:    n.Count,
			State:    n.CheckState(sel),
			Children: Annotate(n.Children, sel),
		})
	}
	return out
}
