package tasklist

import (
	"container/heap"
	"fmt"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// EventKind identifies one of the two events every task contributes to the graph
type EventKind int

const (
	StartEvent EventKind = iota
	FinishEvent
)

func (k EventKind) String() string {
	if k == StartEvent {
		return "start"
	}
	return "finish"
}

// Graph is the event graph of a task list. Node 2*i is the start of the
// i-th task and node 2*i+1 its finish. Edges:
//
//	start(t)  -> finish(t)
//	start(s)  -> start(c)   for every child c of story s
//	finish(c) -> finish(s)  for every child c of story s
//	finish(p) -> start(x)   for every relation p -> x
type Graph struct {
	tasks    []*types.Task
	incoming [][]int
	outgoing [][]int
}

// BuildGraph expands the tasks (in list order) into their event graph
func BuildGraph(tasks []*types.Task) (*Graph, error) {
	g := &Graph{
		tasks:    tasks,
		incoming: make([][]int, 2*len(tasks)),
		outgoing: make([][]int, 2*len(tasks)),
	}
	pos := make(map[int64]int, len(tasks))
	for i, t := range tasks {
		pos[t.ID] = i
	}

	for i, t := range tasks {
		g.edge(startNode(i), finishNode(i))
		if t.ParentID != nil {
			p, ok := pos[*t.ParentID]
			if !ok {
				return nil, fmt.Errorf("task %d references missing parent %d: %w", t.ID, *t.ParentID, ErrNotFound)
			}
			g.edge(startNode(p), startNode(i))
			g.edge(finishNode(i), finishNode(p))
		}
		for _, r := range t.Predecessors {
			p, ok := pos[r.PredecessorID]
			if !ok {
				return nil, fmt.Errorf("task %d depends on missing task %d: %w", t.ID, r.PredecessorID, ErrNotFound)
			}
			g.edge(finishNode(p), startNode(i))
		}
	}
	return g, nil
}

func startNode(i int) int  { return 2 * i }
func finishNode(i int) int { return 2*i + 1 }

func (g *Graph) edge(from, to int) {
	g.outgoing[from] = append(g.outgoing[from], to)
	g.incoming[to] = append(g.incoming[to], from)
}

// Len returns the number of nodes
func (g *Graph) Len() int { return len(g.incoming) }

// Task returns the task a node belongs to
func (g *Graph) Task(node int) *types.Task { return g.tasks[node/2] }

// Kind returns whether the node is a start or a finish event
func (g *Graph) Kind(node int) EventKind { return EventKind(node % 2) }

// Incoming returns the nodes with an edge into node
func (g *Graph) Incoming(node int) []int { return g.incoming[node] }

// StartOf returns the start node of the task at list position i
func (g *Graph) StartOf(i int) int { return startNode(i) }

// FinishOf returns the finish node of the task at list position i
func (g *Graph) FinishOf(i int) int { return finishNode(i) }

// TopologicalOrder returns the nodes so that every edge points forward.
// Among ready nodes the lowest index comes first, so the order follows the
// list as closely as the edges allow. A cycle yields ErrDependencyCycle.
func (g *Graph) TopologicalOrder() ([]int, error) {
	indegree := make([]int, g.Len())
	for n := range g.incoming {
		indegree[n] = len(g.incoming[n])
	}

	ready := &nodeHeap{}
	for n, d := range indegree {
		if d == 0 {
			*ready = append(*ready, n)
		}
	}
	heap.Init(ready)

	order := make([]int, 0, g.Len())
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		order = append(order, n)
		for _, m := range g.outgoing[n] {
			indegree[m]--
			if indegree[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}

	if len(order) != g.Len() {
		for n, d := range indegree {
			if d > 0 {
				return nil, fmt.Errorf("%w at %s of task %d", ErrDependencyCycle, g.Kind(n), g.Task(n).ID)
			}
		}
		return nil, ErrDependencyCycle
	}
	return order, nil
}

// Graph returns the event graph of the list
func (l *List) Graph() *Graph {
	g, _ := BuildGraph(l.tasks)
	return g
}

type nodeHeap []int

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
