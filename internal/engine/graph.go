package engine

import (
	"github.com/shaiso/Stencil/internal/domain"
)

// Frame — включение шаблона, через которое узел попал в граф.
//
// Frames образуют цепочку от самого внутреннего включения к flow.
// Runner превращает каждый Frame в scope с outputs.args, чей parent —
// scope охватывающего уровня.
type Frame struct {
	// IncludeID — ID задачи-включения.
	IncludeID string

	// Template — ключ включённого шаблона.
	Template domain.TemplateKey

	// Args — forwarded args: имя → выражение в scope охватывающего уровня.
	Args map[string]string

	// Parent — охватывающее включение (nil для включений в самом flow).
	Parent *Frame
}

// Path возвращает ID включений от внешнего к внутреннему.
func (f *Frame) Path() []string {
	var path []string
	for fr := f; fr != nil; fr = fr.Parent {
		path = append([]string{fr.IncludeID}, path...)
	}
	return path
}

// Contains проверяет, проходит ли цепочка через включение includeID.
func (f *Frame) Contains(includeID string) bool {
	for fr := f; fr != nil; fr = fr.Parent {
		if fr.IncludeID == includeID {
			return true
		}
	}
	return false
}

// Node — узел разрешённого графа.
type Node struct {
	// ID — идентификатор задачи, уникальный в пределах графа.
	ID string

	// Task — определение задачи. Для синтетического узла — включение,
	// которое не удалось развернуть.
	Task domain.TaskDef

	// Frame — цепочка включений (nil для задач самого flow).
	Frame *Frame

	// Synthetic — узел представляет неудавшееся включение и никогда
	// не выполняется: его TaskRun сразу создаётся в FAILED.
	Synthetic bool

	// Err — причина неудачи синтетического узла.
	Err error

	// DependsOn — ID узлов, которые должны завершиться успешно до запуска.
	// Всегда ссылаются на более ранние узлы.
	DependsOn []string
}

// Graph — разрешённый граф задач flow.
//
// Nodes упорядочены в порядке разрешения; это же порядок запуска
// при последовательном выполнении.
type Graph struct {
	// Nodes — узлы в порядке разрешения.
	Nodes []*Node

	// Failure — ошибка разрешения (не найден шаблон, цикл, конфликт ID).
	// Если не nil, последний узел графа синтетический.
	Failure error

	index map[string]*Node
}

func newGraph() *Graph {
	return &Graph{
		Nodes: make([]*Node, 0),
		index: make(map[string]*Node),
	}
}

// add добавляет узел в конец графа.
func (g *Graph) add(n *Node) {
	g.Nodes = append(g.Nodes, n)
	if _, exists := g.index[n.ID]; !exists {
		g.index[n.ID] = n
	}
}

// Node возвращает узел по ID.
func (g *Graph) Node(id string) *Node {
	return g.index[id]
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// Failed возвращает true, если разрешение завершилось синтетическим узлом.
func (g *Graph) Failed() bool {
	return g.Failure != nil
}

// SyntheticNode возвращает синтетический узел графа или nil.
func (g *Graph) SyntheticNode() *Node {
	if g.Failure == nil || len(g.Nodes) == 0 {
		return nil
	}
	if n := g.Nodes[len(g.Nodes)-1]; n.Synthetic {
		return n
	}
	return nil
}

// ReadyNodes возвращает узлы, готовые к запуску, в порядке графа.
//
// Узел готов, если:
//   - он ещё не запущен (нет в started)
//   - все его зависимости завершились успешно (есть в succeeded)
//
// Синтетический узел готов, когда все предыдущие узлы успешны.
// Если этого уже не случится, runner запускает его отдельно через
// SyntheticNode.
func (g *Graph) ReadyNodes(started, succeeded map[string]bool) []*Node {
	ready := make([]*Node, 0)
	for _, node := range g.Nodes {
		if started[node.ID] {
			continue
		}

		allDepsSucceeded := true
		for _, dep := range node.DependsOn {
			if !succeeded[dep] {
				allDepsSucceeded = false
				break
			}
		}
		if allDepsSucceeded {
			ready = append(ready, node)
		}
	}
	return ready
}

// link вычисляет зависимости узлов.
//
// Источники:
//   - явный dependsOn (ID задачи или ID включения — тогда все его узлы)
//   - ссылки outputs.<id> в params и в args всех охватывающих включений
//
// Учитываются только более ранние узлы. Синтетический узел зависит
// от всех предыдущих.
func (g *Graph) link() {
	for i, node := range g.Nodes {
		earlier := g.Nodes[:i]

		if node.Synthetic {
			deps := make([]string, 0, len(earlier))
			for _, e := range earlier {
				deps = append(deps, e.ID)
			}
			node.DependsOn = deps
			continue
		}

		wanted := make(map[string]bool)
		for _, dep := range node.Task.DependsOn {
			wanted[dep] = true
		}
		for _, ref := range nodeRefs(node) {
			wanted[ref] = true
		}

		deps := make([]string, 0)
		for _, e := range earlier {
			if wanted[e.ID] || frameMatches(e.Frame, wanted) {
				deps = append(deps, e.ID)
			}
		}
		node.DependsOn = deps
	}
}

func frameMatches(f *Frame, wanted map[string]bool) bool {
	for fr := f; fr != nil; fr = fr.Parent {
		if wanted[fr.IncludeID] {
			return true
		}
	}
	return false
}

// nodeRefs возвращает ID задач, на outputs которых ссылается узел.
func nodeRefs(node *Node) []string {
	var paths []Path
	if refs, err := ValueReferences(node.Task.Params); err == nil {
		paths = append(paths, refs...)
	}
	for fr := node.Frame; fr != nil; fr = fr.Parent {
		if refs, err := ValueReferences(fr.Args); err == nil {
			paths = append(paths, refs...)
		}
	}

	var ids []string
	for _, p := range paths {
		if id, ok := outputsTarget(p); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// outputsTarget извлекает <id> из путей вида [parent.]*outputs.<id>...
func outputsTarget(p Path) (string, bool) {
	segs := p.Segments
	for len(segs) > 0 && !segs[0].IsIndex && segs[0].Key == ParentKey {
		segs = segs[1:]
	}
	if len(segs) < 2 || segs[0].IsIndex || segs[0].Key != "outputs" || segs[1].IsIndex {
		return "", false
	}
	return segs[1].Key, true
}
