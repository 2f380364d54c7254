package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/registry"
)

const ns = "io.stencil.tests"

func newTemplates(t *testing.T, templates ...*domain.Template) *registry.Memory {
	t.Helper()
	m := registry.NewMemory()
	for _, tmpl := range templates {
		if err := m.Store(context.Background(), tmpl); err != nil {
			t.Fatalf("Store(%s): %v", tmpl.Key(), err)
		}
	}
	return m
}

func logTemplate(id string, n int) *domain.Template {
	tmpl := &domain.Template{ID: id, Namespace: ns}
	for i := 0; i < n; i++ {
		tmpl.Tasks = append(tmpl.Tasks, domain.Plain(fmt.Sprintf("%s-%d", id, i), "log",
			map[string]any{"message": "{{ parent.outputs.args['x'] }}"}))
	}
	return tmpl
}

func nodeIDs(g *Graph) []string {
	ids := make([]string, 0, g.Size())
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestResolve_PlainOnly(t *testing.T) {
	flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("a", "return", nil),
		domain.Plain("b", "return", nil),
	}}

	g := NewResolver(newTemplates(t), nil).Resolve(context.Background(), flow)

	if g.Failed() {
		t.Fatalf("unexpected failure: %v", g.Failure)
	}
	if diff := cmp.Diff([]string{"a", "b"}, nodeIDs(g)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
	if g.Node("a").Frame != nil {
		t.Error("top-level task should have no frame")
	}
}

func TestResolve_TemplateWithNTasks(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			templates := newTemplates(t, logTemplate("tmpl", n))
			flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
				domain.Include("inc", ns, "tmpl", map[string]string{"x": "{{ inputs.y }}"}),
			}}

			g := NewResolver(templates, nil).Resolve(context.Background(), flow)

			if g.Failed() {
				t.Fatalf("unexpected failure: %v", g.Failure)
			}
			if g.Size() != n {
				t.Fatalf("Size() = %d, want %d", g.Size(), n)
			}
			for _, node := range g.Nodes {
				if node.Frame == nil || node.Frame.IncludeID != "inc" {
					t.Errorf("node %s: frame = %+v", node.ID, node.Frame)
				}
				if node.Frame.Args["x"] != "{{ inputs.y }}" {
					t.Errorf("node %s: args not carried", node.ID)
				}
			}
		})
	}
}

func TestResolve_SplicesInPlace(t *testing.T) {
	templates := newTemplates(t, logTemplate("tmpl", 2))
	flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("1-return", "return", nil),
		domain.Include("2-template", ns, "tmpl", nil),
		domain.Plain("3-optional", "log", nil),
	}}

	g := NewResolver(templates, nil).Resolve(context.Background(), flow)

	want := []string{"1-return", "tmpl-0", "tmpl-1", "3-optional"}
	if diff := cmp.Diff(want, nodeIDs(g)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_NestedTemplates(t *testing.T) {
	inner := logTemplate("inner", 1)
	outer := &domain.Template{ID: "outer", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("outer-first", "log", nil),
		domain.Include("inner-inc", ns, "inner", map[string]string{"x": "{{ parent.outputs.args['y'] }}"}),
	}}
	flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Include("outer-inc", ns, "outer", map[string]string{"y": "{{ inputs.v }}"}),
	}}

	g := NewResolver(newTemplates(t, inner, outer), nil).Resolve(context.Background(), flow)

	if g.Failed() {
		t.Fatalf("unexpected failure: %v", g.Failure)
	}
	if diff := cmp.Diff([]string{"outer-first", "inner-0"}, nodeIDs(g)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}

	leaf := g.Node("inner-0")
	if diff := cmp.Diff([]string{"outer-inc", "inner-inc"}, leaf.Frame.Path()); diff != "" {
		t.Errorf("frame path mismatch (-want +got):\n%s", diff)
	}
	if leaf.Frame.Parent.Template.ID != "outer" {
		t.Errorf("parent frame template = %s, want outer", leaf.Frame.Parent.Template)
	}
}

func TestResolve_TemplateNotFound(t *testing.T) {
	flow := &domain.Flow{ID: "with-failed-template", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Include("template", ns, "invalid", nil),
		domain.Plain("after-1", "log", nil),
		domain.Plain("after-2", "log", nil),
	}}

	g := NewResolver(newTemplates(t), nil).Resolve(context.Background(), flow)

	if g.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", g.Size())
	}
	node := g.Nodes[0]
	if !node.Synthetic || node.ID != "template" {
		t.Errorf("expected synthetic node 'template', got %+v", node)
	}
	if !errors.Is(g.Failure, registry.ErrTemplateNotFound) {
		t.Errorf("Failure = %v, want ErrTemplateNotFound", g.Failure)
	}
	want := "Can't find flow template 'io.stencil.tests.invalid'"
	if node.Err.Error() != want {
		t.Errorf("message = %q, want %q", node.Err.Error(), want)
	}
}

func TestResolve_NotFoundDeepHaltsAllLevels(t *testing.T) {
	// outer: [o1, include missing, o3]; flow: [f1, include outer, f3]
	outer := &domain.Template{ID: "outer", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("o1", "log", nil),
		domain.Include("missing-inc", ns, "missing", nil),
		domain.Plain("o3", "log", nil),
	}}
	flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("f1", "log", nil),
		domain.Include("outer-inc", ns, "outer", nil),
		domain.Plain("f3", "log", nil),
	}}

	g := NewResolver(newTemplates(t, outer), nil).Resolve(context.Background(), flow)

	want := []string{"f1", "o1", "missing-inc"}
	if diff := cmp.Diff(want, nodeIDs(g)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}

	synthetic := g.Node("missing-inc")
	if diff := cmp.Diff([]string{"f1", "o1"}, synthetic.DependsOn); diff != "" {
		t.Errorf("synthetic deps mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_CycleDetected(t *testing.T) {
	a := &domain.Template{ID: "a", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Include("to-b", ns, "b", nil),
	}}
	b := &domain.Template{ID: "b", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("b-task", "log", nil),
		domain.Include("to-a", ns, "a", nil),
	}}
	flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Include("start", ns, "a", nil),
	}}

	g := NewResolver(newTemplates(t, a, b), nil).Resolve(context.Background(), flow)

	var cycle *CycleDetectedError
	if !errors.As(g.Failure, &cycle) {
		t.Fatalf("expected CycleDetectedError, got %v", g.Failure)
	}
	want := "Cycle detected in flow templates: io.stencil.tests.a -> io.stencil.tests.b -> io.stencil.tests.a"
	if cycle.Error() != want {
		t.Errorf("message = %q, want %q", cycle.Error(), want)
	}
	if diff := cmp.Diff([]string{"b-task", "to-a"}, nodeIDs(g)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_DuplicateIDAfterSplice(t *testing.T) {
	tmpl := &domain.Template{ID: "t", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("a", "log", nil),
	}}
	flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("a", "log", nil),
		domain.Include("inc", ns, "t", nil),
	}}

	g := NewResolver(newTemplates(t, tmpl), nil).Resolve(context.Background(), flow)

	if !errors.Is(g.Failure, ErrDuplicateTaskID) {
		t.Fatalf("Failure = %v, want ErrDuplicateTaskID", g.Failure)
	}
	if g.Size() != 2 || !g.Nodes[1].Synthetic || g.Nodes[1].ID != "inc" {
		t.Errorf("expected [a, inc(synthetic)], got %v", nodeIDs(g))
	}
	if g.SyntheticNode() != g.Nodes[1] {
		t.Errorf("SyntheticNode() = %+v, want inc", g.SyntheticNode())
	}
}

func TestGraph_SyntheticNodeAbsent(t *testing.T) {
	flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("a", "log", nil),
	}}

	g := NewResolver(newTemplates(t), nil).Resolve(context.Background(), flow)

	if g.SyntheticNode() != nil {
		t.Errorf("SyntheticNode() = %+v, want nil", g.SyntheticNode())
	}
}

func TestResolve_Idempotent(t *testing.T) {
	templates := newTemplates(t, logTemplate("tmpl", 3))
	flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("first", "return", map[string]any{"value": "{{ inputs.x }}"}),
		domain.Include("inc", ns, "tmpl", map[string]string{"x": "{{ outputs.first.value }}"}),
		domain.Include("broken", ns, "missing", nil),
	}}
	r := NewResolver(templates, nil)

	first := r.Resolve(context.Background(), flow)
	second := r.Resolve(context.Background(), flow)

	opts := cmp.Options{
		cmpopts.IgnoreUnexported(Graph{}),
		cmp.Comparer(func(a, b error) bool {
			if a == nil || b == nil {
				return a == b
			}
			return a.Error() == b.Error()
		}),
	}
	if diff := cmp.Diff(first, second, opts); diff != "" {
		t.Errorf("resolution not idempotent (-first +second):\n%s", diff)
	}
}

func TestResolve_DoesNotMutateFlow(t *testing.T) {
	templates := newTemplates(t, logTemplate("tmpl", 1))
	flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Include("inc", ns, "tmpl", map[string]string{"x": "1"}),
	}}
	before := flow.Clone()

	g := NewResolver(templates, nil).Resolve(context.Background(), flow)
	g.Nodes[0].Frame.Args["x"] = "changed"

	if diff := cmp.Diff(before, flow); diff != "" {
		t.Errorf("flow mutated (-before +after):\n%s", diff)
	}
}

func TestGraph_DataDependencies(t *testing.T) {
	tmpl := &domain.Template{ID: "t", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("t-log", "log", map[string]any{"message": "{{ parent.outputs.args['v'] }}"}),
	}}
	flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("a", "return", map[string]any{"value": 1}),
		domain.Plain("b", "return", map[string]any{"value": 2}),
		domain.Include("inc", ns, "t", map[string]string{"v": "{{ outputs.a.value }}"}),
		domain.Plain("c", "log", map[string]any{"message": "{{ outputs.b.value }}"}),
		{Kind: domain.TaskKindPlain, ID: "d", Type: "log", DependsOn: []string{"inc"}},
	}}

	g := NewResolver(newTemplates(t, tmpl), nil).Resolve(context.Background(), flow)

	tests := []struct {
		id   string
		want []string
	}{
		{"a", []string{}},
		{"b", []string{}},
		{"t-log", []string{"a"}},
		{"c", []string{"b"}},
		{"d", []string{"t-log"}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, g.Node(tt.id).DependsOn); diff != "" {
				t.Errorf("deps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGraph_ReadyNodes(t *testing.T) {
	flow := &domain.Flow{ID: "f", Namespace: ns, Tasks: []domain.TaskDef{
		domain.Plain("a", "return", nil),
		domain.Plain("b", "log", map[string]any{"message": "{{ outputs.a.value }}"}),
		domain.Plain("c", "return", nil),
	}}
	g := NewResolver(newTemplates(t), nil).Resolve(context.Background(), flow)

	ready := g.ReadyNodes(map[string]bool{}, map[string]bool{})
	var ids []string
	for _, n := range ready {
		ids = append(ids, n.ID)
	}
	if diff := cmp.Diff([]string{"a", "c"}, ids); diff != "" {
		t.Errorf("initial ready mismatch (-want +got):\n%s", diff)
	}

	ready = g.ReadyNodes(map[string]bool{"a": true, "c": true}, map[string]bool{"a": true})
	if len(ready) != 1 || ready[0].ID != "b" {
		t.Errorf("expected [b], got %v", ready)
	}
}
