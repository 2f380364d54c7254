package engine

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testScope() *Scope {
	exec := NewScope(map[string]any{
		"inputs": map[string]any{
			"with-string": "myString",
			"count":       42,
			"list":        []any{"a", "b"},
		},
		"outputs": map[string]any{
			"1-return": map[string]any{"value": "first"},
		},
	}, nil)
	include := NewScope(map[string]any{
		"outputs": map[string]any{
			"args": map[string]any{"my-forward": "myString"},
		},
	}, exec)
	return NewScope(map[string]any{"task": map[string]any{"id": "test"}}, include)
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{"inputs.name", []string{"inputs", "name"}},
		{" inputs.with-string ", []string{"inputs", "with-string"}},
		{"parent.outputs.args['my-forward']", []string{"parent", "outputs", "args", "my-forward"}},
		{`outputs["1-return"].value`, []string{"outputs", "1-return", "value"}},
		{"inputs.list[1]", []string{"inputs", "list", "1"}},
		{"outputs.1-return.value", []string{"outputs", "1-return", "value"}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := ParsePath(tt.expr)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, p.Keys()); diff != "" {
				t.Errorf("segments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParsePath_Errors(t *testing.T) {
	for _, expr := range []string{"", "1abc", "a.", "a[", "a['b'", "a['b'x", "a[-1]", "a b", "a..b"} {
		t.Run(expr, func(t *testing.T) {
			if _, err := ParsePath(expr); !errors.Is(err, ErrExpressionSyntax) {
				t.Errorf("expected ErrExpressionSyntax, got %v", err)
			}
		})
	}
}

func TestEvaluator_Resolve(t *testing.T) {
	e := NewEvaluator()
	scope := testScope()

	tests := []struct {
		name string
		text string
		want any
	}{
		{"plain text", "hello", "hello"},
		{"typed single span", "{{ inputs.count }}", 42},
		{"single span with spaces", "  {{inputs.count}} ", 42},
		{"concatenation", "count={{ inputs.count }}!", "count=42!"},
		{"two spans", "{{ inputs.with-string }}/{{ inputs.count }}", "myString/42"},
		{"slice as json", "list: {{ inputs.list }}", `list: ["a","b"]`},
		{"typed slice", "{{ inputs.list }}", []any{"a", "b"}},
		{"index", "{{ inputs.list[0] }}", "a"},
		{"parent args", "{{ parent.outputs.args['my-forward'] }}", "myString"},
		{"walks outward", "{{ inputs.with-string }}", "myString"},
		{"skips shadowing scope", "{{ outputs['1-return'].value }}", "first"},
		{"own scope", "{{ task.id }}", "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Resolve(tt.text, scope)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestEvaluator_Unresolved(t *testing.T) {
	e := NewEvaluator()
	scope := testScope()

	tests := []struct {
		text string
		path string
	}{
		{"{{ inputs.missing }}", "inputs.missing"},
		{"x {{ outputs.nope.value }}", "outputs.nope.value"},
		{"{{ inputs.list[5] }}", "inputs.list[5]"},
		// parent из execution scope указывает в никуда
		{"{{ parent.parent.parent.inputs.count }}", "parent.parent.parent.inputs.count"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := e.Resolve(tt.text, scope)

			var ub *UnresolvedBindingError
			if !errors.As(err, &ub) {
				t.Fatalf("expected UnresolvedBindingError, got %v", err)
			}
			if ub.Path != tt.path {
				t.Errorf("Path = %q, want %q", ub.Path, tt.path)
			}
			if !errors.Is(err, ErrUnresolvedBinding) {
				t.Error("should wrap ErrUnresolvedBinding")
			}
		})
	}
}

func TestEvaluator_ParentJumpsOneLevel(t *testing.T) {
	e := NewEvaluator()

	// args есть только на уровне include; во внутреннем scope тоже есть outputs
	outer := NewScope(map[string]any{"outputs": map[string]any{"args": map[string]any{"x": "outer"}}}, nil)
	inner := NewScope(map[string]any{"outputs": map[string]any{"args": map[string]any{"x": "inner"}}}, outer)

	got, err := e.Resolve("{{ parent.outputs.args.x }}", inner)
	if err != nil {
		t.Fatal(err)
	}
	if got != "outer" {
		t.Errorf("got %v, want outer", got)
	}

	got, err = e.Resolve("{{ outputs.args.x }}", inner)
	if err != nil {
		t.Fatal(err)
	}
	if got != "inner" {
		t.Errorf("got %v, want inner", got)
	}
}

func TestEvaluator_Deterministic(t *testing.T) {
	e := NewEvaluator()
	scope := testScope()
	text := "{{ inputs.with-string }} {{ inputs.list }} {{ parent.outputs.args }}"

	first, err := e.Resolve(text, scope)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		got, _ := e.Resolve(text, scope)
		if got != first {
			t.Fatalf("iteration %d: %v != %v", i, got, first)
		}
	}
}

func TestEvaluator_ResolveParams(t *testing.T) {
	e := NewEvaluator()
	params := map[string]any{
		"message": "{{ inputs.with-string }}",
		"nested": map[string]any{
			"items": []any{"{{ inputs.count }}", 7, true},
		},
		"headers": map[string]string{"X-Id": "{{ task.id }}"},
	}

	got, err := e.ResolveParams(params, testScope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{
		"message": "myString",
		"nested": map[string]any{
			"items": []any{42, 7, true},
		},
		"headers": map[string]any{"X-Id": "test"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ResolveParams mismatch (-want +got):\n%s", diff)
	}

	// Исходные params не изменены
	if params["message"] != "{{ inputs.with-string }}" {
		t.Error("params mutated")
	}
}

func TestEvaluator_SyntaxError(t *testing.T) {
	_, err := NewEvaluator().Resolve("hello {{ inputs.x", testScope())
	if !errors.Is(err, ErrExpressionSyntax) {
		t.Errorf("expected ErrExpressionSyntax, got %v", err)
	}
}

func TestReferences(t *testing.T) {
	refs, err := References("{{ outputs.a.value }} and {{ parent.outputs.args['x'] }}")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range refs {
		got = append(got, r.String())
	}
	want := []string{"outputs.a.value", "parent.outputs.args['x']"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("References mismatch (-want +got):\n%s", diff)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{42, "42"},
		{float64(1.5), "1.5"},
		{float64(3), "3"},
		{true, "true"},
		{map[string]any{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
