package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Stencil/internal/domain"
)

func knownTypes(t string) bool {
	switch t {
	case "log", "return", "delay", "http", "fail":
		return true
	}
	return false
}

func validFlow() *domain.Flow {
	optional := false
	return &domain.Flow{
		ID:        "with-template",
		Namespace: "io.stencil.tests",
		Inputs: []domain.InputDef{
			{Name: "with-string", Type: domain.InputTypeString},
			{Name: "with-optional", Type: domain.InputTypeString, Required: &optional},
		},
		Tasks: []domain.TaskDef{
			domain.Plain("1-return", "return", map[string]any{"value": "{{ inputs.with-string }}"}),
			domain.Include("2-template", "io.stencil.tests", "template",
				map[string]string{"my-forward": "{{ inputs.with-string }}"}),
			domain.Plain("3-optional", "log", map[string]any{"message": "{{ inputs.with-optional }}"}),
			domain.Plain("4-end", "return", map[string]any{"value": "done"}),
		},
		Triggers: []domain.Trigger{{ID: "nightly", Type: "schedule", Cron: "0 3 * * *"}},
	}
}

func TestValidate_EmptyTasks(t *testing.T) {
	tests := []struct {
		name string
		flow *domain.Flow
	}{
		{
			name: "nil flow",
			flow: nil,
		},
		{
			name: "empty tasks",
			flow: &domain.Flow{ID: "f", Namespace: "n", Tasks: []domain.TaskDef{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.flow, knownTypes)
			if !errors.Is(err, ErrEmptyTasks) {
				t.Errorf("expected ErrEmptyTasks, got %v", err)
			}
		})
	}
}

func TestValidate_ValidFlow(t *testing.T) {
	if err := Validate(validFlow(), knownTypes); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *domain.Flow)
		want   error
	}{
		{
			name:   "missing id",
			mutate: func(f *domain.Flow) { f.ID = "" },
			want:   ErrEmptyFlowID,
		},
		{
			name:   "empty task id",
			mutate: func(f *domain.Flow) { f.Tasks[0].ID = "" },
			want:   ErrEmptyTaskID,
		},
		{
			name:   "duplicate task id",
			mutate: func(f *domain.Flow) { f.Tasks[3].ID = "1-return" },
			want:   ErrDuplicateTaskID,
		},
		{
			name:   "include id collides",
			mutate: func(f *domain.Flow) { f.Tasks[2].ID = "2-template" },
			want:   ErrDuplicateTaskID,
		},
		{
			name:   "unknown type",
			mutate: func(f *domain.Flow) { f.Tasks[0].Type = "script" },
			want:   ErrUnknownTaskType,
		},
		{
			name:   "empty type",
			mutate: func(f *domain.Flow) { f.Tasks[0].Type = "" },
			want:   ErrUnknownTaskType,
		},
		{
			name:   "missing kind",
			mutate: func(f *domain.Flow) { f.Tasks[0].Kind = "" },
			want:   domain.ErrInvalidTaskKind,
		},
		{
			name:   "self dependency",
			mutate: func(f *domain.Flow) { f.Tasks[3].DependsOn = []string{"4-end"} },
			want:   ErrSelfDependency,
		},
		{
			name:   "forward dependency",
			mutate: func(f *domain.Flow) { f.Tasks[0].DependsOn = []string{"4-end"} },
			want:   ErrMissingDependency,
		},
		{
			name:   "unknown dependency",
			mutate: func(f *domain.Flow) { f.Tasks[3].DependsOn = []string{"nope"} },
			want:   ErrMissingDependency,
		},
		{
			name:   "incomplete template ref",
			mutate: func(f *domain.Flow) { f.Tasks[1].TemplateID = "" },
			want:   ErrEmptyTemplateRef,
		},
		{
			name:   "bad expression in params",
			mutate: func(f *domain.Flow) { f.Tasks[0].Params["value"] = "{{ inputs." },
			want:   ErrExpressionSyntax,
		},
		{
			name:   "bad expression in args",
			mutate: func(f *domain.Flow) { f.Tasks[1].Args["my-forward"] = "{{ [0] }}" },
			want:   ErrExpressionSyntax,
		},
		{
			name:   "duplicate input",
			mutate: func(f *domain.Flow) { f.Inputs[1].Name = "with-string" },
			want:   ErrInvalidInputDef,
		},
		{
			name:   "unknown input type",
			mutate: func(f *domain.Flow) { f.Inputs[0].Type = "DATE" },
			want:   ErrInvalidInputDef,
		},
		{
			name:   "trigger without cron",
			mutate: func(f *domain.Flow) { f.Triggers[0].Cron = "" },
			want:   ErrInvalidTrigger,
		},
		{
			name:   "unsupported trigger",
			mutate: func(f *domain.Flow) { f.Triggers[0].Type = "webhook" },
			want:   ErrInvalidTrigger,
		},
		{
			name:   "negative parallelism",
			mutate: func(f *domain.Flow) { f.Parallelism = -1 },
			want:   ErrInvalidParallelism,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := validFlow()
			tt.mutate(flow)

			err := Validate(flow, knownTypes)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_ValidationErrorContext(t *testing.T) {
	flow := validFlow()
	flow.Tasks[2].Type = "script"

	err := Validate(flow, knownTypes)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if vErr.TaskID != "3-optional" {
		t.Errorf("TaskID = %q, want 3-optional", vErr.TaskID)
	}
	if vErr.Field != "type" {
		t.Errorf("Field = %q, want type", vErr.Field)
	}
}

func TestValidate_NilTypeChecker(t *testing.T) {
	flow := validFlow()
	flow.Tasks[0].Type = "anything"

	if err := Validate(flow, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateTemplate(t *testing.T) {
	tmpl := &domain.Template{ID: "template", Namespace: "io.stencil.tests", Tasks: []domain.TaskDef{
		domain.Plain("test", "log", map[string]any{"message": "{{ parent.outputs.args['my-forward'] }}"}),
	}}
	if err := ValidateTemplate(tmpl, knownTypes); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	tmpl.Namespace = ""
	if err := ValidateTemplate(tmpl, knownTypes); !errors.Is(err, ErrEmptyFlowID) {
		t.Errorf("expected ErrEmptyFlowID, got %v", err)
	}
}

func TestResolveInputs(t *testing.T) {
	optional := false
	defs := []domain.InputDef{
		{Name: "s", Type: domain.InputTypeString},
		{Name: "i", Type: domain.InputTypeInt, Required: &optional},
		{Name: "f", Type: domain.InputTypeFloat, Required: &optional},
		{Name: "b", Type: domain.InputTypeBoolean, Required: &optional},
		{Name: "j", Type: domain.InputTypeJSON, Required: &optional},
		{Name: "d", Defaults: "fallback"},
		{Name: "opt", Required: &optional},
	}

	got, err := ResolveInputs(defs, map[string]any{
		"s":     "hello",
		"i":     "42",
		"f":     float64(2),
		"b":     "true",
		"j":     `{"k":[1,2]}`,
		"extra": "dropped",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got["s"] != "hello" {
		t.Errorf("s = %v", got["s"])
	}
	if got["i"] != int64(42) {
		t.Errorf("i = %#v, want int64(42)", got["i"])
	}
	if got["f"] != float64(2) {
		t.Errorf("f = %#v", got["f"])
	}
	if got["b"] != true {
		t.Errorf("b = %#v", got["b"])
	}
	if _, ok := got["j"].(map[string]any); !ok {
		t.Errorf("j = %#v, want decoded object", got["j"])
	}
	if got["d"] != "fallback" {
		t.Errorf("d = %v, want default", got["d"])
	}
	if _, ok := got["opt"]; ok {
		t.Error("omitted optional input should be absent")
	}
	if _, ok := got["extra"]; ok {
		t.Error("undeclared input should be dropped")
	}
}

func TestResolveInputs_Errors(t *testing.T) {
	defs := []domain.InputDef{
		{Name: "required"},
		{Name: "n", Type: domain.InputTypeInt, Defaults: 1},
	}

	_, err := ResolveInputs(defs, map[string]any{})
	if !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}

	_, err = ResolveInputs(defs, map[string]any{"required": "x", "n": "1.5"})
	var inErr *InputError
	if !errors.As(err, &inErr) || inErr.Name != "n" || !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected InputError for n, got %v", err)
	}
}
