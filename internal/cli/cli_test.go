package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/Stencil/internal/api"
	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/engine"
	"github.com/shaiso/Stencil/internal/logbus"
	"github.com/shaiso/Stencil/internal/registry"
	"github.com/shaiso/Stencil/internal/runner"
	"github.com/shaiso/Stencil/internal/tasks"
)

const (
	testdataDir = "../loader/testdata/flows"
	ns          = "io.stencil.tests"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseInputs(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", raw: nil, want: nil},
		{
			name: "pairs",
			raw:  []string{"a=1", "b=x=y", "c="},
			want: map[string]any{"a": "1", "b": "x=y", "c": ""},
		},
		{name: "missing equals", raw: []string{"a"}, wantErr: true},
		{name: "empty key", raw: []string{"=v"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInputs(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("inputs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunLocal(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(&stdout, &stderr, false)

	exec, err := RunLocal(context.Background(), testdataDir, runner.RunRequest{
		Namespace: ns,
		FlowID:    "with-template",
		Inputs:    map[string]any{"with-string": "forwarded", "with-optional": "opt"},
		Timeout:   5 * time.Second,
	}, LocalOptions{Logger: discardLogger()}, out)
	if err != nil {
		t.Fatalf("RunLocal: %v", err)
	}
	if exec.State != domain.StateSuccess {
		t.Fatalf("state = %s, want SUCCESS (error %q)", exec.State, exec.Error)
	}
	if err := checkState(exec); err != nil {
		t.Errorf("checkState: %v", err)
	}

	if !strings.Contains(stdout.String(), "4-end") {
		t.Errorf("task table should list 4-end:\n%s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "forwarded") {
		t.Errorf("template log entry should be printed:\n%s", stderr.String())
	}
}

func TestRunLocal_OptionalInputOmitted(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(&stdout, &stderr, false)

	exec, err := RunLocal(context.Background(), testdataDir, runner.RunRequest{
		Namespace: ns,
		FlowID:    "with-template",
		Inputs:    map[string]any{"with-string": "forwarded"},
		Timeout:   5 * time.Second,
	}, LocalOptions{Logger: discardLogger()}, out)
	if err != nil {
		t.Fatalf("RunLocal: %v", err)
	}
	if exec.State != domain.StateSuccess {
		t.Fatalf("state = %s, want SUCCESS (error %q)", exec.State, exec.Error)
	}
	if exec.Inputs["with-optional"] != "not provided" {
		t.Errorf("with-optional = %v, want default", exec.Inputs["with-optional"])
	}
}

func TestRunLocal_Failed(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(&stdout, &stderr, false)

	exec, err := RunLocal(context.Background(), testdataDir, runner.RunRequest{
		Namespace: ns,
		FlowID:    "with-failed-template",
		Timeout:   5 * time.Second,
	}, LocalOptions{Logger: discardLogger()}, out)
	if err != nil {
		t.Fatalf("RunLocal: %v", err)
	}
	if exec.State != domain.StateFailed {
		t.Fatalf("state = %s, want FAILED", exec.State)
	}
	if !errors.Is(checkState(exec), ErrExecutionUnsuccessful) {
		t.Error("failed execution should be reported as unsuccessful")
	}
}

func TestRunLocal_MissingInput(t *testing.T) {
	out := NewOutputTo(io.Discard, io.Discard, false)

	_, err := RunLocal(context.Background(), testdataDir, runner.RunRequest{
		Namespace: ns,
		FlowID:    "with-template",
	}, LocalOptions{Logger: discardLogger()}, out)
	if !errors.Is(err, runner.ErrInvalidInputs) {
		t.Errorf("expected ErrInvalidInputs, got %v", err)
	}
}

func TestValidateCmd(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := NewValidateCmd(func() *Output { return NewOutputTo(&stdout, &stderr, false) })
	cmd.SetArgs([]string{"--dir", testdataDir})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(stderr.String(), "4 documents are valid") {
		t.Errorf("unexpected summary: %q", stderr.String())
	}
	if !strings.Contains(stdout.String(), "template io.stencil.tests.template") {
		t.Errorf("document table missing template:\n%s", stdout.String())
	}
}

// newAPIServer поднимает API с runner в памяти.
func newAPIServer(t *testing.T) *Client {
	t.Helper()

	logger := discardLogger()
	taskRegistry := tasks.DefaultRegistry()
	templates := registry.NewMemory()
	flows := registry.NewFlowStore(func(f *domain.Flow) error {
		return engine.Validate(f, taskRegistry.Has)
	})

	bus := logbus.New(logbus.Config{Logger: logger})
	journal := logbus.NewJournal(0)
	journal.Attach(bus)

	r := runner.New(runner.Config{
		Flows:     flows,
		Templates: templates,
		Tasks:     taskRegistry,
		Bus:       bus,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	api.NewHandler(api.Config{
		Templates: templates,
		Flows:     flows,
		Runner:    r,
		Logs:      journal,
		Logger:    logger,
	}).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
		bus.Close()
	})

	return NewClient(srv.URL)
}

func TestClient(t *testing.T) {
	client := newAPIServer(t)

	tmpl := &domain.Template{
		Namespace: ns,
		ID:        "greet",
		Tasks: []domain.TaskDef{
			domain.Plain("hello", "log", map[string]any{"message": "hello {{ parent.outputs.args.name }}"}),
		},
	}
	if _, err := client.CreateTemplate(tmpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	_, err := client.CreateTemplate(tmpl)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 APIError, got %v", err)
	}

	flow := &domain.Flow{
		Namespace: ns,
		ID:        "greeting",
		Tasks: []domain.TaskDef{
			domain.Include("greet", ns, "greet", map[string]string{"name": "world"}),
		},
	}
	if _, err := client.PutFlow(flow); err != nil {
		t.Fatalf("PutFlow: %v", err)
	}

	exec, err := client.StartExecution(ns, "greeting", StartOpts{Wait: true, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	if exec.State != domain.StateSuccess {
		t.Fatalf("state = %s, want SUCCESS", exec.State)
	}

	got, err := client.GetExecution(exec.ID.String())
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.ID != exec.ID || len(got.TaskRunList) != len(exec.TaskRunList) {
		t.Errorf("GetExecution returned %+v", got)
	}

	execs, err := client.ListExecutions(ns, "greeting", "")
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(execs) != 1 || execs[0].ID != exec.ID.String() {
		t.Errorf("ListExecutions = %+v", execs)
	}

	// журнал получает записи асинхронно
	deadline := time.Now().Add(2 * time.Second)
	var entries []domain.LogEntry
	for time.Now().Before(deadline) {
		entries, err = client.ExecutionLogs(exec.ID.String(), "INFO")
		if err != nil {
			t.Fatalf("ExecutionLogs: %v", err)
		}
		if len(entries) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(entries) != 1 || entries[0].Message != "hello world" {
		t.Errorf("entries = %+v", entries)
	}

	_, err = client.KillExecution(exec.ID.String())
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("killing a finished execution: expected 422, got %v", err)
	}

	_, err = client.GetFlow(ns, "missing")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestExecutionStartCmd(t *testing.T) {
	client := newAPIServer(t)

	flow := &domain.Flow{
		Namespace: ns,
		ID:        "boom",
		Tasks: []domain.TaskDef{
			domain.Plain("explode", "fail", map[string]any{"message": "boom"}),
		},
	}
	if _, err := client.PutFlow(flow); err != nil {
		t.Fatalf("PutFlow: %v", err)
	}

	var stdout bytes.Buffer
	cmd := NewExecutionCmd(
		func() *Client { return client },
		func() *Output { return NewOutputTo(&stdout, io.Discard, false) },
	)
	cmd.SetArgs([]string{"start", ns, "boom", "--wait"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	if !errors.Is(err, ErrExecutionUnsuccessful) {
		t.Fatalf("expected ErrExecutionUnsuccessful, got %v", err)
	}
	if !strings.Contains(stdout.String(), "FAILED") {
		t.Errorf("output should show FAILED state:\n%s", stdout.String())
	}
}
