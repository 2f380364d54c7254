package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/engine"
	"github.com/shaiso/Stencil/internal/loader"
	"github.com/shaiso/Stencil/internal/logbus"
	"github.com/shaiso/Stencil/internal/registry"
	"github.com/shaiso/Stencil/internal/runner"
	"github.com/shaiso/Stencil/internal/scheduler"
	"github.com/shaiso/Stencil/internal/tasks"
)

// LocalOptions — общие настройки локального выполнения.
type LocalOptions struct {
	Parallelism       int
	ContinueOnFailure bool
	Logger            *slog.Logger
}

// NewRunCmd создаёт команду локального запуска flow из каталога YAML.
// Сервер не нужен: шаблоны и flow регистрируются в памяти процесса.
func NewRunCmd(optsFn func() LocalOptions, outputFn func() *Output) *cobra.Command {
	var dir string
	var inputs []string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run NAMESPACE FLOW",
		Short: "Run a flow locally from a directory of YAML documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			exec, err := RunLocal(cmd.Context(), dir, runner.RunRequest{
				Namespace: args[0],
				FlowID:    args[1],
				Inputs:    parsed,
				Timeout:   timeout,
			}, optsFn(), outputFn())
			if err != nil {
				return err
			}
			return checkState(exec)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory with flow and template YAML files")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Maximum time to wait for the execution")

	return cmd
}

// NewValidateCmd создаёт команду проверки каталога YAML без запуска.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate flow and template documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := loader.LoadDir(dir)
			if err != nil {
				return err
			}
			if err := bundle.Validate(tasks.DefaultRegistry().Has); err != nil {
				return err
			}
			for _, f := range bundle.Flows() {
				if err := scheduler.ValidateTriggers(f); err != nil {
					return fmt.Errorf("flow %s: %w", f.Key(), err)
				}
			}

			out := outputFn()
			rows := make([][]string, len(bundle.Documents))
			for i, d := range bundle.Documents {
				rows[i] = []string{d.Source, d.Name()}
			}
			out.Print([]string{"SOURCE", "DOCUMENT"}, rows, bundle.Documents)
			out.Success(fmt.Sprintf("%d documents are valid", len(bundle.Documents)))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory with flow and template YAML files")

	return cmd
}

// RunLocal загружает каталог, выполняет flow во встроенном runner и
// печатает записи лога по мере поступления.
func RunLocal(ctx context.Context, dir string, req runner.RunRequest, opts LocalOptions, out *Output) (*domain.Execution, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bundle, err := loader.LoadDir(dir)
	if err != nil {
		return nil, err
	}

	taskRegistry := tasks.DefaultRegistry()
	if err := bundle.Validate(taskRegistry.Has); err != nil {
		return nil, err
	}

	templates := registry.NewMemory()
	flows := registry.NewFlowStore(func(f *domain.Flow) error {
		return engine.Validate(f, taskRegistry.Has)
	})
	if err := bundle.Register(ctx, templates, flows); err != nil {
		return nil, err
	}

	bus := logbus.New(logbus.Config{Logger: logger})
	bus.Subscribe(out.LogEntry)

	r := runner.New(runner.Config{
		Flows:              flows,
		Templates:          templates,
		Tasks:              taskRegistry,
		Bus:                bus,
		ContinueOnFailure:  opts.ContinueOnFailure,
		DefaultParallelism: opts.Parallelism,
		Logger:             logger,
	})

	exec, runErr := r.Run(ctx, req)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.Shutdown(shutdownCtx)
	// Close дожидается вывода всех записей
	bus.Close()

	if exec != nil {
		out.Execution(exec)
	}
	return exec, runErr
}
