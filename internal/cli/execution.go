package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Stencil/internal/domain"
)

// ErrExecutionUnsuccessful — execution завершился не в SUCCESS.
// CLI возвращает его, чтобы процесс вышел с ненулевым кодом.
var ErrExecutionUnsuccessful = errors.New("execution did not succeed")

// checkState возвращает ErrExecutionUnsuccessful для FAILED и KILLED.
func checkState(exec *domain.Execution) error {
	switch exec.State {
	case domain.StateFailed, domain.StateKilled:
		return fmt.Errorf("%w: %s is %s", ErrExecutionUnsuccessful, exec.ID, exec.State)
	default:
		return nil
	}
}

// NewExecutionCmd создаёт группу команд для execution на сервере.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"exec"},
		Short:   "Start and inspect executions on the server",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionStartCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
		newExecutionKillCmd(clientFn, outputFn),
		newExecutionLogsCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var namespace, flowID, state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions known to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			execs, err := clientFn().ListExecutions(namespace, flowID, state)
			if err != nil {
				return err
			}

			rows := make([][]string, len(execs))
			for i, e := range execs {
				rows[i] = []string{
					e.ID, e.Namespace, e.FlowID, e.State,
					strconv.Itoa(e.TaskRuns), e.StartedAt.Format(time.RFC3339),
				}
			}
			outputFn().Print([]string{"ID", "NAMESPACE", "FLOW", "STATE", "TASK_RUNS", "STARTED"}, rows, execs)
			return nil
		},
	}

	cmd.Flags().StringVar(&namespace, "namespace", "", "Filter by namespace")
	cmd.Flags().StringVar(&flowID, "flow", "", "Filter by flow ID")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (CREATED, RUNNING, SUCCESS, FAILED, KILLED)")

	return cmd
}

func newExecutionStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var inputs []string
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "start NAMESPACE FLOW",
		Short: "Start a flow execution",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			exec, err := clientFn().StartExecution(args[0], args[1], StartOpts{
				Inputs:  parsed,
				Wait:    wait,
				Timeout: timeout,
			})
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Execution started: %s", exec.ID))
			out.Execution(exec)
			if wait {
				return checkState(exec)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the execution to finish")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "How long the server waits with --wait (server default if 0)")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an execution and its task runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := clientFn().GetExecution(args[0])
			if err != nil {
				return err
			}
			outputFn().Execution(exec)
			return nil
		},
	}
}

func newExecutionKillCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "kill ID",
		Short: "Kill a running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := clientFn().KillExecution(args[0])
			if err != nil {
				return err
			}
			out := outputFn()
			out.Success(fmt.Sprintf("Kill requested: %s", exec.ID))
			out.Execution(exec)
			return nil
		},
	}
}

func newExecutionLogsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var minLevel string

	cmd := &cobra.Command{
		Use:   "logs ID",
		Short: "Print execution log entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := clientFn().ExecutionLogs(args[0], minLevel)
			if err != nil {
				return err
			}

			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{e.Timestamp.Format(time.RFC3339), string(e.Level), orDash(e.TaskID), e.Message}
			}
			outputFn().Print([]string{"TIME", "LEVEL", "TASK", "MESSAGE"}, rows, entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&minLevel, "min-level", "", "Lowest level to show (TRACE, DEBUG, INFO, WARN, ERROR)")

	return cmd
}
