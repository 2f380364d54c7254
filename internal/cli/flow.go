package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/loader"
)

// NewFlowCmd создаёт группу команд для flow.
func NewFlowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage flows",
	}

	cmd.AddCommand(
		newFlowListCmd(clientFn, outputFn),
		newFlowPutCmd(clientFn, outputFn),
	)

	return cmd
}

func flowRow(f domain.Flow) []string {
	return []string{f.Namespace, f.ID, strconv.Itoa(len(f.Tasks)), strconv.Itoa(len(f.Triggers))}
}

var flowHeaders = []string{"NAMESPACE", "ID", "TASKS", "TRIGGERS"}

func newFlowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flows, err := clientFn().ListFlows()
			if err != nil {
				return err
			}

			rows := make([][]string, len(flows))
			for i, f := range flows {
				rows[i] = flowRow(f)
			}
			outputFn().Print(flowHeaders, rows, flows)
			return nil
		},
	}
}

func newFlowPutCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "put -f FILE",
		Short: "Create or replace every flow document of a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := loader.LoadFile(file)
			if err != nil {
				return err
			}
			flows := bundle.Flows()
			if len(flows) == 0 {
				return fmt.Errorf("%s: no flow documents", file)
			}

			client := clientFn()
			out := outputFn()
			for _, f := range flows {
				if _, err := client.PutFlow(f); err != nil {
					return fmt.Errorf("%s: %w", f.Key(), err)
				}
				out.Success(fmt.Sprintf("Flow saved: %s", f.Key()))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with kind: flow documents")
	cmd.MarkFlagRequired("file")

	return cmd
}
