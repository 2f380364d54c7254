package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/loader"
)

// NewTemplateCmd создаёт группу команд для шаблонов.
func NewTemplateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage flow templates",
	}

	cmd.AddCommand(
		newTemplateListCmd(clientFn, outputFn),
		newTemplateGetCmd(clientFn, outputFn),
		newTemplateCreateCmd(clientFn, outputFn),
	)

	return cmd
}

func templateRows(templates []domain.Template) [][]string {
	rows := make([][]string, len(templates))
	for i, t := range templates {
		rows[i] = []string{t.Namespace, t.ID, strconv.Itoa(len(t.Tasks)), t.Description}
	}
	return rows
}

var templateHeaders = []string{"NAMESPACE", "ID", "TASKS", "DESCRIPTION"}

func newTemplateListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := clientFn().ListTemplates()
			if err != nil {
				return err
			}
			outputFn().Print(templateHeaders, templateRows(templates), templates)
			return nil
		},
	}
}

func newTemplateGetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAMESPACE ID",
		Short: "Show a template and its tasks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := clientFn().GetTemplate(args[0], args[1])
			if err != nil {
				return err
			}

			out := outputFn()
			rows := make([][]string, len(tmpl.Tasks))
			for i, t := range tmpl.Tasks {
				target := t.Type
				if t.IsInclude() {
					target = t.TemplateKey().String()
				}
				rows[i] = []string{t.ID, string(t.Kind), target}
			}
			out.Print([]string{"TASK", "KIND", "TYPE/TEMPLATE"}, rows, tmpl)
			return nil
		},
	}
}

func newTemplateCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create -f FILE",
		Short: "Store every template document of a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := loader.LoadFile(file)
			if err != nil {
				return err
			}
			templates := bundle.Templates()
			if len(templates) == 0 {
				return fmt.Errorf("%s: no template documents", file)
			}

			client := clientFn()
			out := outputFn()
			for _, t := range templates {
				if _, err := client.CreateTemplate(t); err != nil {
					return fmt.Errorf("%s: %w", t.Key(), err)
				}
				out.Success(fmt.Sprintf("Template created: %s", t.Key()))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with kind: template documents")
	cmd.MarkFlagRequired("file")

	return cmd
}
