package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/Stencil/internal/domain"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output в stdout/stderr. Если jsonMode=true, данные
// выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	// Заголовки
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	// Разделитель
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	// Строки данных
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// LogEntry выводит запись лога execution в stderr.
func (o *Output) LogEntry(e domain.LogEntry) {
	if o.jsonMode {
		return
	}
	task := e.TaskID
	if task == "" {
		task = "-"
	}
	fmt.Fprintf(o.errW, "%s %-5s [%s] %s\n", e.Timestamp.Format(time.TimeOnly), e.Level, task, e.Message)
}

// Execution выводит execution: строку состояния и таблицу task runs.
func (o *Output) Execution(exec *domain.Execution) {
	if o.jsonMode {
		o.JSON(exec)
		return
	}

	fmt.Fprintf(o.w, "Execution %s  %s.%s  %s  (%s)\n",
		exec.ID, exec.Namespace, exec.FlowID, exec.State, formatDuration(exec.Duration()))
	if exec.Error != "" {
		fmt.Fprintf(o.w, "Error: %s\n", exec.Error)
	}

	rows := make([][]string, len(exec.TaskRunList))
	for i, tr := range exec.TaskRunList {
		rows[i] = []string{
			tr.TaskID,
			orDash(tr.Type),
			orDash(strings.Join(tr.Path, "/")),
			string(tr.State),
			formatDuration(tr.Duration()),
			tr.Error,
		}
	}
	o.Table([]string{"TASK", "TYPE", "PATH", "STATE", "DURATION", "ERROR"}, rows)
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
