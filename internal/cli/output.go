package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// Output handles formatted CLI output, switching between human-readable
// tables and JSON on the global --json flag.
type Output struct {
	writer   io.Writer
	jsonMode bool
}

// NewOutput creates an Output bound to the command's stdout.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	if jsonMode || !isTerminal() {
		color.NoColor = true
	}
	return &Output{writer: cmd.OutOrStdout(), jsonMode: jsonMode}
}

// IsJSON reports whether JSON output mode is enabled.
func (o *Output) IsJSON() bool { return o.jsonMode }

// JSON writes data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Printf writes formatted text.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Header writes a bold section header.
func (o *Output) Header(text string) {
	fmt.Fprintln(o.writer, color.New(color.Bold).Sprint(text))
}

// Table creates a styled table writer bound to the output.
func (o *Output) Table() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(o.writer)
	t.SetStyle(table.StyleLight)
	return t
}

// PnL formats a signed amount green or red.
func PnL(v float64) string {
	if v >= 0 {
		return color.GreenString("%+.2f", v)
	}
	return color.RedString("%+.2f", v)
}

func isTerminal() bool {
	fileInfo, _ := os.Stdout.Stat()
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
