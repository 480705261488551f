package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/dynadash/internal/inject"
	"github.com/ziadkadry99/dynadash/internal/visual"
)

var (
	inspectVariable string
	inspectRows     int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <dashboard.html>",
	Short: "Print the dataset embedded in a downloaded dashboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		variable := inspectVariable
		if variable == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			variable = cfg.DataVariable
		}

		doc, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		raw, err := inject.Extract(string(doc), variable)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		if inspectRows > 0 {
			p, err := visual.NewPreview(raw, inspectRows)
			if err != nil {
				return err
			}
			printPreview(p)
			return nil
		}

		var out bytes.Buffer
		if err := json.Indent(&out, raw, "", "  "); err != nil {
			return fmt.Errorf("formatting dataset: %w", err)
		}
		fmt.Println(out.String())
		return nil
	},
}

func init() {
	inspectCmd.Flags().IntVar(&inspectRows, "rows", 0, "print the first N records as a table instead of JSON")
	inspectCmd.Flags().StringVar(&inspectVariable, "variable", "", "global the dataset is assigned to (default: from config)")
	rootCmd.AddCommand(inspectCmd)
}

func printPreview(p *visual.Preview) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(p.Columns, "\t"))
	for _, row := range p.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = string(c)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	fmt.Printf("(%d of %d records)\n", len(p.Rows), p.Total)
}
