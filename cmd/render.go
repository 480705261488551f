package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/dynadash/internal/frame"
	"github.com/ziadkadry99/dynadash/internal/viewer"
)

var (
	renderDataset string
	renderOut     string
)

var renderCmd = &cobra.Command{
	Use:   "render <template.html>",
	Short: "Load a template headlessly and report how each surface ends up",
	Long: `Injects the dataset into the template, loads the result into headless
primary and fullscreen frames and prints the final state of each. With
--out the injected document is written to a file, as the download button
would.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tmpl, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading template: %w", err)
		}
		dataset, err := readDataset(renderDataset)
		if err != nil {
			return err
		}

		opts := viewer.Options{
			Template:   string(tmpl),
			Dataset:    dataset,
			Variable:   cfg.DataVariable,
			Primary:    frame.New("dashboard-frame", frame.Options{MaxBytes: cfg.MaxDocumentBytes}),
			Fullscreen: frame.New("fullscreen-frame", frame.Options{MaxBytes: cfg.MaxDocumentBytes}),
			Timeout:    cfg.LoadTimeout(),
		}
		if verbose {
			opts.Observer = viewer.ObserverFunc(func(c viewer.Change) {
				fmt.Fprintf(os.Stderr, "cycle %d: %s -> %s\n", c.Cycle, c.Surface, c.State)
			})
		}
		loader := viewer.New(opts)

		if err := loader.Load(); err == nil {
			if loader.LoadingIndicator() {
				fmt.Fprintln(os.Stderr, "Loading dashboard...")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.LoadTimeout()+time.Second)
			defer cancel()
			if err := loader.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for frames: %w", err)
			}
		}

		failed := false
		for _, s := range loader.Snapshot() {
			if s.Message != "" {
				fmt.Printf("%-10s %-9s %s\n", s.Surface, s.State, s.Message)
			} else {
				fmt.Printf("%-10s %s\n", s.Surface, s.State)
			}
			failed = failed || s.State == viewer.Errored
		}

		if renderOut != "" {
			doc, err := loader.Render()
			if err != nil {
				return fmt.Errorf("%s", viewer.Message(err))
			}
			if err := os.WriteFile(renderOut, []byte(doc), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", renderOut, err)
			}
			fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes)\n", renderOut, len(doc))
		}
		if failed {
			return fmt.Errorf("dashboard did not display")
		}
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderDataset, "dataset", "", "JSON dataset to inject")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "write the injected document to this file")
	rootCmd.AddCommand(renderCmd)
}
