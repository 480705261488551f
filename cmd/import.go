package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/dynadash/internal/catalog"
	"github.com/ziadkadry99/dynadash/internal/inject"
	"github.com/ziadkadry99/dynadash/internal/progress"
	"github.com/ziadkadry99/dynadash/internal/viewer"
	"github.com/ziadkadry99/dynadash/internal/visual"
)

var (
	importDir     string
	importDataset string
	importTitle   string
	importUser    string
)

var importCmd = &cobra.Command{
	Use:   "import [template.html]",
	Short: "Import dashboard templates into the database",
	Long: `Stores a single template (with an optional --dataset) or, with --dir,
every template found under a directory. A template's dataset is the
sibling .json file with the same base name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (importDir == "") == (len(args) == 0) {
			return fmt.Errorf("pass either a template file or --dir")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		store := visual.NewStore(database)
		injector := inject.Injector{Variable: cfg.DataVariable}
		ctx := context.Background()

		if importDir == "" {
			tmpl, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading template: %w", err)
			}
			dataset, err := readDataset(importDataset)
			if err != nil {
				return err
			}
			title := importTitle
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			prepared := injector.Prepare(string(tmpl))
			if _, err := injector.Inject(prepared, dataset); err != nil {
				return fmt.Errorf("%s: %s", args[0], viewer.Message(err))
			}
			v, err := store.Create(ctx, visual.Visualisation{
				UserID:   importUser,
				Title:    title,
				Template: prepared,
				Dataset:  dataset,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Imported %s as %s (/visual/view/%s)\n", args[0], v.ID, v.ID)
			return nil
		}

		entries, err := catalog.Discover(catalog.Options{
			RootDir:     importDir,
			Include:     cfg.Include,
			Exclude:     cfg.Exclude,
			MaxFileSize: int64(cfg.MaxDocumentBytes),
		})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintf(os.Stderr, "No templates found under %s\n", importDir)
			return nil
		}

		reporter := progress.NewReporter()
		imported, skipped := 0, 0
		for i, e := range entries {
			reporter.Update(i*100/len(entries), e.RelPath)
			if err := importEntry(ctx, store, injector, e); err != nil {
				skipped++
				fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", e.RelPath, err)
				continue
			}
			imported++
		}
		reporter.Finish(fmt.Sprintf("Imported %d templates, skipped %d", imported, skipped))
		return nil
	},
}

func importEntry(ctx context.Context, store *visual.Store, injector inject.Injector, e catalog.Entry) error {
	tmpl, err := e.ReadTemplate()
	if err != nil {
		return err
	}
	tmpl = injector.Prepare(tmpl)
	dataset, err := e.ReadDataset()
	if err != nil {
		return err
	}
	if _, err := injector.Inject(tmpl, dataset); err != nil {
		return fmt.Errorf("%s", viewer.Message(err))
	}
	_, err = store.Create(ctx, visual.Visualisation{
		UserID:   importUser,
		Title:    e.Title,
		Template: tmpl,
		Dataset:  dataset,
	})
	return err
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "import every template under this directory")
	importCmd.Flags().StringVar(&importDataset, "dataset", "", "JSON dataset for a single template")
	importCmd.Flags().StringVar(&importTitle, "title", "", "title for a single template (default: file name)")
	importCmd.Flags().StringVar(&importUser, "user", "", "owner user ID")
	rootCmd.AddCommand(importCmd)
}
