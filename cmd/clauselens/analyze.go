package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clauselens/clauselens/internal/analysis"
	"github.com/clauselens/clauselens/internal/config"
	"github.com/clauselens/clauselens/internal/extract"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a document locally and print the result as JSON",
	Long: `Analyze a document without going through the server: extract, chunk,
clause analysis, risk assessment, all in one run. Progress goes to
stderr, the result to stdout.

Examples:
  clauselens analyze lease.pdf
  clauselens analyze terms.html > result.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !extract.Supported(path) {
			return fmt.Errorf("unsupported file type %q (supported: %s)",
				filepath.Ext(path), strings.Join(extract.SupportedExtensions(), ", "))
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		eng := buildEngine(ctx, cfg)

		pipe := analysis.NewPipeline(eng, progressPrinter{}, nil, pipelineOptions(cfg), nil)

		result, err := pipe.Run(ctx, uuid.New().String(), filepath.Base(path), data)
		if err != nil {
			return err
		}

		printSuccess("Analyzed %s: %d clauses, %d red flags",
			filepath.Base(path), result.Stats.ClausesFound, len(result.RedFlags))
		printStatus("Overall risk", "%s (%s)", riskPaint(result.OverallRiskScore), result.DocumentType)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// progressPrinter surfaces pipeline stages on stderr instead of a job store.
type progressPrinter struct{}

func (progressPrinter) SetProgress(_ string, progress int, step string) error {
	printStep("%3d%% %s", progress, step)
	return nil
}
