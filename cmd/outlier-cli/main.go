package main

import (
	"context"
	"fmt"
	"os"

	"gooutlier/adapters/extract"
	"gooutlier/internal/config"
	"gooutlier/internal/logging"
	"gooutlier/internal/registry"
	"gooutlier/ports"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "outlier-cli",
		Short: "Offline tools for the outlier detector",
	}

	rootCmd.AddCommand(
		newDryRunCmd(),
		newValidateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newDryRunCmd() *cobra.Command {
	var detectorFile, input, output, format, source, logLevel string
	var filter map[string]string

	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Replay a file through both classifiers",
		Long: `Replay points through the streaming and batch classifiers and write three
timestamp,value files: <output>.ts (every point), <output>.sketchy (streaming
severe) and <output>.real (confirmed).

CSV input is timestamp,value[,source]. JSON lines input is extracted with the
measurements of the detector config.

Example: outlier-cli dry-run --config detector.yaml --input cpu.csv --output out/cpu --filter host=web`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.LoadDetector(detectorFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(logLevel, "console")
			if err != nil {
				return err
			}
			defer logger.Sync()

			detector, err := registry.Default().Resolve(doc, logger)
			if err != nil {
				return err
			}

			f, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("failed to open input: %w", err)
			}
			defer f.Close()

			var src ports.PointSource
			switch format {
			case "csv":
				src = extract.NewCSVSource(f, source)
			case "jsonl":
				extractor, err := extract.NewExtractor(doc.Measurements)
				if err != nil {
					return fmt.Errorf("jsonl input needs measurements in the detector config: %w", err)
				}
				src = extract.NewJSONLinesSource(f, extractor)
			default:
				return fmt.Errorf("unknown input format %q", format)
			}

			d := &dryRun{detector: detector, filter: filter, logger: logger, progress: cmd.ErrOrStderr()}
			summary, err := d.runToFiles(context.Background(), src, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "points=%d printed=%d sketchy=%d confirmed=%d\n",
				summary.Points, summary.Printed, summary.Sketchy, summary.Confirmed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&detectorFile, "config", "c", "", "Detector config (YAML or JSON); defaults apply when empty")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Input file")
	cmd.Flags().StringVarP(&output, "output", "o", "dryrun", "Output path prefix")
	cmd.Flags().StringVar(&format, "format", "csv", "Input format: csv or jsonl")
	cmd.Flags().StringVar(&source, "source", "series", "Source for CSV rows without one")
	cmd.Flags().StringToStringVarP(&filter, "filter", "f", nil, "Only print points whose metadata starts with property=value")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level")
	cmd.MarkFlagRequired("input")

	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [detector-config]",
		Short: "Validate a detector config and print the effective settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.LoadDetector(args[0])
			if err != nil {
				return err
			}
			detector, err := registry.Default().Resolve(doc, nil)
			if err != nil {
				return fmt.Errorf("invalid detector config: %w", err)
			}
			if len(doc.Measurements) > 0 {
				if _, err := extract.NewExtractor(doc.Measurements); err != nil {
					return fmt.Errorf("invalid measurements: %w", err)
				}
			}

			effective, err := doc.Encode()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# batch %s, head start %s\n", detector.Batch.Name(), detector.HeadStart)
			_, err = cmd.OutOrStdout().Write(effective)
			return err
		},
	}
}
