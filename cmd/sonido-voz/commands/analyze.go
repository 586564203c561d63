package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-voz/detector"
	"github.com/RyanBlaney/sonido-voz/logging"
)

var outputFormat string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Analyze audio files",
	Long: `Analyze one or more audio files and print a verdict for each.

Examples:
  sonido-voz analyze clip.wav
  sonido-voz analyze --format text a.webm b.mp3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, text)")
}

// fileResult pairs a file with its report or failure
type fileResult struct {
	File   string                `json:"file"`
	Result *detector.Report      `json:"result,omitempty"`
	Error  *detector.ErrorReport `json:"error,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if outputFormat != "json" && outputFormat != "text" {
		return fmt.Errorf("unknown output format %q", outputFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())

	analyzer, err := newAnalyzer(cfg, logger, nil)
	if err != nil {
		return err
	}

	results := make([]fileResult, 0, len(args))
	failed := 0
	for _, path := range args {
		res := analyzeFile(cmd.Context(), analyzer, logger, path)
		if res.Error != nil {
			failed++
		}
		results = append(results, res)
	}

	if outputFormat == "text" {
		err = writeTable(cmd.OutOrStdout(), results)
	} else {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if len(results) == 1 {
			err = enc.Encode(results[0])
		} else {
			err = enc.Encode(results)
		}
	}
	if err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files produced no verdict", failed, len(results))
	}
	return nil
}

// analyzeFile reads and analyzes one file. Read and analysis failures are
// both reported in the result.
func analyzeFile(ctx context.Context, analyzer *detector.Analyzer, logger logging.Logger, path string) fileResult {
	res := fileResult{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("file unreadable", logging.Fields{"file": path, "error": err.Error()})
		res.Error = &detector.ErrorReport{
			Status:  detector.StatusError,
			Message: "File could not be read.",
			Reason:  detector.KindInputUnusable.Reason(),
		}
		return res
	}

	out, err := analyzer.AnalyzeBytes(ctx, data)
	if err != nil {
		logger.Warn("no verdict", logging.Fields{"file": path, "error": err.Error()})
		rep := detector.NewErrorReport(err)
		res.Error = &rep
		return res
	}

	rep := out.Report()
	res.Result = &rep
	return res
}

func writeTable(w io.Writer, results []fileResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tSCORE\tF0_MEAN\tF0_MIN\tF0_MAX\tRANGE_F0\tJITTER\tHNR\tPOINTS")
	for _, r := range results {
		if r.Error != nil {
			fmt.Fprintf(tw, "%s\t%s (%s)\t-\t-\t-\t-\t-\t-\t-\t-\n", r.File, r.Error.Status, r.Error.Reason)
			continue
		}
		rep := r.Result
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\n",
			r.File, rep.Status, rep.Score, rep.F0Mean, rep.F0Min, rep.F0Max,
			rep.RangeF0, rep.Jitter, rep.HNRMean, rep.AIPoints)
	}
	return tw.Flush()
}
