package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/docrisk/internal/config"
	"github.com/bryanwahyu/docrisk/internal/logging"
)

type globalFlags struct {
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "docrisk",
		Short: "Assess documents for tampering and aggregate their risk",
		Long: `docrisk runs the document integrity pipeline locally.

It parses PDFs and standalone images, runs the structural and pixel
forensics, calls the configured collaborators (text format quality,
watchlist screening, language model checks) and prints the frozen
assessment with its risk band and recommendations.`,
		Example: `  # Analyze a PDF with the default, offline configuration
  docrisk analyze statement.pdf

  # Supply extracted text and store the result in SQLite
  docrisk analyze scan.jpg --extraction scan.json --save --db ./docrisk.db

  # Fail a CI step when a document lands in HIGH or above
  docrisk analyze invoice.pdf --fail-on HIGH

  # Verify an archived record against its digest
  docrisk verify assessment.json --digest 9f86d08...`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.configFile, "config", "", "Path to config file (.yaml or .toml); defaults are used when empty")
	root.PersistentFlags().BoolVar(&g.verbose, "verbose", false, "Enable debug logging on stderr")

	root.Version = Version
	root.SetVersionTemplate("docrisk {{.Version}}\n")

	root.AddCommand(newAnalyzeCmd(g), newVerifyCmd(), newWatchlistCmd(g))
	return root
}

func (g *globalFlags) load() (*config.Config, error) {
	if g.configFile == "" {
		return config.Default(), nil
	}
	return config.Load(g.configFile)
}

func (g *globalFlags) logger(w io.Writer) (*slog.Logger, error) {
	level := "warn"
	if g.verbose {
		level = "debug"
	}
	return logging.New(logging.Options{Level: level, Format: "text", Output: w})
}
