package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/docrisk/internal/application"
	"github.com/bryanwahyu/docrisk/internal/application/assessments"
	"github.com/bryanwahyu/docrisk/internal/application/pipeline"
	"github.com/bryanwahyu/docrisk/internal/bootstrap"
	"github.com/bryanwahyu/docrisk/internal/domain/document"
	"github.com/bryanwahyu/docrisk/internal/domain/risk"
)

// errThreshold is returned when --fail-on is reached.
var errThreshold = errors.New("risk threshold reached")

type analyzeFlags struct {
	extraction string
	tenant     string
	output     string
	offline    bool
	save       bool
	dbPath     string
	failOn     string
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Run the pipeline on one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, g, f, args[0])
		},
	}
	cmd.Flags().StringVarP(&f.extraction, "extraction", "e", "", "JSON file with extracted text, pages, entities and quality")
	cmd.Flags().StringVar(&f.tenant, "tenant", "local", "Tenant ID recorded on the assessment")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "Output format: text or json (canonical)")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "Skip the language model collaborators even when a key is configured")
	cmd.Flags().BoolVar(&f.save, "save", false, "Store the assessment in the configured database")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "Use this SQLite file as the database (implies --save)")
	cmd.Flags().StringVar(&f.failOn, "fail-on", "", "Exit non-zero when the band is at or above LOW|MEDIUM|HIGH|CRITICAL, or when inconclusive")
	return cmd
}

func runAnalyze(cmd *cobra.Command, g *globalFlags, f *analyzeFlags, path string) error {
	ctx := cmd.Context()
	var threshold document.Band
	if f.failOn != "" {
		threshold = document.Band(strings.ToUpper(f.failOn))
		if bandRank(threshold) == 0 {
			return fmt.Errorf("--fail-on: unknown band %q", f.failOn)
		}
	}
	if f.output != "text" && f.output != "json" {
		return fmt.Errorf("--output: unknown format %q", f.output)
	}

	cfg, err := g.load()
	if err != nil {
		return err
	}
	if f.offline {
		cfg.OpenAI.APIKey = ""
	}
	if f.dbPath != "" {
		cfg.Database.Driver, cfg.Database.Path, f.save = "sqlite", f.dbPath, true
	}
	log, err := g.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if int64(len(data)) > cfg.MaxUploadBytes() {
		return fmt.Errorf("%s: %d bytes exceeds the %d byte limit", path, len(data), cfg.MaxUploadBytes())
	}
	var ext document.Extraction
	if f.extraction != "" {
		raw, err := os.ReadFile(f.extraction)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &ext); err != nil {
			return fmt.Errorf("%s: %w", f.extraction, err)
		}
	}

	orch, _, err := bootstrap.Pipeline(cfg, log)
	if err != nil {
		return err
	}

	var a document.Assessment
	if f.save {
		db, repo, err := bootstrap.Database(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		svc := assessments.NewService(orch, repo, nil, application.SystemClock{}, log, 1)
		res, err := svc.Submit(ctx, assessments.SubmitCommand{
			TenantID:   f.tenant,
			Filename:   filepath.Base(path),
			Data:       data,
			Extraction: ext,
		})
		if err != nil {
			return err
		}
		a = res.Assessment
	} else {
		a, err = orch.Run(ctx, pipeline.Submission{
			TenantID:       f.tenant,
			ID:             document.ID(uuid.NewString()),
			Raw:            data,
			DeclaredFormat: assessments.DeclaredFormat(path, ""),
			Length:         len(data),
			Extraction:     ext,
		})
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if f.output == "json" {
		canonical, _, err := assessments.Canonicalize(a)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, string(canonical)); err != nil {
			return err
		}
	} else if err := printAssessment(out, a); err != nil {
		return err
	}

	if threshold != "" && (a.Verdict.Inconclusive || bandRank(a.Verdict.Band) >= bandRank(threshold)) {
		return fmt.Errorf("%w: %s", errThreshold, verdictLabel(a.Verdict))
	}
	return nil
}

func bandRank(b document.Band) int {
	switch b {
	case document.BandLow:
		return 1
	case document.BandMedium:
		return 2
	case document.BandHigh:
		return 3
	case document.BandCritical:
		return 4
	}
	return 0
}

func verdictLabel(v document.Verdict) string {
	if v.Inconclusive || v.Score == nil {
		return "inconclusive"
	}
	return fmt.Sprintf("%.1f %s", *v.Score, v.Band)
}

func printAssessment(w io.Writer, a document.Assessment) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "document\t%s\n", a.ID)
	fmt.Fprintf(tw, "format\t%s (%d bytes, %d images)\n", a.Format, a.ByteLength, len(a.Images))
	fmt.Fprintf(tw, "sha256\t%s\n", a.ContentHash)
	fmt.Fprintf(tw, "risk\t%s\n", verdictLabel(a.Verdict))
	if a.Verdict.ManualReview {
		fmt.Fprintf(tw, "review\tmanual review required\n")
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "component\tscore\tweight")
	weights := risk.EffectiveWeights(a.ScoreMap())
	for _, c := range a.Components {
		score := "n/a"
		if c.Valid {
			score = fmt.Sprintf("%.1f", c.Value)
		} else if c.Reason != "" {
			score = "n/a (" + c.Reason + ")"
		}
		weight := "-"
		if wt, ok := weights[c.Name]; ok {
			weight = fmt.Sprintf("%.2f", wt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, score, weight)
	}

	if len(a.Findings) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "severity\tfinding\tdetail")
		for _, f := range a.Findings {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Severity, f.Kind, f.Description)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	list := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s\n", title)
		for _, it := range items {
			fmt.Fprintf(w, "  - %s\n", it)
		}
	}
	list("risk factors", a.Verdict.RiskFactors)
	list("recommendations", a.Verdict.Recommendations)
	if len(a.Diagnostics) > 0 {
		fmt.Fprintln(w, "\ndiagnostics")
		for _, d := range a.Diagnostics {
			fmt.Fprintf(w, "  %s: %s\n", d.Stage, d.Message)
		}
	}
	return nil
}
