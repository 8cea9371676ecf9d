package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/docrisk/internal/application/assessments"
	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

func newVerifyCmd() *cobra.Command {
	var digest string
	cmd := &cobra.Command{
		Use:   "verify RECORD",
		Short: "Check an archived assessment record against its digest",
		Long: `verify re-encodes an assessment record in canonical JSON (RFC 8785)
and compares its SHA-256 with the digest stored alongside it. Whitespace
and key order in the file do not matter.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, err := document.UnmarshalAssessment(raw)
			if err != nil {
				return err
			}
			_, got, err := assessments.Canonicalize(*a)
			if err != nil {
				return err
			}
			if digest == "" {
				fmt.Fprintln(cmd.OutOrStdout(), got)
				return nil
			}
			if !strings.EqualFold(strings.TrimSpace(digest), got) {
				return fmt.Errorf("digest mismatch for %s: record hashes to %s", a.ID, got)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", a.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&digest, "digest", "", "Expected sha256 hex digest; prints the digest when empty")
	return cmd
}
