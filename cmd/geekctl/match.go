package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/matching"
)

func runMatch(ctx context.Context, s matching.Store, issueJSON io.Reader, page, pageSize int, out io.Writer) error {
	var issue domain.IssueRecord
	if err := json.NewDecoder(issueJSON).Decode(&issue); err != nil {
		return fmt.Errorf("decode issue: %w", err)
	}
	issue.Normalize()

	result, err := matching.NewEngine(s, nil).Match(ctx, &issue, page, pageSize)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func newMatchCmd() *cobra.Command {
	var (
		issuePath string
		page      int
		pageSize  int
	)
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match providers to an issue record and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(issuePath)
			if err != nil {
				return err
			}
			defer file.Close()

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			return runMatch(cmd.Context(), s, file, page, pageSize, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&issuePath, "issue", "i", "", "IssueRecord JSON file (required)")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&pageSize, "page-size", 5, "Providers per page")
	_ = cmd.MarkFlagRequired("issue")
	return cmd
}
