package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/mygit/pkg/object"
	"github.com/odvcencio/mygit/pkg/repo"
)

const logDateLayout = "2006-01-02 15:04:05 -0700"

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show commit history from HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}

			iter, err := r.Log()
			if errors.Is(err, repo.ErrNoCommits) {
				fmt.Fprintln(cmd.OutOrStdout(), "no commits yet")
				return nil
			}
			if err != nil {
				return err
			}

			branchName, err := r.CurrentBranch()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			shown := 0
			var headHash object.Hash
			return iter.ForEach(func(e repo.LogEntry) error {
				if limit > 0 && shown >= limit {
					return repo.ErrStop
				}
				if shown == 0 {
					headHash = e.Hash
				}
				shown++

				c := e.Commit
				decoration := buildDecoration(e.Hash, headHash, branchName)
				if oneline {
					subject, _, _ := strings.Cut(c.Message, "\n")
					if decoration != "" {
						fmt.Fprintf(out, "%s %s %s\n", e.Hash.Short(), decoration, subject)
					} else {
						fmt.Fprintf(out, "%s %s\n", e.Hash.Short(), subject)
					}
					return nil
				}

				if decoration != "" {
					fmt.Fprintf(out, "commit %s %s\n", e.Hash, decoration)
				} else {
					fmt.Fprintf(out, "commit %s\n", e.Hash)
				}
				fmt.Fprintf(out, "Author: %s\n", c.Author)
				fmt.Fprintf(out, "Date:   %s\n", time.Unix(c.Timestamp, 0).Format(logDateLayout))
				fmt.Fprintln(out)
				for _, line := range strings.Split(c.Message, "\n") {
					fmt.Fprintf(out, "    %s\n", line)
				}
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of commits to show (0 = all)")
	return cmd
}

// buildDecoration returns "(HEAD -> branch)" or "(HEAD)" for the commit HEAD
// points at, and "" for every other commit.
func buildDecoration(commitHash, headHash object.Hash, branchName string) string {
	if commitHash != headHash {
		return ""
	}
	if branchName != "" {
		return "(HEAD -> " + branchName + ")"
	}
	return "(HEAD)"
}
