package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/mygit/pkg/object"
	"github.com/odvcencio/mygit/pkg/repo"
)

func newCommitCmd() *cobra.Command {
	var message string
	var author string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record a snapshot of the working tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}

			var who object.Signature
			if author != "" {
				if who, err = object.ParseSignature(author); err != nil {
					return fmt.Errorf("%w: --author: %w", ErrInvalidFlag, err)
				}
			} else if who, err = r.Config.Identity(); err != nil {
				return err
			}

			h, err := r.CommitAs(message, who)
			if err != nil {
				return err
			}

			branch, err := r.CurrentBranch()
			if err != nil {
				return err
			}
			if branch == "" {
				branch = "detached HEAD"
			}
			if message == "" {
				message = repo.DefaultCommitMessage
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, h.Short(), message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", `override identity ("Name <email>")`)
	return cmd
}
