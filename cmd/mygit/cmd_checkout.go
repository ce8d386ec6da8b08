package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/mygit/pkg/repo"
)

func newCheckoutCmd() *cobra.Command {
	var force bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "checkout <digest|branch>",
		Short: "Replace the working tree with a commit's snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]

			r, err := openRepo(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				plan, err := r.PlanCheckout(target)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "would check out %s\n", plan.Commit)
				if plan.Dirty {
					fmt.Fprintln(out, "working tree has uncommitted changes")
				}
				for _, p := range plan.Remove {
					fmt.Fprintf(out, "remove %s\n", p)
				}
				for _, p := range plan.Write {
					fmt.Fprintf(out, "write  %s\n", p)
				}
				return nil
			}

			if err := r.Checkout(target, repo.CheckoutOptions{Force: force}); err != nil {
				return err
			}

			branch, err := r.CurrentBranch()
			if err != nil {
				return err
			}
			if branch != "" {
				fmt.Fprintf(out, "switched to branch '%s'\n", branch)
				return nil
			}
			head, err := r.HeadCommit()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "HEAD is now at %s (detached)\n", head.Short())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "discard uncommitted changes in the working tree")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would change without touching the working tree")
	return cmd
}
