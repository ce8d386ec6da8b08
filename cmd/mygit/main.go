package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/mygit/pkg/log"
	"github.com/odvcencio/mygit/pkg/repo"
)

const (
	version         = "0.1.0-dev"
	defaultLogLevel = "warn"
)

// ErrInvalidFlag reports a missing, unknown or conflicting command flag.
var ErrInvalidFlag = errors.New("invalid flag")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	// verbose forces debug logging regardless of core.log_level.
	var verbose bool

	root := &cobra.Command{
		Use:           "mygit",
		Short:         "A minimal content-addressed version control system",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				return log.SetLevel("debug")
			}
			return log.SetLevel(defaultLogLevel)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug diagnostics to stderr")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrInvalidFlag, err)
	})

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newHashObjectCmd())
	root.AddCommand(newCatFileCmd())
	root.AddCommand(newWriteTreeCmd())
	root.AddCommand(newLsTreeCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newCommitCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newCheckoutCmd())
	root.AddCommand(newReflogCmd())
	return root
}

// openRepo opens the repository containing the current directory and
// applies its configured log level unless --verbose was given.
func openRepo(cmd *cobra.Command) (*repo.Repo, error) {
	r, err := repo.Open(".")
	if err != nil {
		return nil, err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}
	if !verbose && r.Config.Core.LogLevel != "" {
		if err := log.SetLevel(r.Config.Core.LogLevel); err != nil {
			return nil, fmt.Errorf("core.log_level: %w", err)
		}
	}
	return r, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mygit "+version)
		},
	}
}
