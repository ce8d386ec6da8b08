package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/mygit/pkg/object"
	"github.com/odvcencio/mygit/pkg/repo"
)

func newHashObjectCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "hash-object [-w] <path>",
		Short: "Compute the blob digest of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("%w: %s", repo.ErrFileNotFound, args[0])
				}
				return err
			}

			h := object.HashObject(object.TypeBlob, data)
			if write {
				r, err := openRepo(cmd)
				if err != nil {
					return err
				}
				if h, err = r.Store.WriteBlob(&object.Blob{Data: data}); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "store the blob in the object store")
	return cmd
}

func newCatFileCmd() *cobra.Command {
	var pretty, kind, size bool

	cmd := &cobra.Command{
		Use:   "cat-file (-p|-t|-s) <digest>",
		Short: "Show the content, kind or size of a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, set := range []bool{pretty, kind, size} {
				if set {
					selected++
				}
			}
			if selected != 1 {
				return fmt.Errorf("%w: exactly one of -p, -t or -s is required", ErrInvalidFlag)
			}

			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			objType, content, err := r.Store.Read(object.Hash(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case pretty:
				_, err = out.Write(content)
			case kind:
				_, err = fmt.Fprintln(out, objType)
			case size:
				_, err = fmt.Fprintln(out, len(content))
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "print the object content")
	cmd.Flags().BoolVarP(&kind, "type", "t", false, "print the object kind")
	cmd.Flags().BoolVarP(&size, "size", "s", false, "print the content length in bytes")
	return cmd
}

func newWriteTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write-tree",
		Short: "Snapshot the working tree and print its tree digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			h, err := r.WriteTree()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func newLsTreeCmd() *cobra.Command {
	var nameOnly bool

	cmd := &cobra.Command{
		Use:   "ls-tree [--name-only] <digest>",
		Short: "List the entries of a tree object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			h, err := object.ParseHash(args[0])
			if err != nil {
				return err
			}
			entries, err := r.DecodeTree(h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				if nameOnly {
					fmt.Fprintln(out, e.Name)
					continue
				}
				fmt.Fprintf(out, "%s %s %s\t%s\n", padMode(e.Mode), e.Type(), e.Hash, e.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&nameOnly, "name-only", false, "print entry names only")
	return cmd
}

// padMode left-pads a tree mode with zeros to six digits.
func padMode(mode string) string {
	if len(mode) >= 6 {
		return mode
	}
	return strings.Repeat("0", 6-len(mode)) + mode
}
