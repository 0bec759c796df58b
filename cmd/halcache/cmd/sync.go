package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/halcache/internal/remote"
)

var pushCmd = &cobra.Command{
	Use:   "push <ref> [tags...]",
	Short: "Push the cache state to a registry",
	Long:  "Push the cached entities as an OCI artifact. Optionally push to additional tags.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPush,
}

var pullCmd = &cobra.Command{
	Use:   "pull <ref>",
	Short: "Pull cache state from a registry",
	Long:  "Merge a snapshot pulled from an OCI registry into the local cache state.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPull,
}

func init() {
	rootCmd.AddCommand(pushCmd, pullCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	r, err := remote.New(args[0], nil)
	if err != nil {
		return err
	}
	return withSession(func(ctx context.Context, s *session) error {
		data, err := s.cache.Snapshot()
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Pushing %d entries to %s...\n", s.cache.Len(), r)
		if err := r.Push(ctx, data); err != nil {
			return fmt.Errorf("push failed: %w", err)
		}
		for _, tag := range args[1:] {
			tr, err := r.WithTag(tag)
			if err != nil {
				return err
			}
			if err := tr.Push(ctx, data); err != nil {
				return fmt.Errorf("push %s failed: %w", tag, err)
			}
		}
		fmt.Fprintln(os.Stderr, "Done.")
		return nil
	})
}

func runPull(cmd *cobra.Command, args []string) error {
	r, err := remote.New(args[0], nil)
	if err != nil {
		return err
	}
	return withSession(func(ctx context.Context, s *session) error {
		fmt.Fprintf(os.Stderr, "Pulling %s...\n", r)
		data, err := r.Pull(ctx)
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}
		if err := s.cache.Restore(data); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Done. %d entries\n", s.cache.Len())
		return nil
	})
}
