package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge [uri...]",
	Short: "Drop entities from the local cache",
	Long:  "Drop the given entities from the local cache, or everything when no URI is given. The API is not touched.",
	RunE:  runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		before := s.cache.Len()
		if len(args) == 0 {
			s.cache.PurgeAll()
		}
		for _, uri := range args {
			if err := s.cache.Purge(uri); err != nil {
				return err
			}
		}
		fmt.Fprintf(os.Stderr, "Purged %d entries, %d left\n", before-s.cache.Len(), s.cache.Len())
		return nil
	})
}
