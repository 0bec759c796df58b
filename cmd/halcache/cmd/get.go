package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/halcache"
)

var getCmd = &cobra.Command{
	Use:   "get [uri]",
	Short: "Fetch an entity",
	Long: "Fetch an entity from the cache or the API and print it as JSON. Without a URI the API root is used. " +
		"Relations given with --follow are followed in order.",
	Args: cobra.MaximumNArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().Bool("reload", false, "refetch even if cached")
	getCmd.Flags().StringSlice("follow", nil, "relations to follow, in order")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	reload, _ := cmd.Flags().GetBool("reload")
	follow, _ := cmd.Flags().GetStringSlice("follow")

	return withSession(func(ctx context.Context, s *session) error {
		v, err := resolve(ctx, s, args, reload, follow)
		if err != nil {
			return err
		}
		return printJSON(v)
	})
}

// resolve loads the target named by args and follows rels from it.
func resolve(ctx context.Context, s *session, args []string, reload bool, rels []string) (halcache.View, error) {
	target := ""
	if len(args) > 0 {
		target = args[0]
	}

	var opts []halcache.GetOption
	if reload {
		opts = append(opts, halcache.WithForceReload())
	}
	v, err := s.cache.Get(target, opts...)
	if err != nil {
		return nil, err
	}
	for _, rel := range rels {
		v = v.Rel(rel)
	}

	v, err = v.Load().Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", target, err)
	}
	return v, nil
}
