package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aweris/halcache"
)

var hrefCmd = &cobra.Command{
	Use:   "href <uri> <relation>",
	Short: "Print the URI a relation points at",
	Long:  "Print the URI a relation points at. Templated relations are expanded with --param key=value.",
	Args:  cobra.ExactArgs(2),
	RunE:  runHref,
}

func init() {
	hrefCmd.Flags().StringArray("param", nil, "template parameter as key=value")
	rootCmd.AddCommand(hrefCmd)
}

func runHref(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetStringArray("param")
	params := halcache.Params{}
	for _, p := range raw {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("invalid param %q, want key=value", p)
		}
		params[k] = v
	}

	return withSession(func(ctx context.Context, s *session) error {
		href, err := s.cache.ResolveHref(ctx, args[0], args[1], params)
		if err != nil {
			return err
		}
		if href == "" {
			return fmt.Errorf("%q has no relation %q", args[0], args[1])
		}
		fmt.Println(href)
		return nil
	})
}
