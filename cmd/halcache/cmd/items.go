package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var itemsCmd = &cobra.Command{
	Use:   "items <uri>",
	Short: "List the members of a collection",
	Long:  "List the members of a collection, loading those that are not cached yet.",
	Args:  cobra.ExactArgs(1),
	RunE:  runItems,
}

func init() {
	itemsCmd.Flags().Bool("all", false, "include members that are being deleted")
	itemsCmd.Flags().StringSlice("follow", nil, "relations to follow before listing")
	rootCmd.AddCommand(itemsCmd)
}

func runItems(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	follow, _ := cmd.Flags().GetStringSlice("follow")

	return withSession(func(ctx context.Context, s *session) error {
		v, err := resolve(ctx, s, args, false, follow)
		if err != nil {
			return err
		}

		items := v.Items()
		if all {
			items = v.AllItems()
		}
		members, err := items.Load().Await(ctx)
		if err != nil {
			return fmt.Errorf("load items: %w", err)
		}

		for _, m := range members {
			fmt.Println(m.Self())
		}
		if len(members) == 0 {
			fmt.Println("(no items)")
		}
		return nil
	})
}
