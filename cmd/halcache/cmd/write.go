package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <collection-uri> <json|@file>",
	Short: "Create an entity in a collection",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreate,
}

var updateCmd = &cobra.Command{
	Use:   "update <uri> <json|@file>",
	Short: "Update fields of an entity",
	Args:  cobra.ExactArgs(2),
	RunE:  runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <uri>",
	Short: "Delete an entity",
	Long:  "Delete an entity and reload every cached entity that referenced it.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(createCmd, updateCmd, deleteCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	body, err := parseBody(args[1])
	if err != nil {
		return err
	}
	return withSession(func(ctx context.Context, s *session) error {
		v, err := s.cache.Create(ctx, args[0], body)
		if err != nil {
			return err
		}
		if v == nil {
			fmt.Fprintln(os.Stderr, "(no content)")
			return nil
		}
		return printJSON(v)
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	body, err := parseBody(args[1])
	if err != nil {
		return err
	}
	return withSession(func(ctx context.Context, s *session) error {
		v, err := s.cache.Update(ctx, args[0], body)
		if err != nil {
			return err
		}
		return printJSON(v)
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withSession(func(ctx context.Context, s *session) error {
		if err := s.cache.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Deleted %s\n", args[0])
		return nil
	})
}
