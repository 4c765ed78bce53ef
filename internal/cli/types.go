package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpattn/chronicle/internal/repository"
)

func newTypesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "Manage the entity type lookup",
	}
	cmd.AddCommand(newTypesListCmd(a))
	cmd.AddCommand(newTypesDeleteCmd(a))
	return cmd
}

func newTypesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entity types",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			types, err := repository.NewEntityTypeRepository(conn.Pool).List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(types)
		},
	}
}

func newTypesDeleteCmd(a *app) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an unreferenced entity type",
		Long: "Remove an entity type that no version row points at. A type\n" +
			"still referenced by history cannot be deleted; deactivate it by\n" +
			"re-seeding with is_active false instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if code == "" {
				return fmt.Errorf("--code is required")
			}
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := repository.NewEntityTypeRepository(conn.Pool).Delete(cmd.Context(), code); err != nil {
				return err
			}
			fmt.Printf("deleted entity type %s\n", code)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "entity type code")
	return cmd
}
