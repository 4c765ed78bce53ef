package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpattn/chronicle/internal/db"
	"github.com/rpattn/chronicle/internal/domain"
	"github.com/rpattn/chronicle/internal/repository"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.RunMigrations(a.config.Database); err != nil {
				return err
			}
			a.logger.Info("migrations applied",
				"host", a.config.Database.Host, "database", a.config.Database.DBName)
			fmt.Println("migrations applied")
			return nil
		},
	}
}

// defaultEntityTypes are the codes seeded out of the box. Seeding is
// idempotent and re-runnable.
var defaultEntityTypes = []domain.EntityType{
	{Code: "PERSON", Name: "Natural person", IsActive: true},
	{Code: "INSTITUTION", Name: "Legal entity / institution", IsActive: true},
}

func newSeedTypesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-types",
		Short: "Seed the default entity types (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := a.connect(ctx)
			if err != nil {
				return err
			}
			types := repository.NewEntityTypeRepository(conn.Pool)
			for _, t := range defaultEntityTypes {
				if _, err := types.Upsert(ctx, t); err != nil {
					return fmt.Errorf("seed entity type %s: %w", t.Code, err)
				}
			}
			a.logger.Info("entity types seeded", "count", len(defaultEntityTypes))
			fmt.Printf("seeded %d entity types\n", len(defaultEntityTypes))
			return nil
		},
	}
}
