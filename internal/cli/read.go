package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rpattn/chronicle/internal/domain"
	"github.com/rpattn/chronicle/internal/query"
	"github.com/rpattn/chronicle/internal/repository"
)

func newSnapshotCmd(a *app) *cobra.Command {
	var rawAsOf, nameContains, typeCode, detailCode, rawValue string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Reconstruct entity state as of an instant",
		Long: "Show every entity whose validity interval contains the given\n" +
			"instant, with the detail values effective at that same instant.",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf := time.Now()
			if rawAsOf != "" {
				ts, err := parseInstant(rawAsOf)
				if err != nil {
					return err
				}
				asOf = ts
			}
			filter := domain.SnapshotFilter{
				NameContains: nameContains,
				TypeCode:     typeCode,
				DetailCode:   detailCode,
			}
			if cmd.Flags().Changed("value") {
				filter.DetailValue = parseValue(rawValue)
				filter.HasDetailValue = true
			}
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			snapshots, err := query.NewEngine(conn).SnapshotAsOf(cmd.Context(), asOf, filter)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"as_of":   asOf.UTC(),
				"count":   len(snapshots),
				"results": snapshots,
			})
		},
	}
	cmd.Flags().StringVar(&rawAsOf, "as-of", "", "snapshot instant (default: now)")
	cmd.Flags().StringVar(&nameContains, "q", "", "display name substring filter")
	cmd.Flags().StringVar(&typeCode, "type", "", "entity type code filter")
	cmd.Flags().StringVar(&detailCode, "detail", "", "require a detail with this code")
	cmd.Flags().StringVar(&rawValue, "value", "", "require the detail to equal this JSON value")
	return cmd
}

func newDiffCmd(a *app) *cobra.Command {
	var rawFrom, rawTo string

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "List version transitions between two instants",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseInstant(rawFrom)
			if err != nil {
				return err
			}
			to, err := parseInstant(rawTo)
			if err != nil {
				return err
			}
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			events, err := query.NewEngine(conn).Diff(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"from":    from.UTC(),
				"to":      to.UTC(),
				"count":   len(events),
				"results": events,
			})
		},
	}
	cmd.Flags().StringVar(&rawFrom, "from", "", "window start, inclusive for opens")
	cmd.Flags().StringVar(&rawTo, "to", "", "window end, inclusive for closes")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	var rawUID string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List the audit trail of an entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := requireUID(rawUID)
			if err != nil {
				return err
			}
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			records, err := repository.NewAuditRepository(conn.Pool).ListByEntity(cmd.Context(), uid, limit)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"entity_uid": uid,
				"count":      len(records),
				"results":    records,
			})
		},
	}
	cmd.Flags().StringVar(&rawUID, "uid", "", "logical entity key")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records (default 200)")
	return cmd
}
