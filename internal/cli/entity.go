package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rpattn/chronicle/internal/domain"
	"github.com/rpattn/chronicle/internal/query"
	"github.com/rpattn/chronicle/internal/repository"
	"github.com/rpattn/chronicle/internal/scd2"
)

func newEntityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Write and inspect entity versions",
	}
	cmd.AddCommand(newEntityUpsertCmd(a))
	cmd.AddCommand(newEntityCloseCmd(a))
	cmd.AddCommand(newEntityHistoryCmd(a))
	return cmd
}

func (a *app) service(cmd *cobra.Command) (*scd2.Service, error) {
	conn, err := a.connect(cmd.Context())
	if err != nil {
		return nil, err
	}
	store := repository.NewStore(conn)
	return scd2.NewService(store, scd2.StoreAuditSink{}, a.logger), nil
}

// parseUID accepts an empty flag as "mint a new logical key".
func parseUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	uid, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --uid %q: %w", raw, err)
	}
	return uid, nil
}

func requireUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("--uid is required")
	}
	return parseUID(raw)
}

func newEntityUpsertCmd(a *app) *cobra.Command {
	var rawUID, name, typeCode, rawTS string

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or version an entity",
		Long: "Record the state of an entity as delivered by a source system.\n" +
			"An unchanged payload is a no-op; a changed one closes the open\n" +
			"version and opens a new one. Omit --uid to mint a new entity.",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(rawUID)
			if err != nil {
				return err
			}
			changeTS, err := parseOptionalInstant(rawTS)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			result, err := svc.UpsertEntity(cmd.Context(), scd2.EntityInput{
				EntityUID:   uid,
				DisplayName: name,
				TypeCode:    typeCode,
				ChangeTS:    changeTS,
				Actor:       a.actor,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&rawUID, "uid", "", "logical entity key (omit to create)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&typeCode, "type", "", "entity type code")
	cmd.Flags().StringVar(&rawTS, "change-ts", "", "effective instant (default: now)")
	return cmd
}

func newEntityCloseCmd(a *app) *cobra.Command {
	var rawUID, rawTS string

	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close the open version of an entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := requireUID(rawUID)
			if err != nil {
				return err
			}
			changeTS, err := parseOptionalInstant(rawTS)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			result, err := svc.CloseEntity(cmd.Context(), uid, changeTS, a.actor)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&rawUID, "uid", "", "logical entity key")
	cmd.Flags().StringVar(&rawTS, "change-ts", "", "effective instant (default: now)")
	return cmd
}

func newEntityHistoryCmd(a *app) *cobra.Command {
	var rawUID string
	var asDiff bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List every version of an entity and its details",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := requireUID(rawUID)
			if err != nil {
				return err
			}
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			history, err := query.NewEngine(conn).History(cmd.Context(), uid)
			if err != nil {
				return err
			}
			if asDiff {
				printHistoryDiffs(history)
				return nil
			}
			return printJSON(history)
		},
	}
	cmd.Flags().StringVar(&rawUID, "uid", "", "logical entity key")
	cmd.Flags().BoolVar(&asDiff, "diff", false, "render unified diffs between consecutive versions")
	return cmd
}

// printHistoryDiffs renders each version transition as a unified diff, for
// reading what actually changed between versions of a long-lived entity.
func printHistoryDiffs(history domain.History) {
	for i := 1; i < len(history.Versions); i++ {
		prev, next := history.Versions[i-1], history.Versions[i]
		fmt.Println(domain.RenderVersionDiff(
			versionLabel("entity", prev.ValidFrom), prev.VersionText(),
			versionLabel("entity", next.ValidFrom), next.VersionText(),
		))
	}
	grouped := detailsByCode(history.Details)
	codes := make([]string, 0, len(grouped))
	for code := range grouped {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		versions := grouped[code]
		for i := 1; i < len(versions); i++ {
			prev, next := versions[i-1], versions[i]
			fmt.Println(domain.RenderVersionDiff(
				versionLabel(code, prev.ValidFrom), prev.VersionText(),
				versionLabel(code, next.ValidFrom), next.VersionText(),
			))
		}
	}
}

func versionLabel(kind string, from time.Time) string {
	return fmt.Sprintf("%s@%s", kind, from.Format(time.RFC3339))
}

// detailsByCode groups detail versions by code, preserving the
// (detail_code, valid_from) order the history query returns.
func detailsByCode(details []domain.EntityDetail) map[string][]domain.EntityDetail {
	grouped := make(map[string][]domain.EntityDetail)
	for _, d := range details {
		grouped[d.DetailCode] = append(grouped[d.DetailCode], d)
	}
	return grouped
}

func newDetailCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detail",
		Short: "Write detail versions",
	}
	cmd.AddCommand(newDetailUpsertCmd(a))
	cmd.AddCommand(newDetailCloseCmd(a))
	return cmd
}

// parseValue reads the --value flag as JSON, falling back to a plain
// string so unquoted scalars work from the shell.
func parseValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}

func newDetailUpsertCmd(a *app) *cobra.Command {
	var rawUID, code, rawValue, rawTS string

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or version a detail of an entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := requireUID(rawUID)
			if err != nil {
				return err
			}
			changeTS, err := parseOptionalInstant(rawTS)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			result, err := svc.UpsertDetail(cmd.Context(), scd2.DetailInput{
				EntityUID:  uid,
				DetailCode: code,
				Value:      parseValue(rawValue),
				ChangeTS:   changeTS,
				Actor:      a.actor,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&rawUID, "uid", "", "logical entity key")
	cmd.Flags().StringVar(&code, "code", "", "detail code, e.g. email")
	cmd.Flags().StringVar(&rawValue, "value", "", "detail value as JSON (plain strings accepted)")
	cmd.Flags().StringVar(&rawTS, "change-ts", "", "effective instant (default: now)")
	return cmd
}

func newDetailCloseCmd(a *app) *cobra.Command {
	var rawUID, code, rawTS string

	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close the open version of a detail",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := requireUID(rawUID)
			if err != nil {
				return err
			}
			changeTS, err := parseOptionalInstant(rawTS)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			result, err := svc.CloseDetail(cmd.Context(), uid, code, changeTS, a.actor)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&rawUID, "uid", "", "logical entity key")
	cmd.Flags().StringVar(&code, "code", "", "detail code")
	cmd.Flags().StringVar(&rawTS, "change-ts", "", "effective instant (default: now)")
	return cmd
}
