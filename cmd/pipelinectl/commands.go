package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"associateflow/associate"
	"associateflow/migrations"
	"associateflow/source"
	"associateflow/stage"
)

func newStagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "Show the ordered pipeline stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderStages())
			return nil
		},
	}
}

func renderStages() string {
	rows := make([][]string, 0, stage.Count)
	for i, st := range stage.Ordered() {
		next := "-"
		if n, ok := stage.Next(string(st)); ok {
			next = string(n)
		}
		rows = append(rows, []string{strconv.Itoa(i), st.Code(), string(st), next})
	}
	return renderTable([]string{"#", "Code", "Stage", "Next"}, rows, []columnAlignment{alignRight})
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				files, err := migrations.Files()
				if err != nil {
					return err
				}
				for _, f := range files {
					if _, err := pool.Exec(cmd.Context(), f.SQL); err != nil {
						return fmt.Errorf("apply %s: %w", f.Name, err)
					}
					ctx.logger.Info("migration applied", "file", f.Name)
				}
				return nil
			})
		},
	}
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var demo bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load associates from the upstream list into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var records []associate.Record
			if demo {
				records = source.Fixtures()
			} else {
				records, err = source.NewClient(cfg.SourceURL, cfg.FetchTimeout).Fetch(cmd.Context())
				if err != nil {
					if errors.Is(err, source.ErrFetch) {
						return fmt.Errorf("%w (use --demo to load demonstration data)", err)
					}
					return err
				}
			}

			return ctx.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				n, err := associate.NewImporter(associate.NewRepository(pool), cfg.ImportConcurrency, ctx.logger).Import(cmd.Context(), records)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d associates\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "Load the built-in demonstration associates instead of fetching")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		stageFilter string
		limit       int
		offset      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List associates sorted by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stageFilter != "" && !stage.IsValid(stageFilter) {
				return fmt.Errorf("%w: %q", stage.ErrUnknown, stageFilter)
			}
			if limit < 0 || offset < 0 {
				return fmt.Errorf("limit and offset must not be negative")
			}
			return ctx.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				filters := associate.ListFilters{Stage: stageFilter, Limit: limit, Offset: offset}
				records, total, err := associate.NewService(associate.NewRepository(pool)).List(cmd.Context(), filters)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderAssociates(records))
				fmt.Fprintln(cmd.OutOrStdout(), pageSummary(len(records), offset, total))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stageFilter, "stage", "", "Only show associates in this stage")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum associates to show (0 shows all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Associates to skip before the first one shown")
	return cmd
}

func pageSummary(shown, offset, total int) string {
	if shown == 0 {
		return fmt.Sprintf("Showing 0 of %d associates", total)
	}
	return fmt.Sprintf("Showing %d-%d of %d associates", offset+1, offset+shown, total)
}

func renderAssociates(records []associate.Record) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		paid := "no"
		if rec.ContributionPaid {
			paid = "yes"
		}
		updated := "-"
		if rec.LastUpdated != nil {
			updated = rec.LastUpdated.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{rec.ID, rec.Name, rec.IdentificationCode, rec.Stage, paid, updated})
	}
	return renderTable([]string{"ID", "Name", "Identification", "Stage", "Paid", "Updated"}, rows, nil)
}

func newAdvanceCommand(ctx *commandContext) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "advance <id> [stage]",
		Short: "Move an associate to a stage (defaults to the next one)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return ctx.withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				repo := associate.NewRepository(pool)

				target := ""
				if len(args) == 2 {
					target = args[1]
				} else {
					rec, err := repo.Get(cmd.Context(), id)
					if err != nil {
						return err
					}
					next, ok := stage.Next(rec.Stage)
					if !ok {
						return fmt.Errorf("associate %s has no next stage from %q", id, rec.Stage)
					}
					target = string(next)
				}

				res, err := associate.NewTransitionService(pool, repo, ctx.logger).Transition(cmd.Context(), associate.TransitionRequest{
					AssociateID: id,
					Stage:       target,
					ActorID:     actor,
				})
				if err != nil {
					return err
				}
				if !res.Accepted {
					return res.Err()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", res.Message, id, res.Record.Stage)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "Operator recorded on the timeline event")
	return cmd
}
