package oracles

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"associateflow/stage"
)

type Oracle struct {
	Name string
	SQL  string
}

// stageArray renders the pipeline order as a SQL text array literal so
// array_position yields 1-based stage indexes.
func stageArray() string {
	quoted := make([]string, 0, stage.Count)
	for _, s := range stage.Ordered() {
		quoted = append(quoted, "'"+strings.ReplaceAll(string(s), "'", "''")+"'")
	}
	return "ARRAY[" + strings.Join(quoted, ",") + "]::text[]"
}

func All() []Oracle {
	order := stageArray()
	return []Oracle{
		{
			Name: "O1_timeline_seq_gapless",
			SQL: `SELECT associate_id, COUNT(*), MAX(seq) FROM associate_timeline_events
                  GROUP BY associate_id HAVING COUNT(*) <> MAX(seq)`,
		},
		{
			Name: "O2_no_forward_skip",
			SQL: fmt.Sprintf(`SELECT id, payload FROM associate_timeline_events
                  WHERE type = 'ASSOCIATE_STAGE_CHANGED'
                    AND array_position(%[1]s, payload->>'previous_stage') IS NOT NULL
                    AND array_position(%[1]s, payload->>'next_stage') >
                        array_position(%[1]s, payload->>'previous_stage') + 1`, order),
		},
		{
			Name: "O3_unpaid_in_legal_review",
			SQL: fmt.Sprintf(`SELECT e.id, e.associate_id FROM associate_timeline_events e
                  JOIN associates a ON a.id = e.associate_id
                  WHERE e.payload->>'next_stage' = '%s' AND a.contribution_paid = false`, stage.PendingLegal),
		},
		{
			Name: "O4_stage_matches_latest_event",
			SQL: `SELECT a.id, a.stage, e.payload->>'next_stage' FROM associates a
                  JOIN LATERAL (
                      SELECT payload FROM associate_timeline_events
                      WHERE associate_id = a.id ORDER BY seq DESC LIMIT 1
                  ) e ON true
                  WHERE a.stage <> e.payload->>'next_stage'`,
		},
		{
			Name: "O5_outbox_per_transition",
			SQL: `SELECT a.id FROM associates a
                  WHERE (SELECT COUNT(*) FROM associate_timeline_events e WHERE e.associate_id = a.id)
                     <> (SELECT COUNT(*) FROM outbox o WHERE o.payload->>'associate_id' = a.id)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
