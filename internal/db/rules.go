package db

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/rules"
)

const listRulesSQL = `
	SELECT id, name, event_type, conditions, actions, is_active
	FROM automation_rules
	ORDER BY position
`

// A new rule goes after every existing one. The conflict branch leaves
// position alone so a replaced rule keeps its slot.
const upsertRuleSQL = `
	INSERT INTO automation_rules (id, name, event_type, conditions, actions, is_active, position)
	VALUES ($1, $2, $3, $4, $5, $6,
		(SELECT COALESCE(MAX(position), 0) + 1 FROM automation_rules))
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		event_type = EXCLUDED.event_type,
		conditions = EXCLUDED.conditions,
		actions = EXCLUDED.actions,
		is_active = EXCLUDED.is_active,
		updated_at = NOW()
`

// RuleRepository is a rules.Store on Postgres. Conditions and actions are
// JSONB; position keeps registration order across upserts.
type RuleRepository struct {
	db     *DB
	logger *zap.Logger
}

var _ rules.Store = (*RuleRepository)(nil)

func NewRuleRepository(db *DB, logger *zap.Logger) *RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

func (r *RuleRepository) List(ctx context.Context) ([]rules.Rule, error) {
	rows, err := r.db.Pool().Query(ctx, listRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var (
			row        rules.Rule
			conditions []byte
			actions    []byte
		)
		if err := rows.Scan(&row.ID, &row.Name, &row.EventType, &conditions, &actions, &row.IsActive); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if err := decodeRuleBody(&row, conditions, actions); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

// Upsert replaces an existing rule in place or appends a new one.
func (r *RuleRepository) Upsert(ctx context.Context, rule rules.Rule) error {
	conditions, actions, err := encodeRuleBody(rule)
	if err != nil {
		return err
	}

	_, err = r.db.Pool().Exec(ctx, upsertRuleSQL, rule.ID, rule.Name, rule.EventType, conditions, actions, rule.IsActive)
	if err != nil {
		r.logger.Error("failed to upsert rule", zap.String("rule_id", rule.ID), zap.Error(err))
		return fmt.Errorf("upsert rule: %w", err)
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM automation_rules WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete rule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func encodeRuleBody(rule rules.Rule) (conditions, actions []byte, err error) {
	conds := rule.Conditions
	if conds == nil {
		conds = []rules.Condition{}
	}
	acts := rule.Actions
	if acts == nil {
		acts = []rules.Action{}
	}

	if conditions, err = json.Marshal(conds); err != nil {
		return nil, nil, fmt.Errorf("encode conditions of %s: %w", rule.ID, err)
	}
	if actions, err = json.Marshal(acts); err != nil {
		return nil, nil, fmt.Errorf("encode actions of %s: %w", rule.ID, err)
	}
	return conditions, actions, nil
}

func decodeRuleBody(rule *rules.Rule, conditions, actions []byte) error {
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return fmt.Errorf("decode conditions of %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return fmt.Errorf("decode actions of %s: %w", rule.ID, err)
	}
	return nil
}
