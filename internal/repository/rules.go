package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
)

// RuleRepository stores shipping rules. The condition_value and
// shipping_methods columns are JSONB and are decoded into native structures
// before a rule leaves this package; the rule engine never sees raw JSON.
type RuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `id, name, rule_type, condition_type, condition_value, discount_type,
	discount_value, shipping_methods, production_days, priority, active, created_at, updated_at`

// ActiveRules returns active rules sorted ascending by priority, the exact
// order the engine evaluates them in.
func (r *RuleRepository) ActiveRules(ctx context.Context) ([]models.ShippingRule, error) {
	return r.query(ctx, `SELECT `+ruleColumns+` FROM shipping_rules WHERE active = true ORDER BY priority ASC`)
}

func (r *RuleRepository) List(ctx context.Context) ([]models.ShippingRule, error) {
	return r.query(ctx, `SELECT `+ruleColumns+` FROM shipping_rules ORDER BY priority ASC, id ASC`)
}

func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*models.ShippingRule, error) {
	rules, err := r.query(ctx, `SELECT `+ruleColumns+` FROM shipping_rules WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return &rules[0], nil
}

func (r *RuleRepository) Create(ctx context.Context, rule *models.ShippingRule) error {
	condition, methods, err := encodeRuleJSON(rule)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	query := `INSERT INTO shipping_rules
			(name, rule_type, condition_type, condition_value, discount_type, discount_value,
			 shipping_methods, production_days, priority, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`
	err = r.db.QueryRowContext(ctx, query,
		rule.Name, rule.RuleType, rule.ConditionType, condition, rule.DiscountType,
		rule.DiscountValue, methods, rule.ProductionDays, rule.Priority, rule.Active, now, now,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

func (r *RuleRepository) Update(ctx context.Context, rule *models.ShippingRule) error {
	condition, methods, err := encodeRuleJSON(rule)
	if err != nil {
		return err
	}
	query := `UPDATE shipping_rules SET
			name=$1, rule_type=$2, condition_type=$3, condition_value=$4, discount_type=$5,
			discount_value=$6, shipping_methods=$7, production_days=$8, priority=$9, active=$10,
			updated_at=NOW()
		WHERE id=$11`
	res, err := r.db.ExecContext(ctx, query,
		rule.Name, rule.RuleType, rule.ConditionType, condition, rule.DiscountType,
		rule.DiscountValue, methods, rule.ProductionDays, rule.Priority, rule.Active, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shipping_rules WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.ShippingRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.ShippingRule
	for rows.Next() {
		var rule models.ShippingRule
		var condition, methods []byte
		err := rows.Scan(
			&rule.ID, &rule.Name, &rule.RuleType, &rule.ConditionType, &condition,
			&rule.DiscountType, &rule.DiscountValue, &methods, &rule.ProductionDays,
			&rule.Priority, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if len(condition) > 0 {
			if err := json.Unmarshal(condition, &rule.Condition); err != nil {
				return nil, fmt.Errorf("rule %d: decode condition_value: %w", rule.ID, err)
			}
		}
		if len(methods) > 0 {
			if err := json.Unmarshal(methods, &rule.ShippingMethods); err != nil {
				return nil, fmt.Errorf("rule %d: decode shipping_methods: %w", rule.ID, err)
			}
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func encodeRuleJSON(rule *models.ShippingRule) ([]byte, []byte, error) {
	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return nil, nil, fmt.Errorf("encode condition_value: %w", err)
	}
	var methods []byte
	if rule.ShippingMethods != nil {
		methods, err = json.Marshal(rule.ShippingMethods)
		if err != nil {
			return nil, nil, fmt.Errorf("encode shipping_methods: %w", err)
		}
	}
	return condition, methods, nil
}
