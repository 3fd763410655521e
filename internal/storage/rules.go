package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

// CreateRule stores a new rule and assigns its ID.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.ReconciliationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := validateString(rule.UserID, "userID"); err != nil {
		return err
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode rule conditions: %w", err)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = rule.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_rules (
			user_id, name, description, conditions, priority,
			is_active, times_used, last_used_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rule.UserID,
		rule.Name,
		rule.Description,
		string(conditions),
		rule.Priority,
		rule.IsActive,
		rule.TimesUsed,
		rule.LastUsedAt,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}
	rule.ID = id
	return nil
}

// GetRule retrieves a rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.ReconciliationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, conditions, priority,
			is_active, times_used, last_used_at, created_at, updated_at
		FROM reconciliation_rules
		WHERE id = ?
	`, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// GetActiveRules returns a user's active rules, highest priority first.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context, userID string) ([]model.ReconciliationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, description, conditions, priority,
			is_active, times_used, last_used_at, created_at, updated_at
		FROM reconciliation_rules
		WHERE user_id = ? AND is_active = 1
		ORDER BY priority DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.ReconciliationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// DeleteRule removes a rule.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM reconciliation_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("rule %d", id))
}

// RecordRuleUsage increments a rule's usage counter.
func (s *SQLiteStorage) RecordRuleUsage(ctx context.Context, id int64, usedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.recordRuleUsageTx(ctx, s.db, id, usedAt)
}

func (s *SQLiteStorage) recordRuleUsageTx(ctx context.Context, q queryable, id int64, usedAt time.Time) error {
	result, err := q.ExecContext(ctx, `
		UPDATE reconciliation_rules
		SET times_used = times_used + 1, last_used_at = ?
		WHERE id = ?
	`, usedAt, id)
	if err != nil {
		return fmt.Errorf("failed to record rule usage: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("rule %d", id))
}

func scanRule(row rowScanner) (*model.ReconciliationRule, error) {
	var (
		rule       model.ReconciliationRule
		conditions string
		lastUsedAt sql.NullTime
	)
	if err := row.Scan(
		&rule.ID,
		&rule.UserID,
		&rule.Name,
		&rule.Description,
		&conditions,
		&rule.Priority,
		&rule.IsActive,
		&rule.TimesUsed,
		&lastUsedAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("%w: rule %d conditions: %v", ErrInvalidStoredRecord, rule.ID, err)
	}
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		rule.LastUsedAt = &t
	}
	return &rule, nil
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	return nil
}
