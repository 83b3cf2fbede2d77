package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"nutriplan/internal/errs"
	"nutriplan/internal/models"
)

// CreatePlan stores a new meal plan for the user.
func (s *Service) CreatePlan(ctx context.Context, userID int64, name string, content *models.PlanContent) (*models.MealPlan, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.Validationf("plan name is required")
	}
	if content == nil {
		return nil, errs.Validationf("plan content is required")
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, errs.Validationf("encode plan content: %v", err)
	}
	now := time.Now().UTC()
	id, err := s.db.InsertReturningID(ctx,
		`INSERT INTO meal_plans (user_id, name, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		userID, name, string(contentJSON), now, now,
	)
	if err != nil {
		return nil, errs.Database("create plan", err)
	}
	return &models.MealPlan{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Content:   *content,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ListPlans returns the user's plans, most recently updated first.
func (s *Service) ListPlans(ctx context.Context, userID int64) ([]models.MealPlan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, content, created_at, updated_at FROM meal_plans WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, errs.Database("list plans", err)
	}
	defer rows.Close()

	var plans []models.MealPlan
	for rows.Next() {
		var (
			plan        models.MealPlan
			contentJSON string
		)
		if err := rows.Scan(&plan.ID, &plan.UserID, &plan.Name, &contentJSON, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
			return nil, errs.Database("scan plan", err)
		}
		if err := json.Unmarshal([]byte(contentJSON), &plan.Content); err != nil {
			return nil, errs.Database("decode plan content", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("iterate plans", err)
	}
	return plans, nil
}

// GetPlan loads one plan owned by the user.
func (s *Service) GetPlan(ctx context.Context, userID, planID int64) (*models.MealPlan, error) {
	var (
		plan        models.MealPlan
		contentJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, content, created_at, updated_at FROM meal_plans WHERE id = ? AND user_id = ?`,
		planID, userID,
	).Scan(&plan.ID, &plan.UserID, &plan.Name, &contentJSON, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("plan not found")
		}
		return nil, errs.Database("get plan", err)
	}
	if err := json.Unmarshal([]byte(contentJSON), &plan.Content); err != nil {
		return nil, errs.Database("decode plan content", err)
	}
	return &plan, nil
}

// UpdatePlan replaces the name and/or content of an owned plan. An empty
// name keeps the current one; nil content keeps the current content.
func (s *Service) UpdatePlan(ctx context.Context, userID, planID int64, name string, content *models.PlanContent) (*models.MealPlan, error) {
	plan, err := s.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		plan.Name = name
	}
	if content != nil {
		if err := content.Validate(); err != nil {
			return nil, err
		}
		plan.Content = *content
	}
	contentJSON, err := json.Marshal(&plan.Content)
	if err != nil {
		return nil, errs.Validationf("encode plan content: %v", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE meal_plans SET name = ?, content = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		plan.Name, string(contentJSON), now, planID, userID,
	)
	if err != nil {
		return nil, errs.Database("update plan", err)
	}
	plan.UpdatedAt = now
	return plan, nil
}

// DeletePlan removes an owned plan.
func (s *Service) DeletePlan(ctx context.Context, userID, planID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meal_plans WHERE id = ? AND user_id = ?`, planID, userID)
	if err != nil {
		return errs.Database("delete plan", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Database("plan rows affected", err)
	}
	if affected == 0 {
		return errs.NotFound("plan not found")
	}
	return nil
}

// LatestAssistantMessage returns the most recent assistant reply in an
// owned session, used when saving a plan straight from the conversation.
func (s *Service) LatestAssistantMessage(ctx context.Context, userID, sessionID int64) (string, error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return "", err
	}
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM messages WHERE session_id = ? AND role = ? ORDER BY id DESC LIMIT 1`,
		sessionID, models.RoleAssistant,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errs.NotFound("session has no assistant reply")
		}
		return "", errs.Database("latest assistant message", err)
	}
	return content, nil
}
