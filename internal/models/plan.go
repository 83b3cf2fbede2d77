package models

import (
	"strings"
	"time"

	"nutriplan/internal/errs"
)

// MacroSummary is the kcal/macro total for one meal or one day.
type MacroSummary struct {
	Kcal     int     `json:"kcal"`
	ProteinG float64 `json:"protein_g"`
	FatG     float64 `json:"fat_g"`
	CarbsG   float64 `json:"carbs_g"`
}

type Meal struct {
	Name        string       `json:"name"`
	Ingredients []string     `json:"ingredients"`
	Preparation string       `json:"preparation"`
	Summary     MacroSummary `json:"summary"`
}

type DayPlan struct {
	Day     int          `json:"day"`
	Summary MacroSummary `json:"summary"`
	Meals   []Meal       `json:"meals"`
}

// PlanContent is the structured body of a meal plan. Exclusions lists
// common allergens/ingredients excluded across all days of a multi-day plan.
type PlanContent struct {
	Days       []DayPlan `json:"days"`
	Exclusions []string  `json:"exclusions,omitempty"`
}

// MealPlan is a persisted plan derived from an accepted chat session or
// created directly. Owned exclusively by one user.
type MealPlan struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Name      string      `json:"name"`
	Content   PlanContent `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Validate rejects structurally empty plan content.
func (p *PlanContent) Validate() error {
	if len(p.Days) == 0 {
		return errs.Validationf("plan must contain at least one day")
	}
	for i, day := range p.Days {
		if len(day.Meals) == 0 {
			return errs.Validationf("day %d has no meals", i+1)
		}
		for j, meal := range day.Meals {
			if strings.TrimSpace(meal.Name) == "" {
				return errs.Validationf("day %d meal %d has no name", i+1, j+1)
			}
		}
	}
	return nil
}
