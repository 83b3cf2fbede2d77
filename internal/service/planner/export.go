package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"nutriplan/internal/errs"
)

// ExportPlanJSON renders an owned plan as indented JSON.
func (s *Service) ExportPlanJSON(ctx context.Context, userID, planID int64) ([]byte, error) {
	plan, err := s.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, errs.Database("encode plan export", err)
	}
	return data, nil
}

// ExportPlanMarkdown renders an owned plan as a printable Markdown
// document.
func (s *Service) ExportPlanMarkdown(ctx context.Context, userID, planID int64) (string, error) {
	plan, err := s.GetPlan(ctx, userID, planID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", plan.Name)
	if len(plan.Content.Exclusions) > 0 {
		fmt.Fprintf(&b, "Excluded ingredients: %s\n\n", strings.Join(plan.Content.Exclusions, ", "))
	}
	for _, day := range plan.Content.Days {
		fmt.Fprintf(&b, "## Day %d\n\n", day.Day)
		fmt.Fprintf(&b, "Total: %d kcal, %.1f g protein, %.1f g fat, %.1f g carbs\n\n",
			day.Summary.Kcal, day.Summary.ProteinG, day.Summary.FatG, day.Summary.CarbsG)
		for _, meal := range day.Meals {
			fmt.Fprintf(&b, "### %s\n\n", meal.Name)
			if len(meal.Ingredients) > 0 {
				for _, ing := range meal.Ingredients {
					fmt.Fprintf(&b, "- %s\n", ing)
				}
				b.WriteString("\n")
			}
			if meal.Preparation != "" {
				fmt.Fprintf(&b, "%s\n\n", meal.Preparation)
			}
			fmt.Fprintf(&b, "%d kcal, %.1f g protein, %.1f g fat, %.1f g carbs\n\n",
				meal.Summary.Kcal, meal.Summary.ProteinG, meal.Summary.FatG, meal.Summary.CarbsG)
		}
	}
	return b.String(), nil
}
