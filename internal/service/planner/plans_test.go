package planner

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"nutriplan/internal/errs"
	"nutriplan/internal/models"
)

func testPlanContent() *models.PlanContent {
	return &models.PlanContent{
		Days: []models.DayPlan{{
			Day:     1,
			Summary: models.MacroSummary{Kcal: 2100, ProteinG: 158, FatG: 70, CarbsG: 210},
			Meals: []models.Meal{{
				Name:        "Oatmeal with berries",
				Ingredients: []string{"80 g oats", "200 ml milk", "100 g blueberries"},
				Preparation: "Simmer oats in milk, top with berries.",
				Summary:     models.MacroSummary{Kcal: 450, ProteinG: 18, FatG: 10, CarbsG: 70},
			}},
		}},
		Exclusions: []string{"peanuts"},
	}
}

func TestPlanCRUD(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "alice@example.com")

	plan, err := svc.CreatePlan(ctx, user.ID, "Cutting week", testPlanContent())
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if plan.ID <= 0 || plan.Name != "Cutting week" {
		t.Fatalf("unexpected plan: %+v", plan)
	}

	got, err := svc.GetPlan(ctx, user.ID, plan.ID)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if len(got.Content.Days) != 1 || got.Content.Days[0].Meals[0].Name != "Oatmeal with berries" {
		t.Fatalf("content round trip failed: %+v", got.Content)
	}

	updated, err := svc.UpdatePlan(ctx, user.ID, plan.ID, "Cutting week v2", nil)
	if err != nil {
		t.Fatalf("update plan: %v", err)
	}
	if updated.Name != "Cutting week v2" {
		t.Fatalf("name not updated: %q", updated.Name)
	}
	if len(updated.Content.Days) != 1 {
		t.Fatalf("nil content overwrote existing content")
	}

	plans, err := svc.ListPlans(ctx, user.ID)
	if err != nil {
		t.Fatalf("list plans: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(plans))
	}

	if err := svc.DeletePlan(ctx, user.ID, plan.ID); err != nil {
		t.Fatalf("delete plan: %v", err)
	}
	if _, err := svc.GetPlan(ctx, user.ID, plan.ID); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("deleted plan still readable: %v", err)
	}
}

func TestPlanOwnership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := registerTestUser(t, svc, "bob@example.com")
	intruder := registerTestUser(t, svc, "carol@example.com")

	plan, err := svc.CreatePlan(ctx, owner.ID, "Private plan", testPlanContent())
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	if _, err := svc.GetPlan(ctx, intruder.ID, plan.ID); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("foreign get: expected not found, got %v", err)
	}
	if _, err := svc.UpdatePlan(ctx, intruder.ID, plan.ID, "stolen", nil); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("foreign update: expected not found, got %v", err)
	}
	if err := svc.DeletePlan(ctx, intruder.ID, plan.ID); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("foreign delete: expected not found, got %v", err)
	}
	if _, err := svc.GetPlan(ctx, owner.ID, plan.ID); err != nil {
		t.Fatalf("owner lost access: %v", err)
	}
}

func TestCreatePlanValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "dora@example.com")

	if _, err := svc.CreatePlan(ctx, user.ID, "  ", testPlanContent()); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("blank name: expected validation error, got %v", err)
	}
	if _, err := svc.CreatePlan(ctx, user.ID, "Empty", &models.PlanContent{}); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("empty content: expected validation error, got %v", err)
	}
}

func TestExportPlanJSON(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "erin@example.com")
	plan, err := svc.CreatePlan(ctx, user.ID, "Export me", testPlanContent())
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	data, err := svc.ExportPlanJSON(ctx, user.ID, plan.ID)
	if err != nil {
		t.Fatalf("export json: %v", err)
	}
	var decoded models.MealPlan
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid json: %v", err)
	}
	if decoded.Name != "Export me" || len(decoded.Content.Days) != 1 {
		t.Fatalf("export content wrong: %+v", decoded)
	}
}

func TestExportPlanMarkdown(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "finn@example.com")
	plan, err := svc.CreatePlan(ctx, user.ID, "Week one", testPlanContent())
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	doc, err := svc.ExportPlanMarkdown(ctx, user.ID, plan.ID)
	if err != nil {
		t.Fatalf("export markdown: %v", err)
	}
	for _, want := range []string{"# Week one", "## Day 1", "### Oatmeal with berries", "- 80 g oats", "peanuts"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("markdown missing %q:\n%s", want, doc)
		}
	}
}

func TestLatestAssistantMessage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user := registerTestUser(t, svc, "gina@example.com")
	session, err := svc.CreateSessionWithExchange(ctx, user.ID, testStartup(), "t", "sys", "first reply")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := svc.LatestAssistantMessage(ctx, user.ID, session.ID)
	if err != nil {
		t.Fatalf("latest assistant: %v", err)
	}
	if got != "first reply" {
		t.Fatalf("unexpected reply: %q", got)
	}

	if _, _, _, err := svc.AppendExchange(ctx, user.ID, session.ID, "more", "second reply"); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err = svc.LatestAssistantMessage(ctx, user.ID, session.ID)
	if err != nil {
		t.Fatalf("latest assistant after append: %v", err)
	}
	if got != "second reply" {
		t.Fatalf("stale reply returned: %q", got)
	}

	other := registerTestUser(t, svc, "hank@example.com")
	if _, err := svc.LatestAssistantMessage(ctx, other.ID, session.ID); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("foreign session: expected not found, got %v", err)
	}
}
