package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"nutriplan/internal/errs"
	"nutriplan/internal/models"
)

// SystemPrompt renders the dietitian instructions for a new planning
// session. The reply contract is strict JSON so the plan can be stored and
// edited structurally.
func SystemPrompt(startup *models.StartupData) string {
	var b strings.Builder
	b.WriteString("You are a registered dietitian assistant. You design meal plans for the patient described below.\n\n")
	b.WriteString("Patient profile:\n")
	fmt.Fprintf(&b, "- age: %d\n", startup.PatientAge)
	fmt.Fprintf(&b, "- weight: %.1f kg\n", startup.PatientWeightKg)
	fmt.Fprintf(&b, "- height: %.1f cm\n", startup.PatientHeightCm)
	fmt.Fprintf(&b, "- sex: %s\n", startup.Sex)
	fmt.Fprintf(&b, "- activity level: %s\n", startup.ActivityLevel)
	fmt.Fprintf(&b, "- daily target: %d kcal\n", startup.TargetKcal)
	fmt.Fprintf(&b, "- macro split: %d%% protein, %d%% fat, %d%% carbohydrates\n",
		startup.Macros.ProteinPct, startup.Macros.FatPct, startup.Macros.CarbsPct)
	if len(startup.Exclusions) > 0 {
		fmt.Fprintf(&b, "- excluded ingredients: %s\n", strings.Join(startup.Exclusions, ", "))
	}
	fmt.Fprintf(&b, "- plan length: %d day(s)\n", startup.Days)
	b.WriteString("\nRules:\n")
	b.WriteString("- Never include an excluded ingredient, in any form.\n")
	b.WriteString("- Keep each day within about 5% of the kcal target and close to the macro split.\n")
	b.WriteString("- Use the nutrition_search tool when unsure about an ingredient's macros.\n")
	b.WriteString("- Use the attachment_reader tool to consult documents the patient uploaded.\n")
	b.WriteString("\nWhen asked for a plan, reply with a single JSON object and nothing else, shaped exactly like:\n")
	b.WriteString(`{"days":[{"day":1,"summary":{"kcal":0,"protein_g":0,"fat_g":0,"carbs_g":0},"meals":[{"name":"","ingredients":[""],"preparation":"","summary":{"kcal":0,"protein_g":0,"fat_g":0,"carbs_g":0}}]}],"exclusions":[""]}`)
	b.WriteString("\nFor follow-up questions that adjust the plan, reply with the full updated JSON object in the same shape.")
	return b.String()
}

// AttachmentManifest lists a session's uploaded documents so the model
// learns which file_id values the attachment_reader tool accepts. It is
// injected into the completion history, never persisted.
func AttachmentManifest(files []*models.Attachment) string {
	var b strings.Builder
	b.WriteString("Documents the patient uploaded for this session, readable with the attachment_reader tool:\n")
	for _, f := range files {
		if f == nil {
			continue
		}
		fmt.Fprintf(&b, "- file_id %d: %s\n", f.ID, f.FileName)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ParsePlanContent extracts the structured plan from a model reply. It
// tolerates markdown code fences and prose around the JSON object.
func ParsePlanContent(reply string) (*models.PlanContent, error) {
	text := strings.TrimSpace(reply)
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+3:]
		text = strings.TrimPrefix(text, "json")
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errs.Validationf("reply contains no plan object")
	}
	var content models.PlanContent
	if err := json.Unmarshal([]byte(text[start:end+1]), &content); err != nil {
		return nil, errs.Validationf("malformed plan object: %v", err)
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}
	return &content, nil
}

// SessionTitle derives a deterministic default title for a new session.
func SessionTitle(startup *models.StartupData, now time.Time) string {
	return fmt.Sprintf("%d-day plan, %d kcal (%s)",
		startup.Days, startup.TargetKcal, now.Format("2006-01-02"))
}
