package models

import (
	"strings"

	"nutriplan/internal/errs"
)

// MacroSplit is the requested calorie distribution in percent. The three
// parts must sum to exactly 100.
type MacroSplit struct {
	ProteinPct int `json:"protein_pct"`
	FatPct     int `json:"fat_pct"`
	CarbsPct   int `json:"carbs_pct"`
}

// StartupData captures the patient and nutrition parameters supplied when
// a chat session is created. It is stored verbatim on the session row.
type StartupData struct {
	PatientAge      int        `json:"patient_age"`
	PatientWeightKg float64    `json:"patient_weight_kg"`
	PatientHeightCm float64    `json:"patient_height_cm"`
	Sex             string     `json:"sex"`
	ActivityLevel   string     `json:"activity_level"`
	TargetKcal      int        `json:"target_kcal"`
	Macros          MacroSplit `json:"macro_split"`
	Exclusions      []string   `json:"exclusions,omitempty"`
	Days            int        `json:"days"`
}

var allowedActivityLevels = map[string]bool{
	"sedentary": true,
	"light":     true,
	"moderate":  true,
	"active":    true,
	"athlete":   true,
}

// Validate checks every startup field against its allowed range. Callers
// run this before any network or database work.
func (s *StartupData) Validate() error {
	if s.PatientAge < 1 || s.PatientAge > 120 {
		return errs.Validationf("patient_age must be between 1 and 120")
	}
	if s.PatientWeightKg < 20 || s.PatientWeightKg > 400 {
		return errs.Validationf("patient_weight_kg must be between 20 and 400")
	}
	if s.PatientHeightCm < 80 || s.PatientHeightCm > 250 {
		return errs.Validationf("patient_height_cm must be between 80 and 250")
	}
	switch strings.ToLower(strings.TrimSpace(s.Sex)) {
	case "male", "female", "other":
	default:
		return errs.Validationf("sex must be one of male, female, other")
	}
	if !allowedActivityLevels[strings.ToLower(strings.TrimSpace(s.ActivityLevel))] {
		return errs.Validationf("activity_level must be one of sedentary, light, moderate, active, athlete")
	}
	if s.TargetKcal < 800 || s.TargetKcal > 10000 {
		return errs.Validationf("target_kcal must be between 800 and 10000")
	}
	m := s.Macros
	if m.ProteinPct < 0 || m.FatPct < 0 || m.CarbsPct < 0 {
		return errs.Validationf("macro percentages cannot be negative")
	}
	if m.ProteinPct+m.FatPct+m.CarbsPct != 100 {
		return errs.Validationf("macro_split percentages must sum to 100")
	}
	if s.Days < 1 || s.Days > 14 {
		return errs.Validationf("days must be between 1 and 14")
	}
	return nil
}
