/*
seed.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates trainers, students,
	rules, and supporting records that demonstrate specific features.

AVAILABLE SCENARIOS:

	small-studio: One trainer, weighted rule, referrals in both
	              validation states, live dashboard data
	busy-studio:  Three trainers, fixed-value rule, previous month
	              generated with one finalized snapshot

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create the rule via factory
 3. Create trainers and students
 4. Add management records and assessments
 5. Optionally generate/finalize historical snapshots

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-studio"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: writeJSON/writeError helpers
  - factory/rule.go: Rule JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/playbook/studio-engine/assessment"
	"github.com/playbook/studio-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-studio",
		Name:        "Small Studio",
		Description: "One trainer on the standard weighted rule, with pending and validated referrals",
	},
	{
		ID:          "busy-studio",
		Name:        "Busy Studio",
		Description: "Three trainers on a fixed-value rule, previous month generated and partially finalized",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "small-studio":
		err = loadSmallStudioScenario(ctx, h)
	case "busy-studio":
		err = loadBusyStudioScenario(ctx, h)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario %q", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Logger.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// ResetDatabase wipes all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO: SMALL STUDIO
// =============================================================================

func loadSmallStudioScenario(ctx context.Context, h *Handler) error {
	rule, err := h.RuleFactory.ParseRule(`{
		"name": "Standard Season",
		"description": "Default weighted configuration",
		"calculation_type": "weighted",
		"created_by": "seed"
	}`)
	if err != nil {
		return err
	}
	rule.IsActive = true
	if err := h.Store.CreateRule(ctx, *rule); err != nil {
		return err
	}

	trainer := engine.Trainer{
		ID:        "trainer-ana",
		Name:      "Ana Souza",
		Email:     "ana@studio.example",
		StartDate: daysAgo(400),
		IsActive:  true,
	}
	if _, err := h.Store.SaveTrainer(ctx, trainer); err != nil {
		return err
	}

	now := time.Now().UTC()
	month := engine.MonthOf(now)

	students := []engine.Student{
		{ID: "student-bruno", FullName: "Bruno Lima", TrainerID: trainer.ID,
			Status: engine.StatusActive, Origin: engine.OriginOrganic, StartDate: daysAgo(200)},
		{ID: "student-carla", FullName: "Carla Mendes", TrainerID: trainer.ID,
			Status: engine.StatusActive, Origin: engine.OriginOrganic, StartDate: daysAgo(150)},
		{ID: "student-diego", FullName: "Diego Alves", TrainerID: trainer.ID,
			Status: engine.StatusActive, Origin: engine.OriginMarketing, StartDate: daysAgo(120)},
		{ID: "student-elisa", FullName: "Elisa Rocha", TrainerID: trainer.ID,
			Status: engine.StatusActive, Origin: engine.OriginOrganic, StartDate: daysAgo(90)},
		{ID: "student-fabio", FullName: "Fabio Costa", TrainerID: trainer.ID,
			Status: engine.StatusActive, Origin: engine.OriginOrganic, StartDate: daysAgo(80)},
		// Referral old enough to be validated
		{ID: "student-gabi", FullName: "Gabriela Nunes", TrainerID: trainer.ID,
			Status: engine.StatusActive, Origin: engine.OriginReferral,
			ReferredBy: trainer.ID, StartDate: daysAgo(45)},
		// Referral inside the validation window: shows up as pending
		{ID: "student-hugo", FullName: "Hugo Pereira", TrainerID: trainer.ID,
			Status: engine.StatusActive, Origin: engine.OriginReferral,
			ReferredBy: trainer.ID, StartDate: daysAgo(10)},
		// Cancelled this month, drives the retention rate down
		{ID: "student-iris", FullName: "Iris Teixeira", TrainerID: trainer.ID,
			Status: engine.StatusCancelled, Origin: engine.OriginOrganic,
			StartDate: daysAgo(300), EndDate: timePtr(daysAgo(5))},
	}
	for _, s := range students {
		if _, err := h.Store.SaveStudent(ctx, s); err != nil {
			return err
		}
	}

	// Most of the portfolio is fully managed this month
	managed := []engine.StudentID{"student-bruno", "student-carla", "student-diego", "student-elisa", "student-gabi"}
	for _, id := range managed {
		record := engine.ManagementRecord{
			StudentID:            id,
			TrainerID:            trainer.ID,
			Month:                month,
			HasInitialAssessment: true,
			HasReassessment:      true,
			HasDocumentedResult:  true,
		}
		if err := h.Store.UpsertManagementRecord(ctx, record); err != nil {
			return err
		}
	}

	return seedAssessmentHistory(ctx, h, "student-bruno")
}

// seedAssessmentHistory records two applications of a composition protocol
// so the evolution view has a before/after to diff.
func seedAssessmentHistory(ctx context.Context, h *Handler, studentID string) error {
	protocol := assessment.Protocol{
		ID:     "protocol-composition",
		Name:   "Body Composition",
		Pillar: assessment.PillarComposition,
		Metrics: []assessment.Metric{
			{ID: "metric-weight", Name: "Weight", Unit: "kg", SortOrder: 0},
			{ID: "metric-bodyfat", Name: "Body Fat", Unit: "%", SortOrder: 1},
		},
	}
	if _, err := h.Store.SaveProtocol(ctx, protocol); err != nil {
		return err
	}

	baseline := assessment.Assessment{
		StudentID:   studentID,
		ProtocolID:  protocol.ID,
		PerformedAt: daysAgo(70),
		Notes:       "Initial assessment",
		Results: []assessment.Result{
			{MetricID: "metric-weight", Value: 82.5},
			{MetricID: "metric-bodyfat", Value: 24.0},
		},
	}
	if _, err := h.Store.SaveAssessment(ctx, baseline); err != nil {
		return err
	}

	reassessment := assessment.Assessment{
		StudentID:   studentID,
		ProtocolID:  protocol.ID,
		PerformedAt: daysAgo(8),
		Notes:       "Quarterly reassessment",
		Results: []assessment.Result{
			{MetricID: "metric-weight", Value: 79.8},
			{MetricID: "metric-bodyfat", Value: 21.5},
		},
	}
	_, err := h.Store.SaveAssessment(ctx, reassessment)
	return err
}

// =============================================================================
// SCENARIO: BUSY STUDIO
// =============================================================================

func loadBusyStudioScenario(ctx context.Context, h *Handler) error {
	rule, err := h.RuleFactory.ParseRule(`{
		"name": "Fixed Bonus Season",
		"description": "Fixed value per achieved KPI",
		"calculation_type": "fixed",
		"created_by": "seed",
		"kpi_config": {
			"retention":  {"fixed_value": 250},
			"referrals":  {"fixed_value": 150},
			"management": {"fixed_value": 100}
		}
	}`)
	if err != nil {
		return err
	}
	rule.IsActive = true
	if err := h.Store.CreateRule(ctx, *rule); err != nil {
		return err
	}

	// Inactive draft for next season, kept for version history
	draft, err := h.RuleFactory.ParseRule(fmt.Sprintf(`{
		"name": "Next Season Draft",
		"calculation_type": "weighted",
		"effective_from": %q,
		"created_by": "seed"
	}`, time.Now().UTC().AddDate(0, 2, 0).Format("2006-01-02")))
	if err != nil {
		return err
	}
	if err := h.Store.CreateRule(ctx, *draft); err != nil {
		return err
	}

	trainers := []engine.Trainer{
		{ID: "trainer-joao", Name: "Joao Martins", Email: "joao@studio.example", StartDate: daysAgo(700), IsActive: true},
		{ID: "trainer-lia", Name: "Lia Fernandes", Email: "lia@studio.example", StartDate: daysAgo(500), IsActive: true},
		{ID: "trainer-marcos", Name: "Marcos Dias", Email: "marcos@studio.example", StartDate: daysAgo(250), IsActive: true},
	}
	for _, t := range trainers {
		if _, err := h.Store.SaveTrainer(ctx, t); err != nil {
			return err
		}
	}

	lastMonth := engine.MonthOf(time.Now().UTC()).Previous()
	cancelInLastMonth := lastMonth.Start().AddDate(0, 0, 10)

	i := 0
	for _, t := range trainers {
		for n := 0; n < 4; n++ {
			i++
			s := engine.Student{
				ID:        engine.StudentID(fmt.Sprintf("student-%02d", i)),
				FullName:  fmt.Sprintf("Student %02d", i),
				TrainerID: t.ID,
				Status:    engine.StatusActive,
				Origin:    engine.OriginOrganic,
				StartDate: daysAgo(100 + 15*i),
			}
			if _, err := h.Store.SaveStudent(ctx, s); err != nil {
				return err
			}
			record := engine.ManagementRecord{
				StudentID:            s.ID,
				TrainerID:            t.ID,
				Month:                lastMonth,
				HasInitialAssessment: true,
				HasReassessment:      true,
				HasDocumentedResult:  n < 3, // one incomplete per trainer
			}
			if err := h.Store.UpsertManagementRecord(ctx, record); err != nil {
				return err
			}
		}
	}

	// One cancellation last month on Joao's roster
	cancelled := engine.Student{
		ID:        "student-churn",
		FullName:  "Churned Student",
		TrainerID: "trainer-joao",
		Status:    engine.StatusCancelled,
		Origin:    engine.OriginOrganic,
		StartDate: daysAgo(400),
		EndDate:   &cancelInLastMonth,
	}
	if _, err := h.Store.SaveStudent(ctx, cancelled); err != nil {
		return err
	}

	// Close out last month: generate everyone, finalize one payout
	if _, err := h.Generator.GenerateAll(ctx, lastMonth); err != nil {
		return err
	}
	return h.Generator.Finalize(ctx, "trainer-lia", lastMonth, "seed")
}

// =============================================================================
// HELPERS
// =============================================================================

func daysAgo(n int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -n).Truncate(24 * time.Hour)
}

func timePtr(t time.Time) *time.Time { return &t }
