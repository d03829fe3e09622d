/*
handlers.go - HTTP API handlers for the studio performance engine

PURPOSE:
  Exposes the calculation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Trainers:
    GET    /api/trainers                    List trainers
    POST   /api/trainers                    Create trainer
    GET    /api/trainers/{id}               Get trainer details
    PUT    /api/trainers/{id}               Update trainer
    GET    /api/trainers/{id}/dashboard     Live current-month evaluation
    GET    /api/trainers/{id}/snapshots     Snapshot history

  Students:
    GET    /api/students                    List students
    POST   /api/students                    Create student
    GET    /api/students/{id}               Get student
    PUT    /api/students/{id}               Update (logs audit events)
    GET    /api/students/{id}/events        Audit log
    GET    /api/students/{id}/assessments   Assessment history
    POST   /api/students/{id}/assessments   Record assessment
    GET    /api/students/{id}/evolution     Evolution + management status

  Rules:
    GET    /api/rules                       List rule versions
    POST   /api/rules                       Create rule (factory-validated)
    GET    /api/rules/active                Currently active rule
    GET    /api/rules/{id}                  Get rule
    POST   /api/rules/{id}/activate         Atomic activation

  Snapshots:
    GET    /api/snapshots?month=YYYY-MM     List for month
    POST   /api/snapshots/generate          Generate one trainer-month
    POST   /api/snapshots/generate-all      Bulk generation
    POST   /api/snapshots/finalize          One-way finalization

  Other:
    POST   /api/management                  Upsert result-management row
    GET    /api/protocols                   List protocols
    POST   /api/protocols                   Create protocol
    PUT    /api/protocols/{id}              Update (unit-change guarded)
    GET    /api/scenarios                   Demo scenarios
    POST   /api/scenarios/load              Load scenario
    POST   /api/scenarios/reset             Wipe database

ERROR HANDLING:
  Domain errors are mapped to HTTP status via the engine helpers:
  - 400: Validation errors, invalid input, no active rule
  - 404: Resource not found
  - 409: Conflict (finalized snapshot, metric in use)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - seed.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/playbook/studio-engine/assessment"
	"github.com/playbook/studio-engine/engine"
	"github.com/playbook/studio-engine/factory"
	"github.com/playbook/studio-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Generator   *engine.Generator
	RuleFactory *factory.RuleFactory
	Logger      zerolog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		Store: store,
		Generator: &engine.Generator{
			Rules:     store,
			Roster:    store,
			Snapshots: store,
		},
		RuleFactory: factory.NewRuleFactory(),
		Logger:      logger,
	}
}

// =============================================================================
// TRAINER HANDLERS
// =============================================================================

// ListTrainers returns trainers; pass ?include_inactive=true for all.
func (h *Handler) ListTrainers(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	trainers, err := h.Store.ListTrainers(r.Context(), !includeInactive)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list trainers", err)
		return
	}

	dtos := make([]TrainerDTO, len(trainers))
	for i, t := range trainers {
		dtos[i] = toTrainerDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTrainer returns a single trainer.
func (h *Handler) GetTrainer(w http.ResponseWriter, r *http.Request) {
	id := engine.TrainerID(chi.URLParam(r, "id"))

	t, err := h.Store.GetTrainer(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get trainer", err)
		return
	}
	writeJSON(w, http.StatusOK, toTrainerDTO(*t))
}

// CreateTrainer creates a new trainer.
func (h *Handler) CreateTrainer(w http.ResponseWriter, r *http.Request) {
	var req SaveTrainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}

	trainer := engine.Trainer{
		Name:      req.Name,
		Email:     req.Email,
		StartDate: startDate,
		IsActive:  true,
		Notes:     req.Notes,
	}
	if req.IsActive != nil {
		trainer.IsActive = *req.IsActive
	}

	id, err := h.Store.SaveTrainer(r.Context(), trainer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create trainer", err)
		return
	}
	trainer.ID = id

	writeJSON(w, http.StatusCreated, toTrainerDTO(trainer))
}

// UpdateTrainer updates an existing trainer (including the archive toggle).
func (h *Handler) UpdateTrainer(w http.ResponseWriter, r *http.Request) {
	id := engine.TrainerID(chi.URLParam(r, "id"))

	existing, err := h.Store.GetTrainer(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get trainer", err)
		return
	}

	var req SaveTrainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Email != "" {
		existing.Email = req.Email
	}
	if req.StartDate != "" {
		startDate, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
			return
		}
		existing.StartDate = startDate
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	if req.Notes != "" {
		existing.Notes = req.Notes
	}

	if _, err := h.Store.SaveTrainer(r.Context(), *existing); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update trainer", err)
		return
	}
	writeJSON(w, http.StatusOK, toTrainerDTO(*existing))
}

// GetTrainerDashboard runs a live evaluation of the current month
// without persisting anything.
func (h *Handler) GetTrainerDashboard(w http.ResponseWriter, r *http.Request) {
	id := engine.TrainerID(chi.URLParam(r, "id"))

	month := engine.MonthOf(time.Now().UTC())
	if m := r.URL.Query().Get("month"); m != "" {
		parsed, err := engine.ParseMonth(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
			return
		}
		month = parsed
	}

	rule, ev, err := h.Generator.Evaluate(r.Context(), id, month)
	if err != nil {
		h.writeDomainError(w, "Failed to evaluate trainer", err)
		return
	}

	reward := engine.RoundCurrency(engine.ComputeReward(*rule, ev))
	writeJSON(w, http.StatusOK, TrainerDashboardDTO{
		TrainerID: string(id),
		Month:     month.String(),
		RuleID:    string(rule.ID),
		RuleName:  rule.Name,
		Retention: RetentionDTO{
			StudentsStart: ev.Retention.StudentsStart,
			StudentsEnd:   ev.Retention.StudentsEnd,
			Cancellations: ev.Retention.Cancellations,
			Rate:          ev.Retention.Rate.Round(2).String(),
			Target:        ev.Retention.Target.String(),
			Eligible:      ev.Retention.Eligible,
			Achieved:      ev.Retention.Achieved,
			Enabled:       ev.Retention.Enabled,
		},
		Referrals: ReferralsDTO{
			Count:    ev.Referrals.Count,
			Pending:  ev.Referrals.Pending,
			Target:   ev.Referrals.Target.String(),
			Achieved: ev.Referrals.Achieved,
			Enabled:  ev.Referrals.Enabled,
		},
		Management: ManagementDTO{
			PortfolioSize: ev.Management.PortfolioSize,
			ManagedCount:  ev.Management.ManagedCount,
			Rate:          ev.Management.Rate.Round(2).String(),
			Target:        ev.Management.Target.String(),
			Achieved:      ev.Management.Achieved,
			Enabled:       ev.Management.Enabled,
		},
		Projected: reward.String(),
	})
}

// ListTrainerSnapshots returns a trainer's snapshot history.
func (h *Handler) ListTrainerSnapshots(w http.ResponseWriter, r *http.Request) {
	id := engine.TrainerID(chi.URLParam(r, "id"))

	snaps, err := h.Store.ListTrainerSnapshots(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots", err)
		return
	}

	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns students; pass ?include_archived=true for all.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"

	students, err := h.Store.ListStudents(r.Context(), includeArchived)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = toStudentDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStudent returns a single student.
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id := engine.StudentID(chi.URLParam(r, "id"))

	s, err := h.Store.GetStudent(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get student", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*s))
}

// CreateStudent creates a new student.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req SaveStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.FullName == "" || req.TrainerID == "" {
		writeError(w, http.StatusBadRequest, "full_name and trainer_id are required", nil)
		return
	}

	student, err := studentFromRequest(engine.Student{
		Status: engine.StatusActive,
		Origin: engine.OriginOrganic,
	}, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	id, err := h.Store.SaveStudent(r.Context(), student)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create student", err)
		return
	}
	student.ID = id

	writeJSON(w, http.StatusCreated, toStudentDTO(student))
}

// UpdateStudent updates a student and records status/trainer/origin
// changes in the append-only audit log.
func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	id := engine.StudentID(chi.URLParam(r, "id"))
	ctx := r.Context()

	existing, err := h.Store.GetStudent(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to get student", err)
		return
	}

	var req SaveStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	before := *existing
	updated, err := studentFromRequest(*existing, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	updated.ID = id

	if _, err := h.Store.SaveStudent(ctx, updated); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update student", err)
		return
	}

	// Audit events for the changes that matter to KPI history.
	now := time.Now().UTC()
	for _, ev := range changeEvents(before, updated, req.UpdatedBy, now) {
		if err := h.Store.AppendEvent(ctx, ev); err != nil {
			h.Logger.Error().Err(err).Str("student_id", string(id)).Msg("failed to append audit event")
		}
	}

	writeJSON(w, http.StatusOK, toStudentDTO(updated))
}

// ListStudentEvents returns the student's audit log.
func (h *Handler) ListStudentEvents(w http.ResponseWriter, r *http.Request) {
	id := engine.StudentID(chi.URLParam(r, "id"))

	events, err := h.Store.EventsByStudent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events", err)
		return
	}

	dtos := make([]StudentEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = StudentEventDTO{
			ID:        ev.ID,
			StudentID: string(ev.StudentID),
			Type:      string(ev.Type),
			OldValue:  ev.OldValue,
			NewValue:  ev.NewValue,
			EventDate: ev.EventDate.Format(time.RFC3339),
			CreatedBy: ev.CreatedBy,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// studentFromRequest applies a save request on top of a base student.
func studentFromRequest(base engine.Student, req SaveStudentRequest) (engine.Student, error) {
	s := base

	if req.FullName != "" {
		s.FullName = req.FullName
	}
	if req.Email != "" {
		s.Email = req.Email
	}
	if req.Phone != "" {
		s.Phone = req.Phone
	}
	if req.TrainerID != "" {
		s.TrainerID = engine.TrainerID(req.TrainerID)
	}
	if req.Status != "" {
		switch engine.StudentStatus(req.Status) {
		case engine.StatusActive, engine.StatusPaused, engine.StatusCancelled:
			s.Status = engine.StudentStatus(req.Status)
		default:
			return s, errInvalidField("status")
		}
	}
	if req.Origin != "" {
		switch engine.StudentOrigin(req.Origin) {
		case engine.OriginOrganic, engine.OriginReferral, engine.OriginMarketing:
			s.Origin = engine.StudentOrigin(req.Origin)
		default:
			return s, errInvalidField("origin")
		}
	}
	if req.ReferredBy != "" {
		s.ReferredBy = engine.TrainerID(req.ReferredBy)
	}
	if req.StartDate != "" {
		startDate, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return s, errInvalidField("start_date")
		}
		s.StartDate = startDate
	}
	if req.EndDate != "" {
		endDate, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return s, errInvalidField("end_date")
		}
		s.EndDate = &endDate
	}
	if req.Notes != "" {
		s.Notes = req.Notes
	}
	if req.IsArchived != nil {
		s.IsArchived = *req.IsArchived
	}
	return s, nil
}

// changeEvents derives audit events from a student update.
func changeEvents(before, after engine.Student, by string, at time.Time) []engine.StudentEvent {
	var events []engine.StudentEvent

	if before.Status != after.Status {
		newValue := map[string]string{"status": string(after.Status)}
		if after.EndDate != nil {
			newValue["end_date"] = after.EndDate.Format("2006-01-02")
		}
		events = append(events, engine.StudentEvent{
			StudentID: after.ID,
			Type:      engine.EventStatusChange,
			OldValue:  map[string]string{"status": string(before.Status)},
			NewValue:  newValue,
			EventDate: at,
			CreatedBy: by,
		})
	}

	if before.TrainerID != after.TrainerID {
		events = append(events, engine.StudentEvent{
			StudentID: after.ID,
			Type:      engine.EventTrainerChange,
			OldValue:  map[string]string{"trainer_id": string(before.TrainerID)},
			NewValue:  map[string]string{"trainer_id": string(after.TrainerID)},
			EventDate: at,
			CreatedBy: by,
		})
	}

	if before.Origin != after.Origin || before.ReferredBy != after.ReferredBy {
		events = append(events, engine.StudentEvent{
			StudentID: after.ID,
			Type:      engine.EventOriginUpdate,
			OldValue: map[string]string{
				"origin":      string(before.Origin),
				"referred_by": string(before.ReferredBy),
			},
			NewValue: map[string]string{
				"origin":      string(after.Origin),
				"referred_by": string(after.ReferredBy),
			},
			EventDate: at,
			CreatedBy: by,
		})
	}

	return events
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// ListRules returns all rule versions, newest first.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.ListRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}

	dtos := make([]factory.RuleJSON, len(rules))
	for i := range rules {
		dtos[i] = h.RuleFactory.ToJSON(&rules[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetActiveRule returns the active rule, or 404 when none is active.
func (h *Handler) GetActiveRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Store.GetActiveRule(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get active rule", err)
		return
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, "No active rule", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.RuleFactory.ToJSON(rule))
}

// GetRule returns one rule version.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id := engine.RuleID(chi.URLParam(r, "id"))

	rule, err := h.Store.GetRule(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, h.RuleFactory.ToJSON(rule))
}

// CreateRule creates a new rule version from its JSON definition.
// The rule activates immediately if its effective date has arrived.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rj factory.RuleJSON
	if err := json.NewDecoder(r.Body).Decode(&rj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rule, err := h.RuleFactory.FromJSON(rj)
	if err != nil {
		h.writeDomainError(w, "Invalid rule", err)
		return
	}

	// The ID is assigned here, not by the store, so a future-dated rule
	// (created inactive) is still addressable in the response.
	if rule.ID == "" {
		rule.ID = engine.RuleID(uuid.NewString())
	}
	rule.IsActive = rule.ShouldActivate(time.Now().UTC())
	if err := h.Store.CreateRule(r.Context(), *rule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create rule", err)
		return
	}

	created, err := h.Store.GetRule(r.Context(), rule.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to load created rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.RuleFactory.ToJSON(created))
}

// ActivateRule atomically swaps the active rule.
func (h *Handler) ActivateRule(w http.ResponseWriter, r *http.Request) {
	id := engine.RuleID(chi.URLParam(r, "id"))

	if err := h.Store.ActivateRule(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to activate rule", err)
		return
	}

	rule, err := h.Store.GetRule(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to load activated rule", err)
		return
	}
	writeJSON(w, http.StatusOK, h.RuleFactory.ToJSON(rule))
}

// =============================================================================
// SNAPSHOT HANDLERS
// =============================================================================

// ListSnapshots returns all snapshots for a month.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	month, err := engine.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use ?month=YYYY-MM)", err)
		return
	}

	snaps, err := h.Store.ListSnapshots(r.Context(), month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots", err)
		return
	}

	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GenerateSnapshot evaluates and persists one trainer-month.
func (h *Handler) GenerateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req GenerateSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	month, err := engine.ParseMonth(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	snap, err := h.Generator.Generate(r.Context(), engine.TrainerID(req.TrainerID), month)
	if err != nil {
		h.writeDomainError(w, "Failed to generate snapshot", err)
		return
	}

	h.Logger.Info().
		Str("trainer_id", req.TrainerID).
		Str("month", month.String()).
		Str("reward", snap.RewardAmount.String()).
		Msg("snapshot generated")
	writeJSON(w, http.StatusOK, toSnapshotDTO(*snap))
}

// GenerateAll generates snapshots for every active trainer.
func (h *Handler) GenerateAll(w http.ResponseWriter, r *http.Request) {
	var req GenerateAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	month, err := engine.ParseMonth(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	result, err := h.Generator.GenerateAll(r.Context(), month)
	if err != nil {
		h.writeDomainError(w, "Failed to generate snapshots", err)
		return
	}

	dto := BulkResultDTO{
		Month:     result.Month.String(),
		Generated: result.Generated,
		Failed:    result.Failed,
	}
	for _, f := range result.Failures {
		dto.Failures = append(dto.Failures, TrainerErrorDTO{
			TrainerID: string(f.TrainerID),
			Error:     f.Err.Error(),
		})
	}

	h.Logger.Info().
		Str("month", month.String()).
		Int("generated", result.Generated).
		Int("failed", result.Failed).
		Msg("bulk snapshot generation completed")
	writeJSON(w, http.StatusOK, dto)
}

// FinalizeSnapshot marks a snapshot immutable.
func (h *Handler) FinalizeSnapshot(w http.ResponseWriter, r *http.Request) {
	var req FinalizeSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	month, err := engine.ParseMonth(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	trainerID := engine.TrainerID(req.TrainerID)
	if err := h.Generator.Finalize(r.Context(), trainerID, month, req.FinalizedBy); err != nil {
		h.writeDomainError(w, "Failed to finalize snapshot", err)
		return
	}

	snap, err := h.Store.GetSnapshot(r.Context(), trainerID, month)
	if err != nil || snap == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load finalized snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(*snap))
}

// =============================================================================
// RESULT MANAGEMENT HANDLERS
// =============================================================================

// UpsertManagementRecord records the monthly completeness flags.
func (h *Handler) UpsertManagementRecord(w http.ResponseWriter, r *http.Request) {
	var req ManagementRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.StudentID == "" || req.TrainerID == "" {
		writeError(w, http.StatusBadRequest, "student_id and trainer_id are required", nil)
		return
	}

	month, err := engine.ParseMonth(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	record := engine.ManagementRecord{
		StudentID:            engine.StudentID(req.StudentID),
		TrainerID:            engine.TrainerID(req.TrainerID),
		Month:                month,
		HasInitialAssessment: req.HasInitialAssessment,
		HasReassessment:      req.HasReassessment,
		HasDocumentedResult:  req.HasDocumentedResult,
	}
	if err := h.Store.UpsertManagementRecord(r.Context(), record); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save record", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"complete": record.Complete()})
}

// =============================================================================
// PROTOCOL / ASSESSMENT HANDLERS
// =============================================================================

// ListProtocols returns protocols; pass ?include_archived=true for all.
func (h *Handler) ListProtocols(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"

	protocols, err := h.Store.ListProtocols(r.Context(), includeArchived)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list protocols", err)
		return
	}
	writeJSON(w, http.StatusOK, protocols)
}

// CreateProtocol creates a protocol with its metrics.
func (h *Handler) CreateProtocol(w http.ResponseWriter, r *http.Request) {
	h.saveProtocol(w, r, "")
}

// UpdateProtocol updates a protocol. A metric's unit cannot change once
// results reference it (409).
func (h *Handler) UpdateProtocol(w http.ResponseWriter, r *http.Request) {
	h.saveProtocol(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) saveProtocol(w http.ResponseWriter, r *http.Request, id string) {
	var req ProtocolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	protocol := assessment.Protocol{
		ID:          id,
		Name:        req.Name,
		Pillar:      assessment.Pillar(req.Pillar),
		Description: req.Description,
		IsArchived:  req.IsArchived,
	}
	for i, m := range req.Metrics {
		sortOrder := m.SortOrder
		if sortOrder == 0 {
			sortOrder = i
		}
		protocol.Metrics = append(protocol.Metrics, assessment.Metric{
			ID:         m.ID,
			Name:       m.Name,
			Unit:       m.Unit,
			SortOrder:  sortOrder,
			IsArchived: m.IsArchived,
		})
	}

	savedID, err := h.Store.SaveProtocol(r.Context(), protocol)
	if err != nil {
		h.writeDomainError(w, "Failed to save protocol", err)
		return
	}

	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]string{"id": savedID})
}

// ListStudentAssessments returns a student's raw assessment history.
func (h *Handler) ListStudentAssessments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	history, err := h.Store.ListByStudent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list assessments", err)
		return
	}

	dtos := make([]AssessmentDTO, len(history))
	for i, a := range history {
		dtos[i] = toAssessmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordAssessment records a protocol application with its results.
func (h *Handler) RecordAssessment(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")

	var req RecordAssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ProtocolID == "" || len(req.Results) == 0 {
		writeError(w, http.StatusBadRequest, "protocol_id and results are required", nil)
		return
	}

	performedAt, err := time.Parse("2006-01-02", req.PerformedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid performed_at format (use YYYY-MM-DD)", err)
		return
	}

	a := assessment.Assessment{
		StudentID:   studentID,
		ProtocolID:  req.ProtocolID,
		PerformedAt: performedAt,
		Notes:       req.Notes,
	}
	for _, rv := range req.Results {
		a.Results = append(a.Results, assessment.Result{
			MetricID: rv.MetricID,
			Value:    rv.Value,
		})
	}

	id, err := h.Store.SaveAssessment(r.Context(), a)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record assessment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// GetStudentEvolution returns the processed evolution view plus the
// assessment-recency management status.
func (h *Handler) GetStudentEvolution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	history, err := h.Store.ListByStudent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load assessments", err)
		return
	}

	groups := assessment.ProcessHistory(history)
	status := assessment.ManagementStatus(history, time.Now().UTC())
	writeJSON(w, http.StatusOK, toEvolutionDTO(id, status, groups))
}

// =============================================================================
// HELPERS
// =============================================================================

type fieldError string

func (e fieldError) Error() string { return "invalid " + string(e) }

func errInvalidField(name string) error { return fieldError(name) }

// writeDomainError maps engine errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
