/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers (and the rule factory), not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rule.go: RuleJSON type (reused as the rule wire format)
*/
package api

import (
	"time"

	"github.com/playbook/studio-engine/assessment"
	"github.com/playbook/studio-engine/engine"
)

// =============================================================================
// TRAINER TYPES
// =============================================================================

// TrainerDTO represents a trainer in API responses.
type TrainerDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	StartDate string `json:"start_date"`
	IsActive  bool   `json:"is_active"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
}

// SaveTrainerRequest creates or updates a trainer.
type SaveTrainerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	StartDate string `json:"start_date"` // YYYY-MM-DD
	IsActive  *bool  `json:"is_active,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// TrainerDashboardDTO is the live, unsaved evaluation of the current month.
type TrainerDashboardDTO struct {
	TrainerID  string        `json:"trainer_id"`
	Month      string        `json:"month"`
	RuleID     string        `json:"rule_id"`
	RuleName   string        `json:"rule_name"`
	Retention  RetentionDTO  `json:"retention"`
	Referrals  ReferralsDTO  `json:"referrals"`
	Management ManagementDTO `json:"management"`
	Projected  string        `json:"projected_reward"`
}

type RetentionDTO struct {
	StudentsStart int    `json:"students_start"`
	StudentsEnd   int    `json:"students_end"`
	Cancellations int    `json:"cancellations"`
	Rate          string `json:"rate"`
	Target        string `json:"target"`
	Eligible      bool   `json:"eligible"`
	Achieved      bool   `json:"achieved"`
	Enabled       bool   `json:"enabled"`
}

type ReferralsDTO struct {
	Count    int    `json:"count"`
	Pending  int    `json:"pending"`
	Target   string `json:"target"`
	Achieved bool   `json:"achieved"`
	Enabled  bool   `json:"enabled"`
}

type ManagementDTO struct {
	PortfolioSize int    `json:"portfolio_size"`
	ManagedCount  int    `json:"managed_count"`
	Rate          string `json:"rate"`
	Target        string `json:"target"`
	Achieved      bool   `json:"achieved"`
	Enabled       bool   `json:"enabled"`
}

// =============================================================================
// STUDENT TYPES
// =============================================================================

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	TrainerID  string `json:"trainer_id"`
	Status     string `json:"status"`
	Origin     string `json:"origin"`
	ReferredBy string `json:"referred_by,omitempty"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date,omitempty"`
	Notes      string `json:"notes,omitempty"`
	IsArchived bool   `json:"is_archived"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// SaveStudentRequest creates or updates a student. On update, status and
// trainer changes are recorded in the audit log.
type SaveStudentRequest struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	TrainerID  string `json:"trainer_id"`
	Status     string `json:"status,omitempty"`
	Origin     string `json:"origin,omitempty"`
	ReferredBy string `json:"referred_by,omitempty"`
	StartDate  string `json:"start_date"` // YYYY-MM-DD
	EndDate    string `json:"end_date,omitempty"`
	Notes      string `json:"notes,omitempty"`
	IsArchived *bool  `json:"is_archived,omitempty"`
	UpdatedBy  string `json:"updated_by,omitempty"`
}

// StudentEventDTO is one audit log entry.
type StudentEventDTO struct {
	ID        string            `json:"id"`
	StudentID string            `json:"student_id"`
	Type      string            `json:"event_type"`
	OldValue  map[string]string `json:"old_value,omitempty"`
	NewValue  map[string]string `json:"new_value,omitempty"`
	EventDate string            `json:"event_date"`
	CreatedBy string            `json:"created_by,omitempty"`
}

// =============================================================================
// SNAPSHOT TYPES
// =============================================================================

// SnapshotDTO represents a performance snapshot in API responses.
type SnapshotDTO struct {
	ID                 string `json:"id"`
	TrainerID          string `json:"trainer_id"`
	Month              string `json:"reference_month"`
	GameRuleID         string `json:"game_rule_id"`
	StudentsStart      int    `json:"students_start"`
	StudentsEnd        int    `json:"students_end"`
	Cancellations      int    `json:"cancellations"`
	RetentionRate      string `json:"retention_rate"`
	RetentionEligible  bool   `json:"retention_eligible"`
	RetentionAchieved  bool   `json:"retention_achieved"`
	ReferralsCount     int    `json:"referrals_count"`
	ReferralsPending   int    `json:"referrals_pending"`
	ReferralsAchieved  bool   `json:"referrals_achieved"`
	ManagementRate     string `json:"management_rate"`
	ManagementManaged  int    `json:"management_managed"`
	ManagementAchieved bool   `json:"management_achieved"`
	RewardAmount       string `json:"reward_amount"`
	IsFinalized        bool   `json:"is_finalized"`
	FinalizedAt        string `json:"finalized_at,omitempty"`
	FinalizedBy        string `json:"finalized_by,omitempty"`
	GeneratedAt        string `json:"generated_at"`
}

// GenerateSnapshotRequest triggers generation for one trainer-month.
type GenerateSnapshotRequest struct {
	TrainerID string `json:"trainer_id"`
	Month     string `json:"month"` // YYYY-MM
}

// GenerateAllRequest triggers bulk generation for a month.
type GenerateAllRequest struct {
	Month string `json:"month"` // YYYY-MM
}

// FinalizeSnapshotRequest finalizes one trainer-month.
type FinalizeSnapshotRequest struct {
	TrainerID   string `json:"trainer_id"`
	Month       string `json:"month"`
	FinalizedBy string `json:"finalized_by,omitempty"`
}

// BulkResultDTO summarizes a generate-all run.
type BulkResultDTO struct {
	Month     string             `json:"month"`
	Generated int                `json:"generated"`
	Failed    int                `json:"failed"`
	Failures  []TrainerErrorDTO  `json:"failures,omitempty"`
}

type TrainerErrorDTO struct {
	TrainerID string `json:"trainer_id"`
	Error     string `json:"error"`
}

// =============================================================================
// RESULT MANAGEMENT TYPES
// =============================================================================

// ManagementRecordRequest upserts a monthly completeness row.
type ManagementRecordRequest struct {
	StudentID            string `json:"student_id"`
	TrainerID            string `json:"trainer_id"`
	Month                string `json:"month"` // YYYY-MM
	HasInitialAssessment bool   `json:"has_initial_assessment"`
	HasReassessment      bool   `json:"has_reassessment"`
	HasDocumentedResult  bool   `json:"has_documented_result"`
}

// =============================================================================
// PROTOCOL / ASSESSMENT TYPES
// =============================================================================

// ProtocolRequest creates or updates a protocol with its metrics.
type ProtocolRequest struct {
	Name        string          `json:"name"`
	Pillar      string          `json:"pillar"`
	Description string          `json:"description,omitempty"`
	IsArchived  bool            `json:"is_archived,omitempty"`
	Metrics     []MetricRequest `json:"metrics"`
}

type MetricRequest struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	Unit       string `json:"unit"`
	SortOrder  int    `json:"sort_order,omitempty"`
	IsArchived bool   `json:"is_archived,omitempty"`
}

// RecordAssessmentRequest records a protocol application with results.
type RecordAssessmentRequest struct {
	ProtocolID  string               `json:"protocol_id"`
	PerformedAt string               `json:"performed_at"` // YYYY-MM-DD
	Notes       string               `json:"notes,omitempty"`
	Results     []ResultValueRequest `json:"results"`
}

type ResultValueRequest struct {
	MetricID string  `json:"metric_id"`
	Value    float64 `json:"value"`
}

// EvolutionDTO is the per-student evolution response.
type EvolutionDTO struct {
	StudentID        string             `json:"student_id"`
	ManagementStatus string             `json:"management_status"`
	Protocols        []ProtocolGroupDTO `json:"protocols"`
}

type ProtocolGroupDTO struct {
	ProtocolID   string               `json:"protocol_id"`
	ProtocolName string               `json:"protocol_name"`
	Pillar       string               `json:"pillar"`
	Assessments  []AssessmentDTO      `json:"assessments"`
	Evolution    []MetricEvolutionDTO `json:"evolution"`
}

type AssessmentDTO struct {
	ID           string      `json:"id"`
	StudentID    string      `json:"student_id"`
	ProtocolID   string      `json:"protocol_id"`
	ProtocolName string      `json:"protocol_name"`
	Pillar       string      `json:"pillar"`
	PerformedAt  string      `json:"performed_at"`
	Notes        string      `json:"notes,omitempty"`
	Results      []ResultDTO `json:"results"`
}

type ResultDTO struct {
	MetricID   string  `json:"metric_id"`
	MetricName string  `json:"metric_name"`
	Unit       string  `json:"unit"`
	Value      float64 `json:"value"`
}

type MetricEvolutionDTO struct {
	MetricID      string   `json:"metric_id"`
	MetricName    string   `json:"metric_name"`
	Unit          string   `json:"unit"`
	LatestValue   float64  `json:"latest_value"`
	PreviousValue *float64 `json:"previous_value,omitempty"`
	Diff          *float64 `json:"diff,omitempty"`
	Trend         string   `json:"trend"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest loads a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toTrainerDTO(t engine.Trainer) TrainerDTO {
	return TrainerDTO{
		ID:        string(t.ID),
		Name:      t.Name,
		Email:     t.Email,
		StartDate: t.StartDate.Format("2006-01-02"),
		IsActive:  t.IsActive,
		Notes:     t.Notes,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

func toStudentDTO(s engine.Student) StudentDTO {
	dto := StudentDTO{
		ID:         string(s.ID),
		FullName:   s.FullName,
		Email:      s.Email,
		Phone:      s.Phone,
		TrainerID:  string(s.TrainerID),
		Status:     string(s.Status),
		Origin:     string(s.Origin),
		ReferredBy: string(s.ReferredBy),
		StartDate:  s.StartDate.Format("2006-01-02"),
		Notes:      s.Notes,
		IsArchived: s.IsArchived,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  s.UpdatedAt.Format(time.RFC3339),
	}
	if s.EndDate != nil {
		dto.EndDate = s.EndDate.Format("2006-01-02")
	}
	return dto
}

func toSnapshotDTO(s engine.PerformanceSnapshot) SnapshotDTO {
	dto := SnapshotDTO{
		ID:                 string(s.ID),
		TrainerID:          string(s.TrainerID),
		Month:              s.Month.String(),
		GameRuleID:         string(s.GameRuleID),
		StudentsStart:      s.StudentsStart,
		StudentsEnd:        s.StudentsEnd,
		Cancellations:      s.Cancellations,
		RetentionRate:      s.RetentionRate.String(),
		RetentionEligible:  s.RetentionEligible,
		RetentionAchieved:  s.RetentionAchieved,
		ReferralsCount:     s.ReferralsCount,
		ReferralsPending:   s.ReferralsPending,
		ReferralsAchieved:  s.ReferralsAchieved,
		ManagementRate:     s.ManagementRate.String(),
		ManagementManaged:  s.ManagementManaged,
		ManagementAchieved: s.ManagementAchieved,
		RewardAmount:       s.RewardAmount.String(),
		IsFinalized:        s.IsFinalized,
		FinalizedBy:        s.FinalizedBy,
		GeneratedAt:        s.GeneratedAt.Format(time.RFC3339),
	}
	if s.FinalizedAt != nil {
		dto.FinalizedAt = s.FinalizedAt.Format(time.RFC3339)
	}
	return dto
}

func toAssessmentDTO(a assessment.Assessment) AssessmentDTO {
	dto := AssessmentDTO{
		ID:           a.ID,
		StudentID:    a.StudentID,
		ProtocolID:   a.ProtocolID,
		ProtocolName: a.ProtocolName,
		Pillar:       string(a.Pillar),
		PerformedAt:  a.PerformedAt.Format("2006-01-02"),
		Notes:        a.Notes,
	}
	for _, r := range a.Results {
		dto.Results = append(dto.Results, ResultDTO{
			MetricID:   r.MetricID,
			MetricName: r.MetricName,
			Unit:       r.Unit,
			Value:      r.Value,
		})
	}
	return dto
}

func toEvolutionDTO(studentID string, status assessment.Status, groups []assessment.ProtocolGroup) EvolutionDTO {
	dto := EvolutionDTO{
		StudentID:        studentID,
		ManagementStatus: string(status),
		Protocols:        []ProtocolGroupDTO{},
	}
	for _, g := range groups {
		gd := ProtocolGroupDTO{
			ProtocolID:   g.ProtocolID,
			ProtocolName: g.ProtocolName,
			Pillar:       string(g.Pillar),
		}
		for _, a := range g.Assessments {
			gd.Assessments = append(gd.Assessments, toAssessmentDTO(a))
		}
		for _, ev := range g.Evolution {
			gd.Evolution = append(gd.Evolution, MetricEvolutionDTO{
				MetricID:      ev.MetricID,
				MetricName:    ev.MetricName,
				Unit:          ev.Unit,
				LatestValue:   ev.LatestValue,
				PreviousValue: ev.PreviousValue,
				Diff:          ev.Diff,
				Trend:         string(ev.Trend),
			})
		}
		dto.Protocols = append(dto.Protocols, gd)
	}
	return dto
}
