/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the full engine.Store surface plus the protocol/assessment
  storage using SQLite. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  engine.RuleStore:     Versioned rules with the single-active invariant
  engine.RosterStore:   Trainers, students, result-management rows
  engine.SnapshotStore: Snapshot lifecycle with finalization guard
  engine.EventStore:    Append-only student audit log
  assessment.Reader:    Assessment history reads

KEY INVARIANTS (enforced at the storage layer, not just in Go):
  - UNIQUE(trainer_id, reference_month) on performance_snapshots:
    one snapshot per trainer-month, ever
  - Snapshot upsert carries WHERE is_finalized = 0: a finalized row
    can never be overwritten, even by a buggy caller
  - Rule activation is one BEGIN..COMMIT (deactivate-all + activate):
    an observer never sees zero or two active rules
  - student_events has no UPDATE or DELETE statements

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite is opened with WAL
  (Write-Ahead Logging) so readers don't block each other.

USAGE:
  store, err := sqlite.New("./data/studio.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/playbook/studio-engine/assessment"
	"github.com/playbook/studio-engine/engine"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Trainers
	CREATE TABLE IF NOT EXISTS trainers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		start_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	-- Students
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		trainer_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		origin TEXT NOT NULL DEFAULT 'organic',
		referred_by TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT,
		notes TEXT,
		is_archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_students_trainer
		ON students(trainer_id);
	CREATE INDEX IF NOT EXISTS idx_students_referred_by
		ON students(referred_by) WHERE referred_by IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_students_status
		ON students(status);

	-- Student Events (append-only audit log: no UPDATE, no DELETE)
	CREATE TABLE IF NOT EXISTS student_events (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		old_value_json TEXT,
		new_value_json TEXT,
		event_date TEXT NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_student_events_student
		ON student_events(student_id, event_date);

	-- Game Rules (versioned; at most one active)
	CREATE TABLE IF NOT EXISTS game_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		calculation_type TEXT NOT NULL,
		base_reward TEXT NOT NULL,
		kpi_config_json TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		effective_from TEXT NOT NULL,
		effective_until TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_game_rules_active
		ON game_rules(is_active) WHERE is_active = TRUE;

	-- Performance Snapshots
	-- CRITICAL: one snapshot per trainer-month, and finalized rows are
	-- immutable (the upsert carries WHERE is_finalized = 0)
	CREATE TABLE IF NOT EXISTS performance_snapshots (
		id TEXT PRIMARY KEY,
		trainer_id TEXT NOT NULL,
		reference_month TEXT NOT NULL,
		game_rule_id TEXT NOT NULL,
		students_start INTEGER NOT NULL DEFAULT 0,
		students_end INTEGER NOT NULL DEFAULT 0,
		cancellations INTEGER NOT NULL DEFAULT 0,
		retention_rate TEXT NOT NULL DEFAULT '0',
		retention_eligible BOOLEAN NOT NULL DEFAULT FALSE,
		retention_achieved BOOLEAN NOT NULL DEFAULT FALSE,
		referrals_count INTEGER NOT NULL DEFAULT 0,
		referrals_pending INTEGER NOT NULL DEFAULT 0,
		referrals_achieved BOOLEAN NOT NULL DEFAULT FALSE,
		management_rate TEXT NOT NULL DEFAULT '0',
		management_managed INTEGER NOT NULL DEFAULT 0,
		management_achieved BOOLEAN NOT NULL DEFAULT FALSE,
		reward_amount TEXT NOT NULL DEFAULT '0',
		is_finalized BOOLEAN NOT NULL DEFAULT FALSE,
		finalized_at TEXT,
		finalized_by TEXT,
		generated_at TEXT NOT NULL,
		UNIQUE(trainer_id, reference_month)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_month
		ON performance_snapshots(reference_month);

	-- Result Management (monthly completeness per student)
	CREATE TABLE IF NOT EXISTS result_management (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		trainer_id TEXT NOT NULL,
		reference_month TEXT NOT NULL,
		has_initial_assessment BOOLEAN NOT NULL DEFAULT FALSE,
		has_reassessment BOOLEAN NOT NULL DEFAULT FALSE,
		has_documented_result BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL,
		UNIQUE(student_id, reference_month)
	);

	CREATE INDEX IF NOT EXISTS idx_result_management_trainer
		ON result_management(trainer_id, reference_month);

	-- Assessment Protocols + Metrics
	CREATE TABLE IF NOT EXISTS assessment_protocols (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		pillar TEXT NOT NULL,
		description TEXT,
		is_archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS protocol_metrics (
		id TEXT PRIMARY KEY,
		protocol_id TEXT NOT NULL,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		is_archived BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_protocol_metrics_protocol
		ON protocol_metrics(protocol_id, sort_order);

	-- Student Assessments + Results
	CREATE TABLE IF NOT EXISTS student_assessments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		protocol_id TEXT NOT NULL,
		performed_at TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assessments_student
		ON student_assessments(student_id, performed_at);

	CREATE TABLE IF NOT EXISTS assessment_results (
		id TEXT PRIMARY KEY,
		assessment_id TEXT NOT NULL,
		metric_id TEXT NOT NULL,
		value REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_assessment
		ON assessment_results(assessment_id);
	CREATE INDEX IF NOT EXISTS idx_results_metric
		ON assessment_results(metric_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RULE STORE (engine.RuleStore interface)
// =============================================================================

const ruleColumns = `id, name, description, calculation_type, base_reward,
	kpi_config_json, is_active, effective_from, effective_until, created_by, created_at`

// GetActiveRule returns the active rule, or (nil, nil) when none is active.
func (s *Store) GetActiveRule(ctx context.Context) (*engine.GameRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM game_rules WHERE is_active = TRUE LIMIT 1")
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// GetRule retrieves a rule by ID.
func (s *Store) GetRule(ctx context.Context, id engine.RuleID) (*engine.GameRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM game_rules WHERE id = ?", string(id))
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListRules returns all rule versions, newest first.
func (s *Store) ListRules(ctx context.Context) ([]engine.GameRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+ruleColumns+" FROM game_rules ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []engine.GameRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// CreateRule persists a new rule version. If the rule is active, the
// previous active rule is deactivated in the same database transaction.
func (s *Store) CreateRule(ctx context.Context, rule engine.GameRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = engine.RuleID(uuid.NewString())
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	configJSON, err := json.Marshal(rule.KPIConfig)
	if err != nil {
		return fmt.Errorf("failed to encode kpi config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if rule.IsActive {
		// The superseded rule's effective window closes when this one
		// takes over.
		if _, err := tx.ExecContext(ctx, `
			UPDATE game_rules SET is_active = FALSE, effective_until = ?
			WHERE is_active = TRUE`,
			time.Now().UTC().Format("2006-01-02")); err != nil {
			return err
		}
	}

	var effectiveUntil any
	if rule.EffectiveUntil != nil {
		effectiveUntil = rule.EffectiveUntil.Format("2006-01-02")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO game_rules
		(id, name, description, calculation_type, base_reward, kpi_config_json,
		 is_active, effective_from, effective_until, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rule.ID), rule.Name, rule.Description,
		string(rule.CalculationType), rule.BaseReward.String(),
		string(configJSON), rule.IsActive,
		rule.EffectiveFrom.Format("2006-01-02"), effectiveUntil,
		rule.CreatedBy, rule.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return tx.Commit()
}

// ActivateRule atomically swaps the active rule.
func (s *Store) ActivateRule(ctx context.Context, id engine.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE game_rules SET is_active = FALSE, effective_until = ?
		WHERE is_active = TRUE`,
		time.Now().UTC().Format("2006-01-02")); err != nil {
		return err
	}

	// Re-activating a superseded version reopens its effective window.
	res, err := tx.ExecContext(ctx,
		"UPDATE game_rules SET is_active = TRUE, effective_until = NULL WHERE id = ?", string(id))
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return engine.ErrRuleNotFound
	}

	return tx.Commit()
}

func scanRule(row interface{ Scan(...any) error }) (*engine.GameRule, error) {
	var (
		rule           engine.GameRule
		id             string
		description    sql.NullString
		baseReward     string
		configJSON     string
		effectiveFrom  string
		effectiveUntil sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := row.Scan(&id, &rule.Name, &description, &rule.CalculationType,
		&baseReward, &configJSON, &rule.IsActive, &effectiveFrom, &effectiveUntil,
		&createdBy, &createdAt)
	if err != nil {
		return nil, err
	}

	rule.ID = engine.RuleID(id)
	rule.Description = description.String
	rule.BaseReward, _ = decimal.NewFromString(baseReward)
	rule.CreatedBy = createdBy.String
	rule.EffectiveFrom, _ = time.Parse("2006-01-02", effectiveFrom)
	if effectiveUntil.Valid {
		until, _ := time.Parse("2006-01-02", effectiveUntil.String)
		rule.EffectiveUntil = &until
	}
	rule.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if err := json.Unmarshal([]byte(configJSON), &rule.KPIConfig); err != nil {
		return nil, fmt.Errorf("failed to decode kpi config: %w", err)
	}

	return &rule, nil
}

// =============================================================================
// TRAINER STORE
// =============================================================================

// SaveTrainer inserts or updates a trainer.
func (s *Store) SaveTrainer(ctx context.Context, t engine.Trainer) (engine.TrainerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = engine.TrainerID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trainers (id, name, email, start_date, is_active, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			start_date = excluded.start_date,
			is_active = excluded.is_active,
			notes = excluded.notes`,
		string(t.ID), t.Name, t.Email,
		t.StartDate.Format("2006-01-02"),
		t.IsActive, t.Notes,
		t.CreatedAt.Format(time.RFC3339),
	)
	return t.ID, err
}

// ListTrainers returns trainers, optionally only active ones.
func (s *Store) ListTrainers(ctx context.Context, activeOnly bool) ([]engine.Trainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, name, email, start_date, is_active, notes, created_at FROM trainers"
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trainers []engine.Trainer
	for rows.Next() {
		t, err := scanTrainer(rows)
		if err != nil {
			return nil, err
		}
		trainers = append(trainers, *t)
	}
	return trainers, rows.Err()
}

// GetTrainer retrieves a trainer by ID.
func (s *Store) GetTrainer(ctx context.Context, id engine.TrainerID) (*engine.Trainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, start_date, is_active, notes, created_at FROM trainers WHERE id = ?",
		string(id))
	t, err := scanTrainer(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrTrainerNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanTrainer(row interface{ Scan(...any) error }) (*engine.Trainer, error) {
	var (
		t         engine.Trainer
		id        string
		email     sql.NullString
		startDate string
		notes     sql.NullString
		createdAt string
	)
	err := row.Scan(&id, &t.Name, &email, &startDate, &t.IsActive, &notes, &createdAt)
	if err != nil {
		return nil, err
	}
	t.ID = engine.TrainerID(id)
	t.Email = email.String
	t.Notes = notes.String
	t.StartDate, _ = time.Parse("2006-01-02", startDate)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &t, nil
}

// =============================================================================
// STUDENT STORE
// =============================================================================

const studentColumns = `id, full_name, email, phone, trainer_id, status, origin,
	referred_by, start_date, end_date, notes, is_archived, created_at, updated_at`

// SaveStudent inserts or updates a student.
func (s *Store) SaveStudent(ctx context.Context, st engine.Student) (engine.StudentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = engine.StudentID(uuid.NewString())
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	var endDate *string
	if st.EndDate != nil {
		d := st.EndDate.Format("2006-01-02")
		endDate = &d
	}
	var referredBy *string
	if st.ReferredBy != "" {
		r := string(st.ReferredBy)
		referredBy = &r
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students
		(id, full_name, email, phone, trainer_id, status, origin, referred_by,
		 start_date, end_date, notes, is_archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			phone = excluded.phone,
			trainer_id = excluded.trainer_id,
			status = excluded.status,
			origin = excluded.origin,
			referred_by = excluded.referred_by,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			notes = excluded.notes,
			is_archived = excluded.is_archived,
			updated_at = excluded.updated_at`,
		string(st.ID), st.FullName, st.Email, st.Phone,
		string(st.TrainerID), string(st.Status), string(st.Origin), referredBy,
		st.StartDate.Format("2006-01-02"), endDate, st.Notes, st.IsArchived,
		st.CreatedAt.Format(time.RFC3339), st.UpdatedAt.Format(time.RFC3339),
	)
	return st.ID, err
}

// GetStudent retrieves a student by ID.
func (s *Store) GetStudent(ctx context.Context, id engine.StudentID) (*engine.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+studentColumns+" FROM students WHERE id = ?", string(id))
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrStudentNotFound
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ListStudents returns all students, optionally excluding archived ones.
func (s *Store) ListStudents(ctx context.Context, includeArchived bool) ([]engine.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + studentColumns + " FROM students"
	if !includeArchived {
		query += " WHERE is_archived = FALSE"
	}
	query += " ORDER BY full_name"

	return s.queryStudents(ctx, query)
}

// StudentsByTrainer returns all students assigned to the trainer.
func (s *Store) StudentsByTrainer(ctx context.Context, id engine.TrainerID) ([]engine.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryStudents(ctx,
		"SELECT "+studentColumns+" FROM students WHERE trainer_id = ?", string(id))
}

// StudentsReferredBy returns students whose referral is credited to the trainer.
func (s *Store) StudentsReferredBy(ctx context.Context, id engine.TrainerID) ([]engine.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryStudents(ctx,
		"SELECT "+studentColumns+" FROM students WHERE referred_by = ? AND origin = 'referral'",
		string(id))
}

func (s *Store) queryStudents(ctx context.Context, query string, args ...any) ([]engine.Student, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []engine.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, *st)
	}
	return students, rows.Err()
}

func scanStudent(row interface{ Scan(...any) error }) (*engine.Student, error) {
	var (
		st         engine.Student
		id         string
		email      sql.NullString
		phone      sql.NullString
		trainerID  string
		referredBy sql.NullString
		startDate  string
		endDate    sql.NullString
		notes      sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(&id, &st.FullName, &email, &phone, &trainerID,
		&st.Status, &st.Origin, &referredBy, &startDate, &endDate,
		&notes, &st.IsArchived, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	st.ID = engine.StudentID(id)
	st.Email = email.String
	st.Phone = phone.String
	st.TrainerID = engine.TrainerID(trainerID)
	st.ReferredBy = engine.TrainerID(referredBy.String)
	st.Notes = notes.String
	st.StartDate, _ = time.Parse("2006-01-02", startDate)
	if endDate.Valid {
		t, _ := time.Parse("2006-01-02", endDate.String)
		st.EndDate = &t
	}
	st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &st, nil
}

// =============================================================================
// EVENT STORE (engine.EventStore interface) - Append-only
// =============================================================================

// AppendEvent adds a student event. Append-only.
func (s *Store) AppendEvent(ctx context.Context, ev engine.StudentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	oldJSON, _ := json.Marshal(ev.OldValue)
	newJSON, _ := json.Marshal(ev.NewValue)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO student_events
		(id, student_id, event_type, old_value_json, new_value_json, event_date, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.StudentID), string(ev.Type),
		string(oldJSON), string(newJSON),
		ev.EventDate.Format(time.RFC3339), ev.CreatedBy,
		ev.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// EventsByStudent returns a student's events, oldest first.
func (s *Store) EventsByStudent(ctx context.Context, id engine.StudentID) ([]engine.StudentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, event_type, old_value_json, new_value_json,
		       event_date, created_by, created_at
		FROM student_events
		WHERE student_id = ?
		ORDER BY event_date ASC, created_at ASC`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []engine.StudentEvent
	for rows.Next() {
		var (
			ev        engine.StudentEvent
			studentID string
			oldJSON   sql.NullString
			newJSON   sql.NullString
			eventDate string
			createdBy sql.NullString
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &studentID, &ev.Type, &oldJSON, &newJSON,
			&eventDate, &createdBy, &createdAt); err != nil {
			return nil, err
		}
		ev.StudentID = engine.StudentID(studentID)
		ev.CreatedBy = createdBy.String
		ev.EventDate, _ = time.Parse(time.RFC3339, eventDate)
		ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if oldJSON.Valid && oldJSON.String != "" {
			json.Unmarshal([]byte(oldJSON.String), &ev.OldValue)
		}
		if newJSON.Valid && newJSON.String != "" {
			json.Unmarshal([]byte(newJSON.String), &ev.NewValue)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// =============================================================================
// RESULT MANAGEMENT STORE
// =============================================================================

// UpsertManagementRecord inserts or updates the monthly completeness row.
func (s *Store) UpsertManagementRecord(ctx context.Context, r engine.ManagementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO result_management
		(id, student_id, trainer_id, reference_month,
		 has_initial_assessment, has_reassessment, has_documented_result, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(student_id, reference_month) DO UPDATE SET
			trainer_id = excluded.trainer_id,
			has_initial_assessment = excluded.has_initial_assessment,
			has_reassessment = excluded.has_reassessment,
			has_documented_result = excluded.has_documented_result,
			updated_at = excluded.updated_at`,
		r.ID, string(r.StudentID), string(r.TrainerID), r.Month.Key(),
		r.HasInitialAssessment, r.HasReassessment, r.HasDocumentedResult,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ManagementRecords returns the trainer's completeness rows for the month.
func (s *Store) ManagementRecords(ctx context.Context, id engine.TrainerID, month engine.Month) ([]engine.ManagementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, trainer_id, reference_month,
		       has_initial_assessment, has_reassessment, has_documented_result, updated_at
		FROM result_management
		WHERE trainer_id = ? AND reference_month = ?`,
		string(id), month.Key())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []engine.ManagementRecord
	for rows.Next() {
		var (
			r          engine.ManagementRecord
			studentID  string
			trainerID  string
			monthKey   string
			updatedAt  string
		)
		if err := rows.Scan(&r.ID, &studentID, &trainerID, &monthKey,
			&r.HasInitialAssessment, &r.HasReassessment, &r.HasDocumentedResult,
			&updatedAt); err != nil {
			return nil, err
		}
		r.StudentID = engine.StudentID(studentID)
		r.TrainerID = engine.TrainerID(trainerID)
		r.Month, _ = engine.ParseMonth(monthKey)
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// SNAPSHOT STORE (engine.SnapshotStore interface)
// =============================================================================

const snapshotColumns = `id, trainer_id, reference_month, game_rule_id,
	students_start, students_end, cancellations,
	retention_rate, retention_eligible, retention_achieved,
	referrals_count, referrals_pending, referrals_achieved,
	management_rate, management_managed, management_achieved,
	reward_amount, is_finalized, finalized_at, finalized_by, generated_at`

// GetSnapshot returns the snapshot for (trainer, month), or (nil, nil) when absent.
func (s *Store) GetSnapshot(ctx context.Context, trainerID engine.TrainerID, month engine.Month) (*engine.PerformanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM performance_snapshots WHERE trainer_id = ? AND reference_month = ?",
		string(trainerID), month.Key())
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// UpsertSnapshot inserts or overwrites the open snapshot for the row's
// (trainer, month). The conditional update clause makes overwriting a
// finalized row impossible at the storage layer.
func (s *Store) UpsertSnapshot(ctx context.Context, snap engine.PerformanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.ID == "" {
		snap.ID = engine.SnapshotID(uuid.NewString())
	}
	if snap.GeneratedAt.IsZero() {
		snap.GeneratedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO performance_snapshots
		(id, trainer_id, reference_month, game_rule_id,
		 students_start, students_end, cancellations,
		 retention_rate, retention_eligible, retention_achieved,
		 referrals_count, referrals_pending, referrals_achieved,
		 management_rate, management_managed, management_achieved,
		 reward_amount, is_finalized, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?)
		ON CONFLICT(trainer_id, reference_month) DO UPDATE SET
			game_rule_id = excluded.game_rule_id,
			students_start = excluded.students_start,
			students_end = excluded.students_end,
			cancellations = excluded.cancellations,
			retention_rate = excluded.retention_rate,
			retention_eligible = excluded.retention_eligible,
			retention_achieved = excluded.retention_achieved,
			referrals_count = excluded.referrals_count,
			referrals_pending = excluded.referrals_pending,
			referrals_achieved = excluded.referrals_achieved,
			management_rate = excluded.management_rate,
			management_managed = excluded.management_managed,
			management_achieved = excluded.management_achieved,
			reward_amount = excluded.reward_amount,
			generated_at = excluded.generated_at
		WHERE performance_snapshots.is_finalized = FALSE`,
		string(snap.ID), string(snap.TrainerID), snap.Month.Key(), string(snap.GameRuleID),
		snap.StudentsStart, snap.StudentsEnd, snap.Cancellations,
		snap.RetentionRate.String(), snap.RetentionEligible, snap.RetentionAchieved,
		snap.ReferralsCount, snap.ReferralsPending, snap.ReferralsAchieved,
		snap.ManagementRate.String(), snap.ManagementManaged, snap.ManagementAchieved,
		snap.RewardAmount.String(),
		snap.GeneratedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		// The conflict hit a finalized row; the WHERE clause suppressed it.
		return &engine.FinalizedSnapshotError{TrainerID: snap.TrainerID, Month: snap.Month}
	}
	return nil
}

// FinalizeSnapshot marks the snapshot immutable. One-way.
func (s *Store) FinalizeSnapshot(ctx context.Context, trainerID engine.TrainerID, month engine.Month, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE performance_snapshots
		SET is_finalized = TRUE, finalized_at = ?, finalized_by = ?
		WHERE trainer_id = ? AND reference_month = ? AND is_finalized = FALSE`,
		now, by, string(trainerID), month.Key())
	if err != nil {
		return err
	}

	affected, _ := res.RowsAffected()
	if affected > 0 {
		return nil
	}

	// Distinguish "absent" from "already finalized".
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM performance_snapshots WHERE trainer_id = ? AND reference_month = ?",
		string(trainerID), month.Key()).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return engine.ErrSnapshotNotFound
	}
	return engine.ErrSnapshotFinalized
}

// ListSnapshots returns all snapshots for the month.
func (s *Store) ListSnapshots(ctx context.Context, month engine.Month) ([]engine.PerformanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySnapshots(ctx,
		"SELECT "+snapshotColumns+" FROM performance_snapshots WHERE reference_month = ? ORDER BY trainer_id",
		month.Key())
}

// ListTrainerSnapshots returns a trainer's snapshots, newest month first.
func (s *Store) ListTrainerSnapshots(ctx context.Context, trainerID engine.TrainerID) ([]engine.PerformanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySnapshots(ctx,
		"SELECT "+snapshotColumns+" FROM performance_snapshots WHERE trainer_id = ? ORDER BY reference_month DESC",
		string(trainerID))
}

func (s *Store) querySnapshots(ctx context.Context, query string, args ...any) ([]engine.PerformanceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []engine.PerformanceSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

func scanSnapshot(row interface{ Scan(...any) error }) (*engine.PerformanceSnapshot, error) {
	var (
		snap           engine.PerformanceSnapshot
		id             string
		trainerID      string
		monthKey       string
		ruleID         string
		retentionRate  string
		managementRate string
		rewardAmount   string
		finalizedAt    sql.NullString
		finalizedBy    sql.NullString
		generatedAt    string
	)

	err := row.Scan(&id, &trainerID, &monthKey, &ruleID,
		&snap.StudentsStart, &snap.StudentsEnd, &snap.Cancellations,
		&retentionRate, &snap.RetentionEligible, &snap.RetentionAchieved,
		&snap.ReferralsCount, &snap.ReferralsPending, &snap.ReferralsAchieved,
		&managementRate, &snap.ManagementManaged, &snap.ManagementAchieved,
		&rewardAmount, &snap.IsFinalized, &finalizedAt, &finalizedBy, &generatedAt)
	if err != nil {
		return nil, err
	}

	snap.ID = engine.SnapshotID(id)
	snap.TrainerID = engine.TrainerID(trainerID)
	snap.Month, _ = engine.ParseMonth(monthKey)
	snap.GameRuleID = engine.RuleID(ruleID)
	snap.RetentionRate, _ = decimal.NewFromString(retentionRate)
	snap.ManagementRate, _ = decimal.NewFromString(managementRate)
	snap.RewardAmount, _ = decimal.NewFromString(rewardAmount)
	snap.FinalizedBy = finalizedBy.String
	snap.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
	if finalizedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finalizedAt.String)
		snap.FinalizedAt = &t
	}
	return &snap, nil
}

// =============================================================================
// PROTOCOL STORE
// =============================================================================

// SaveProtocol inserts or updates a protocol with its metrics.
// A metric's unit is protected once results reference it: the stored
// unit wins and the change is rejected with ErrMetricInUse.
func (s *Store) SaveProtocol(ctx context.Context, p assessment.Protocol) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assessment_protocols (id, name, pillar, description, is_archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			pillar = excluded.pillar,
			description = excluded.description,
			is_archived = excluded.is_archived`,
		p.ID, p.Name, string(p.Pillar), p.Description, p.IsArchived,
		p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return "", err
	}

	for i := range p.Metrics {
		m := &p.Metrics[i]
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.ProtocolID = p.ID

		var currentUnit string
		var hasResults bool
		err := tx.QueryRowContext(ctx, `
			SELECT pm.unit, EXISTS(SELECT 1 FROM assessment_results ar WHERE ar.metric_id = pm.id)
			FROM protocol_metrics pm WHERE pm.id = ?`, m.ID).Scan(&currentUnit, &hasResults)
		switch {
		case err == sql.ErrNoRows:
			// new metric
		case err != nil:
			return "", err
		case hasResults && currentUnit != m.Unit:
			return "", engine.ErrMetricInUse
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO protocol_metrics (id, protocol_id, name, unit, sort_order, is_archived)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				unit = excluded.unit,
				sort_order = excluded.sort_order,
				is_archived = excluded.is_archived`,
			m.ID, m.ProtocolID, m.Name, m.Unit, m.SortOrder, m.IsArchived,
		)
		if err != nil {
			return "", err
		}
	}

	return p.ID, tx.Commit()
}

// ListProtocols returns protocols with their metrics, optionally
// excluding archived ones.
func (s *Store) ListProtocols(ctx context.Context, includeArchived bool) ([]assessment.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, name, pillar, description, is_archived, created_at FROM assessment_protocols"
	if !includeArchived {
		query += " WHERE is_archived = FALSE"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var protocols []assessment.Protocol
	for rows.Next() {
		var (
			p           assessment.Protocol
			description sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Pillar, &description, &p.IsArchived, &createdAt); err != nil {
			return nil, err
		}
		p.Description = description.String
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		protocols = append(protocols, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range protocols {
		metrics, err := s.protocolMetrics(ctx, protocols[i].ID, includeArchived)
		if err != nil {
			return nil, err
		}
		protocols[i].Metrics = metrics
	}
	return protocols, nil
}

func (s *Store) protocolMetrics(ctx context.Context, protocolID string, includeArchived bool) ([]assessment.Metric, error) {
	query := "SELECT id, protocol_id, name, unit, sort_order, is_archived FROM protocol_metrics WHERE protocol_id = ?"
	if !includeArchived {
		query += " AND is_archived = FALSE"
	}
	query += " ORDER BY sort_order"

	rows, err := s.db.QueryContext(ctx, query, protocolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []assessment.Metric
	for rows.Next() {
		var m assessment.Metric
		if err := rows.Scan(&m.ID, &m.ProtocolID, &m.Name, &m.Unit, &m.SortOrder, &m.IsArchived); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// =============================================================================
// ASSESSMENT STORE (assessment.Reader + writes)
// =============================================================================

// SaveAssessment persists an assessment with all its results atomically.
func (s *Store) SaveAssessment(ctx context.Context, a assessment.Assessment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO student_assessments (id, student_id, protocol_id, performed_at, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.StudentID, a.ProtocolID,
		a.PerformedAt.Format(time.RFC3339), a.Notes,
		a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert assessment: %w", err)
	}

	for _, r := range a.Results {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO assessment_results (id, assessment_id, metric_id, value)
			VALUES (?, ?, ?, ?)`,
			r.ID, a.ID, r.MetricID, r.Value,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert result: %w", err)
		}
	}

	return a.ID, tx.Commit()
}

// ListByStudent returns the student's assessments with results and
// denormalized protocol/metric names, newest first.
func (s *Store) ListByStudent(ctx context.Context, studentID string) ([]assessment.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.student_id, a.protocol_id, p.name, p.pillar, a.performed_at, a.notes, a.created_at
		FROM student_assessments a
		JOIN assessment_protocols p ON p.id = a.protocol_id
		WHERE a.student_id = ?
		ORDER BY a.performed_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assessments []assessment.Assessment
	for rows.Next() {
		var (
			a           assessment.Assessment
			performedAt string
			notes       sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&a.ID, &a.StudentID, &a.ProtocolID, &a.ProtocolName,
			&a.Pillar, &performedAt, &notes, &createdAt); err != nil {
			return nil, err
		}
		a.Notes = notes.String
		a.PerformedAt, _ = time.Parse(time.RFC3339, performedAt)
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		assessments = append(assessments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range assessments {
		results, err := s.assessmentResults(ctx, assessments[i].ID)
		if err != nil {
			return nil, err
		}
		assessments[i].Results = results
	}
	return assessments, nil
}

func (s *Store) assessmentResults(ctx context.Context, assessmentID string) ([]assessment.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.assessment_id, r.metric_id, m.name, m.unit, r.value
		FROM assessment_results r
		JOIN protocol_metrics m ON m.id = r.metric_id
		WHERE r.assessment_id = ?
		ORDER BY m.sort_order`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []assessment.Result
	for rows.Next() {
		var r assessment.Result
		if err := rows.Scan(&r.ID, &r.AssessmentID, &r.MetricID, &r.MetricName, &r.Unit, &r.Value); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"assessment_results", "student_assessments", "protocol_metrics",
		"assessment_protocols", "result_management", "performance_snapshots",
		"student_events", "students", "game_rules", "trainers",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
