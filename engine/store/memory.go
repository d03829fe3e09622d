// Package store provides engine.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playbook/studio-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	trainers  map[engine.TrainerID]engine.Trainer
	students  map[engine.StudentID]engine.Student
	events    []engine.StudentEvent
	rules     map[engine.RuleID]engine.GameRule
	ruleOrder []engine.RuleID // creation order, oldest first
	snapshots map[snapKey]engine.PerformanceSnapshot
	records   map[string]engine.ManagementRecord // keyed student|month
}

type snapKey struct {
	TrainerID engine.TrainerID
	MonthKey  string
}

func NewMemory() *Memory {
	return &Memory{
		trainers:  make(map[engine.TrainerID]engine.Trainer),
		students:  make(map[engine.StudentID]engine.Student),
		rules:     make(map[engine.RuleID]engine.GameRule),
		snapshots: make(map[snapKey]engine.PerformanceSnapshot),
		records:   make(map[string]engine.ManagementRecord),
	}
}

// =============================================================================
// ROSTER WRITES - Setup helpers for tests and seeding
// =============================================================================

func (m *Memory) PutTrainer(t engine.Trainer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = engine.TrainerID(uuid.NewString())
	}
	m.trainers[t.ID] = t
}

func (m *Memory) PutStudent(s engine.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = engine.StudentID(uuid.NewString())
	}
	m.students[s.ID] = s
}

func (m *Memory) PutManagementRecord(r engine.ManagementRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.records[string(r.StudentID)+"|"+r.Month.Key()] = r
}

// =============================================================================
// RULE STORE
// =============================================================================

func (m *Memory) GetActiveRule(_ context.Context) (*engine.GameRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rules {
		if r.IsActive {
			rule := r
			return &rule, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetRule(_ context.Context, id engine.RuleID) (*engine.GameRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, engine.ErrRuleNotFound
	}
	return &r, nil
}

func (m *Memory) ListRules(_ context.Context) ([]engine.GameRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]engine.GameRule, 0, len(m.ruleOrder))
	for i := len(m.ruleOrder) - 1; i >= 0; i-- {
		result = append(result, m.rules[m.ruleOrder[i]])
	}
	return result, nil
}

func (m *Memory) CreateRule(_ context.Context, rule engine.GameRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rule.ID == "" {
		rule.ID = engine.RuleID(uuid.NewString())
	}
	if rule.IsActive {
		m.supersedeActiveLocked()
	}
	m.rules[rule.ID] = rule
	m.ruleOrder = append(m.ruleOrder, rule.ID)
	return nil
}

func (m *Memory) ActivateRule(_ context.Context, id engine.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return engine.ErrRuleNotFound
	}
	m.supersedeActiveLocked()
	rule.IsActive = true
	rule.EffectiveUntil = nil
	m.rules[id] = rule
	return nil
}

// supersedeActiveLocked deactivates the current rule and closes its
// effective window.
func (m *Memory) supersedeActiveLocked() {
	now := time.Now().UTC()
	for id, r := range m.rules {
		if r.IsActive {
			r.IsActive = false
			r.EffectiveUntil = &now
			m.rules[id] = r
		}
	}
}

// =============================================================================
// ROSTER STORE
// =============================================================================

func (m *Memory) ListTrainers(_ context.Context, activeOnly bool) ([]engine.Trainer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.Trainer
	for _, t := range m.trainers {
		if activeOnly && !t.IsActive {
			continue
		}
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) GetTrainer(_ context.Context, id engine.TrainerID) (*engine.Trainer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trainers[id]
	if !ok {
		return nil, engine.ErrTrainerNotFound
	}
	return &t, nil
}

func (m *Memory) StudentsByTrainer(_ context.Context, id engine.TrainerID) ([]engine.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.Student
	for _, s := range m.students {
		if s.TrainerID == id {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *Memory) StudentsReferredBy(_ context.Context, id engine.TrainerID) ([]engine.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.Student
	for _, s := range m.students {
		if s.Origin == engine.OriginReferral && s.ReferredBy == id {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *Memory) ManagementRecords(_ context.Context, id engine.TrainerID, month engine.Month) ([]engine.ManagementRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.ManagementRecord
	for _, r := range m.records {
		if r.TrainerID == id && r.Month.Equal(month) {
			result = append(result, r)
		}
	}
	return result, nil
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

func (m *Memory) GetSnapshot(_ context.Context, trainerID engine.TrainerID, month engine.Month) (*engine.PerformanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[snapKey{trainerID, month.Key()}]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *Memory) UpsertSnapshot(_ context.Context, snap engine.PerformanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := snapKey{snap.TrainerID, snap.Month.Key()}
	if existing, ok := m.snapshots[k]; ok {
		if existing.IsFinalized {
			return &engine.FinalizedSnapshotError{TrainerID: snap.TrainerID, Month: snap.Month}
		}
		snap.ID = existing.ID
	}
	if snap.ID == "" {
		snap.ID = engine.SnapshotID(uuid.NewString())
	}
	m.snapshots[k] = snap
	return nil
}

func (m *Memory) FinalizeSnapshot(_ context.Context, trainerID engine.TrainerID, month engine.Month, by string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := snapKey{trainerID, month.Key()}
	snap, ok := m.snapshots[k]
	if !ok {
		return engine.ErrSnapshotNotFound
	}
	if snap.IsFinalized {
		return engine.ErrSnapshotFinalized
	}
	now := time.Now().UTC()
	snap.IsFinalized = true
	snap.FinalizedAt = &now
	snap.FinalizedBy = by
	m.snapshots[k] = snap
	return nil
}

func (m *Memory) ListSnapshots(_ context.Context, month engine.Month) ([]engine.PerformanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.PerformanceSnapshot
	for _, s := range m.snapshots {
		if s.Month.Equal(month) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TrainerID < result[j].TrainerID })
	return result, nil
}

func (m *Memory) ListTrainerSnapshots(_ context.Context, trainerID engine.TrainerID) ([]engine.PerformanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.PerformanceSnapshot
	for _, s := range m.snapshots {
		if s.TrainerID == trainerID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[j].Month.Before(result[i].Month) })
	return result, nil
}

// =============================================================================
// EVENT STORE - Append-only
// =============================================================================

func (m *Memory) AppendEvent(_ context.Context, ev engine.StudentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) EventsByStudent(_ context.Context, id engine.StudentID) ([]engine.StudentEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []engine.StudentEvent
	for _, ev := range m.events {
		if ev.StudentID == id {
			result = append(result, ev)
		}
	}
	return result, nil
}
