// Package activity records user actions against exams and LMS setups in the
// append-only event_log table.
package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"
)

type Type string

const (
	TypeImport            Type = "IMPORT"
	TypeRestrictionPush   Type = "RESTRICTION_PUSH"
	TypeRestrictionDelete Type = "RESTRICTION_DELETE"
	TypeConnectionTest    Type = "CONNECTION_TEST"
)

type Entity string

const (
	EntityExam     Entity = "EXAM"
	EntityLmsSetup Entity = "LMS_SETUP"
)

type Event struct {
	Seq           int64           `json:"seq"`
	InstitutionID int64           `json:"institutionId"`
	Type          Type            `json:"type"`
	Entity        Entity          `json:"entity"`
	Key           string          `json:"key"`
	Actor         string          `json:"actor,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	CreatedAt     int64           `json:"createdAt"`
}

type Log interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, institutionID int64, limit int) ([]Event, error)
}

// Payload marshals v for Event.Data, falling back to an empty object.
func Payload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	data := string(e.Data)
	if data == "" {
		data = "{}"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (institution_id, typ, entity, key, actor, data, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.InstitutionID, string(e.Type), string(e.Entity), e.Key, e.Actor, data, time.Now().Unix())
	return err
}

// List returns the newest events first. institutionID 0 lists all.
func (r *EventRepo) List(ctx context.Context, institutionID int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, institution_id, typ, entity, key, actor, data, created_at
		 FROM event_log WHERE ($1 = 0 OR institution_id = $1)
		 ORDER BY seq DESC LIMIT $2`, institutionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		var typ, entity, data string
		if err := rows.Scan(&e.Seq, &e.InstitutionID, &typ, &entity, &e.Key, &e.Actor, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type, e.Entity, e.Data = Type(typ), Entity(entity), json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}

type MemLog struct {
	mu     sync.Mutex
	events []Event
}

func NewMemLog() *MemLog { return &MemLog{} }

func (m *MemLog) Append(ctx context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Seq = int64(len(m.events) + 1)
	e.CreatedAt = time.Now().Unix()
	m.events = append(m.events, e)
	return nil
}

func (m *MemLog) List(ctx context.Context, institutionID int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Event{}
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if institutionID == 0 || m.events[i].InstitutionID == institutionID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}
