package exam

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-seb/internal/lms"
)

var ErrNotFound = errors.New("exam not found")

type Type string

const (
	TypeUndefined Type = "UNDEFINED"
	TypeManaged   Type = "MANAGED"
	TypeBYOD      Type = "BYOD"
	TypeVDI       Type = "VDI"
)

func ParseType(s string) Type {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeManaged, TypeBYOD, TypeVDI:
		return t
	}
	return TypeUndefined
}

type Status string

const (
	StatusUpComing Status = "UP_COMING"
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
)

// Exam is the durable record of an imported quiz. (LmsSetupID, ExternalID)
// identifies it across imports.
type Exam struct {
	ID            string   `json:"id"`
	InstitutionID int64    `json:"institutionId"`
	LmsSetupID    int64    `json:"lmsSetupId"`
	ExternalID    string   `json:"quizId"`
	Name          string   `json:"name"`
	Type          Type     `json:"type"`
	Status        Status   `json:"status"`
	Active        bool     `json:"active"`
	Owner         string   `json:"owner"`
	Supporter     []string `json:"supporter,omitempty"`
	CreatedAt     int64    `json:"createdAt,omitempty"`
}

type ListOpts struct {
	InstitutionID int64
	LmsSetupID    int64
	Limit         int
	Offset        int
}

type Store interface {
	// Import stores e unless an exam with the same LMS setup and external id
	// exists; in that case the existing exam is returned with created=false.
	Import(ctx context.Context, e Exam) (stored Exam, created bool, err error)
	Get(ctx context.Context, id string) (Exam, error)
	GetByExternalID(ctx context.Context, lmsSetupID int64, externalID string) (Exam, error)
	List(ctx context.Context, opts ListOpts) ([]Exam, error)
}

// FromQuiz maps a quiz to a new, inactive exam draft owned by owner and
// supported by the given users.
func FromQuiz(q lms.QuizData, typ Type, owner string, now time.Time, supporters ...string) Exam {
	if typ == "" {
		typ = TypeUndefined
	}
	return Exam{
		ID:            uuid.NewString(),
		InstitutionID: q.InstitutionID,
		LmsSetupID:    q.LmsSetupID,
		ExternalID:    q.ID,
		Name:          q.Name,
		Type:          typ,
		Status:        StatusAt(q, now),
		Owner:         owner,
		Supporter:     supporters,
		CreatedAt:     now.Unix(),
	}
}

// StatusAt derives the exam status from the quiz schedule.
func StatusAt(q lms.QuizData, now time.Time) Status {
	switch {
	case now.Before(q.StartTime):
		return StatusUpComing
	case q.EndTime == nil || now.Before(*q.EndTime):
		return StatusRunning
	default:
		return StatusFinished
	}
}
