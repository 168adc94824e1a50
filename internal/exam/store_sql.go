package exam

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const examColumns = `id,institution_id,lms_setup_id,external_id,name,type,status,active,owner,supporter,created_at`

type scanner interface{ Scan(dest ...any) error }

func scanExam(row scanner) (Exam, error) {
	var e Exam
	var typ, status, supporter string
	if err := row.Scan(&e.ID, &e.InstitutionID, &e.LmsSetupID, &e.ExternalID, &e.Name,
		&typ, &status, &e.Active, &e.Owner, &supporter, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Exam{}, ErrNotFound
		}
		return Exam{}, err
	}
	e.Type, e.Status = Type(typ), Status(status)
	if supporter != "" {
		e.Supporter = strings.Split(supporter, ",")
	}
	return e, nil
}

// Import relies on UNIQUE(lms_setup_id, external_id): a conflicting insert is
// a no-op and the stored row wins.
func (s *SQLStore) Import(ctx context.Context, e Exam) (Exam, bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO exams (`+examColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (lms_setup_id, external_id) DO NOTHING`,
		e.ID, e.InstitutionID, e.LmsSetupID, e.ExternalID, e.Name,
		string(e.Type), string(e.Status), e.Active, e.Owner, strings.Join(e.Supporter, ","), e.CreatedAt)
	if err != nil {
		return Exam{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Exam{}, false, err
	}
	stored, err := s.GetByExternalID(ctx, e.LmsSetupID, e.ExternalID)
	if err != nil {
		return Exam{}, false, err
	}
	return stored, n > 0, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Exam, error) {
	return scanExam(s.db.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id=$1`, id))
}

func (s *SQLStore) GetByExternalID(ctx context.Context, lmsSetupID int64, externalID string) (Exam, error) {
	return scanExam(s.db.QueryRowContext(ctx,
		`SELECT `+examColumns+` FROM exams WHERE lms_setup_id=$1 AND external_id=$2`, lmsSetupID, externalID))
}

func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]Exam, error) {
	var where []string
	var args []any
	if opts.InstitutionID != 0 {
		args = append(args, opts.InstitutionID)
		where = append(where, "institution_id=$"+strconv.Itoa(len(args)))
	}
	if opts.LmsSetupID != 0 {
		args = append(args, opts.LmsSetupID)
		where = append(where, "lms_setup_id=$"+strconv.Itoa(len(args)))
	}
	q := `SELECT ` + examColumns + ` FROM exams`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += ` LIMIT $` + strconv.Itoa(len(args))
		if opts.Offset > 0 {
			args = append(args, opts.Offset)
			q += ` OFFSET $` + strconv.Itoa(len(args))
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
