package lmssetup

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-seb/internal/credentials"
	"github.com/mind-engage/mindengage-seb/internal/lms"
)

type SQLStore struct {
	db    *sql.DB
	creds *credentials.Store
}

func NewSQLStore(db *sql.DB, creds *credentials.Store) *SQLStore {
	return &SQLStore{db: db, creds: creds}
}

const setupColumns = `id,institution_id,name,lms_type,lms_url,lms_client_id,lms_client_secret,lms_access_token,active,version`

type scanner interface{ Scan(dest ...any) error }

func scanSetup(row scanner) (lms.Setup, error) {
	var s lms.Setup
	var typ string
	err := row.Scan(&s.ID, &s.InstitutionID, &s.Name, &typ, &s.URL,
		&s.Credentials.ClientID, &s.Credentials.Secret, &s.Credentials.AccessToken,
		&s.Active, &s.Version)
	s.Type = lms.Type(typ)
	return s, err
}

func (r *SQLStore) Get(ctx context.Context, id int64) (lms.Setup, error) {
	s, err := scanSetup(r.db.QueryRowContext(ctx, `SELECT `+setupColumns+` FROM lms_setups WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return lms.Setup{}, notFound(id)
	}
	return s, err
}

func (r *SQLStore) List(ctx context.Context, f Filter) ([]lms.Setup, error) {
	var where []string
	var args []any
	if f.InstitutionID != 0 {
		args = append(args, f.InstitutionID)
		where = append(where, "institution_id=$"+strconv.Itoa(len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		where = append(where, "active=$"+strconv.Itoa(len(args)))
	}
	q := `SELECT ` + setupColumns + ` FROM lms_setups`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []lms.Setup{}
	for rows.Next() {
		s, err := scanSetup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLStore) nameTaken(ctx context.Context, institution int64, name string, except int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM lms_setups WHERE institution_id=$1 AND name=$2 AND id<>$3`,
		institution, name, except).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *SQLStore) Create(ctx context.Context, in Input) (lms.Setup, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return lms.Setup{}, err
	}
	if taken, err := r.nameTaken(ctx, in.InstitutionID, in.Name, 0); err != nil {
		return lms.Setup{}, err
	} else if taken {
		return lms.Setup{}, ErrDuplicateName
	}
	enc, err := seal(r.creds, in, credentials.Encrypted{})
	if err != nil {
		return lms.Setup{}, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx, `INSERT INTO lms_setups
		(institution_id,name,lms_type,lms_url,lms_client_id,lms_client_secret,lms_access_token,active,version,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1,$9) RETURNING id`,
		in.InstitutionID, in.Name, string(in.Type), in.URL,
		enc.ClientID, enc.Secret, enc.AccessToken, in.Active, time.Now().Unix()).Scan(&id)
	if err != nil {
		return lms.Setup{}, err
	}
	return r.Get(ctx, id)
}

func (r *SQLStore) Save(ctx context.Context, id int64, in Input) (lms.Setup, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return lms.Setup{}, err
	}
	prev, err := r.Get(ctx, id)
	if err != nil {
		return lms.Setup{}, err
	}
	if taken, err := r.nameTaken(ctx, prev.InstitutionID, in.Name, id); err != nil {
		return lms.Setup{}, err
	} else if taken {
		return lms.Setup{}, ErrDuplicateName
	}
	enc, err := seal(r.creds, in, prev.Credentials)
	if err != nil {
		return lms.Setup{}, err
	}
	_, err = r.db.ExecContext(ctx, `UPDATE lms_setups SET
		name=$1, lms_type=$2, lms_url=$3, lms_client_id=$4, lms_client_secret=$5, lms_access_token=$6,
		active=$7, version=version+1, updated_at=$8
		WHERE id=$9`,
		in.Name, string(in.Type), in.URL, enc.ClientID, enc.Secret, enc.AccessToken,
		in.Active, time.Now().Unix(), id)
	if err != nil {
		return lms.Setup{}, err
	}
	return r.Get(ctx, id)
}

func (r *SQLStore) SetActive(ctx context.Context, id int64, active bool) (lms.Setup, error) {
	// unchanged rows keep their version
	_, err := r.db.ExecContext(ctx,
		`UPDATE lms_setups SET active=$1, version=version+1, updated_at=$2 WHERE id=$3 AND active<>$1`,
		active, time.Now().Unix(), id)
	if err != nil {
		return lms.Setup{}, err
	}
	return r.Get(ctx, id)
}

func (r *SQLStore) UpdateAccessToken(ctx context.Context, id int64, token []byte) error {
	sealed, err := sealToken(r.creds, token)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE lms_setups SET lms_access_token=$1 WHERE id=$2`, sealed, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	return nil
}
