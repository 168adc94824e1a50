// Package lmssetup persists LMS setups. Client credentials are sealed by the
// credentials store before they reach any storage and stay sealed on read.
package lmssetup

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-seb/internal/credentials"
	"github.com/mind-engage/mindengage-seb/internal/lms"
)

var ErrDuplicateName = errors.New("lmssetup: name already used in institution")

// Input carries plaintext credentials from the admin API. Empty credential
// fields on update keep the stored value.
type Input struct {
	InstitutionID int64    `json:"institutionId"`
	Name          string   `json:"name"`
	Type          lms.Type `json:"lmsType"`
	URL           string   `json:"lmsUrl"`
	ClientID      string   `json:"lmsClientname,omitempty"`
	Secret        string   `json:"lmsClientsecret,omitempty"`
	AccessToken   string   `json:"lmsRestApiToken,omitempty"`
	Active        bool     `json:"active"`
}

type Filter struct {
	InstitutionID int64 // 0 = all
	Active        *bool
}

type Store interface {
	Get(ctx context.Context, id int64) (lms.Setup, error)
	List(ctx context.Context, f Filter) ([]lms.Setup, error)
	Create(ctx context.Context, in Input) (lms.Setup, error)
	// Save replaces the configuration and bumps Version.
	Save(ctx context.Context, id int64, in Input) (lms.Setup, error)
	SetActive(ctx context.Context, id int64, active bool) (lms.Setup, error)
	// UpdateAccessToken stores a token negotiated by a template. It does not
	// bump Version, so cached templates stay valid.
	UpdateAccessToken(ctx context.Context, id int64, token []byte) error
}

func notFound(id int64) error {
	return lms.NotFoundError("get lms setup", "", "no LMS setup with id "+strconv.FormatInt(id, 10))
}

func validate(in Input) error {
	if strings.TrimSpace(in.Name) == "" {
		return lms.ConfigError("save lms setup", "missing name")
	}
	t, ok := lms.ParseType(string(in.Type))
	if !ok {
		return lms.ConfigError("save lms setup", "unknown or missing LMS type "+string(in.Type))
	}
	return lms.Setup{Type: t, URL: in.URL}.Validate()
}

// seal encrypts the plaintext credentials of in, keeping prev for fields left empty.
func seal(store *credentials.Store, in Input, prev credentials.Encrypted) (credentials.Encrypted, error) {
	if in.ClientID == "" && in.Secret == "" && in.AccessToken == "" {
		return prev, nil
	}
	if store == nil {
		return credentials.Encrypted{}, lms.CredentialError("save lms setup", credentials.ErrNoSecret)
	}
	plain := credentials.Plain{
		ClientID:    []byte(in.ClientID),
		Secret:      []byte(in.Secret),
		AccessToken: []byte(in.AccessToken),
	}
	defer plain.Wipe()
	enc, err := store.Encrypt(plain)
	if err != nil {
		return credentials.Encrypted{}, lms.CredentialError("save lms setup", err)
	}
	if in.ClientID == "" {
		enc.ClientID = prev.ClientID
	}
	if in.Secret == "" {
		enc.Secret = prev.Secret
	}
	// a token negotiated with the old credentials is dropped
	return enc, nil
}

func sealToken(store *credentials.Store, token []byte) (string, error) {
	if store == nil {
		return "", lms.CredentialError("update access token", credentials.ErrNoSecret)
	}
	v, err := store.EncryptValue(token)
	if err != nil {
		return "", lms.CredentialError("update access token", err)
	}
	return v, nil
}

func normalize(in Input) Input {
	in.Name = strings.TrimSpace(in.Name)
	in.URL = strings.TrimRight(strings.TrimSpace(in.URL), "/")
	t, _ := lms.ParseType(string(in.Type))
	in.Type = t
	return in
}
