// Package registry builds and caches one Template per LMS setup. A cached
// Template is reused until the setup's configuration changes.
package registry

import (
	"context"
	"encoding/hex"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/mind-engage/mindengage-seb/internal/credentials"
	"github.com/mind-engage/mindengage-seb/internal/lms"
	"github.com/mind-engage/mindengage-seb/internal/lms/mock"
	"github.com/mind-engage/mindengage-seb/internal/lms/moodle"
	"github.com/mind-engage/mindengage-seb/internal/lms/openedx"
	"github.com/mind-engage/mindengage-seb/internal/logging"
)

// SetupSource resolves LMS setups by id.
type SetupSource interface {
	Get(ctx context.Context, id int64) (lms.Setup, error)
}

// Factory builds the Template variant for one LMS type.
type Factory func(setup lms.Setup) (lms.Template, error)

type entry struct {
	fingerprint string
	tpl         lms.Template
}

type Registry struct {
	src       SetupSource
	factories map[lms.Type]Factory

	mu    sync.RWMutex
	cache map[int64]entry

	group  singleflight.Group
	builds atomic.Int64
}

func New(src SetupSource, factories map[lms.Type]Factory) *Registry {
	return &Registry{src: src, factories: factories, cache: map[int64]entry{}}
}

type Options struct {
	OpenEdx openedx.Config
	Moodle  moodle.Config
}

// NewDefault registers the Mock, Open edX and Moodle variants.
func NewDefault(src SetupSource, creds *credentials.Store, opts Options) *Registry {
	return New(src, map[lms.Type]Factory{
		lms.TypeMock: func(s lms.Setup) (lms.Template, error) {
			return mock.New(s), nil
		},
		lms.TypeOpenEdx: func(s lms.Setup) (lms.Template, error) {
			if creds == nil {
				return nil, lms.CredentialError("create template", credentials.ErrNoSecret)
			}
			return openedx.New(s, creds, opts.OpenEdx), nil
		},
		lms.TypeMoodle: func(s lms.Setup) (lms.Template, error) {
			if creds == nil {
				return nil, lms.CredentialError("create template", credentials.ErrNoSecret)
			}
			return moodle.New(s, creds, opts.Moodle), nil
		},
	})
}

// CreateTemplate returns the Template bound to the current configuration of
// setup id. Concurrent first calls for the same configuration share one build.
func (r *Registry) CreateTemplate(ctx context.Context, id int64) (lms.Template, error) {
	const op = "create template"
	setup, err := r.src.Get(ctx, id)
	if err != nil {
		return nil, lms.UpstreamError(op, err)
	}
	if !setup.Active {
		return nil, lms.ConfigError(op, "LMS setup "+strconv.FormatInt(id, 10)+" is not active")
	}
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	fp := Fingerprint(setup)

	if tpl, ok := r.cached(id, fp); ok {
		return tpl, nil
	}

	v, err, _ := r.group.Do(strconv.FormatInt(id, 10)+"/"+fp, func() (any, error) {
		if tpl, ok := r.cached(id, fp); ok {
			return tpl, nil
		}
		factory, ok := r.factories[setup.Type]
		if !ok {
			return nil, lms.ConfigError(op, "no template for LMS type "+string(setup.Type))
		}
		var inner lms.Template
		err := lms.Guard(op, func() error {
			var ferr error
			inner, ferr = factory(setup)
			return ferr
		})
		if err != nil {
			return nil, err
		}
		r.builds.Add(1)
		tpl := Guarded(inner)

		r.mu.Lock()
		r.cache[id] = entry{fingerprint: fp, tpl: tpl}
		r.mu.Unlock()
		logging.Log().Debugf("registry: built %s template for setup %d", setup.Type, id)
		return tpl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(lms.Template), nil
}

func (r *Registry) cached(id int64, fp string) (lms.Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[id]
	if !ok || e.fingerprint != fp {
		return nil, false
	}
	return e.tpl, true
}

// Invalidate drops the cached Template of setup id.
func (r *Registry) Invalidate(id int64) {
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()
}

// Builds reports how many Templates were constructed.
func (r *Registry) Builds() int64 { return r.builds.Load() }

// Fingerprint identifies the configuration a Template is bound to. The access
// token is left out, it changes whenever a template refreshes it.
func Fingerprint(s lms.Setup) string {
	h := blake3.New()
	for _, part := range []string{
		strconv.FormatInt(s.ID, 10),
		strconv.FormatInt(s.InstitutionID, 10),
		string(s.Type),
		s.BaseURL(),
		s.Credentials.ClientID,
		s.Credentials.Secret,
		strconv.FormatInt(s.Version, 10),
		strconv.FormatBool(s.Active),
	} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
