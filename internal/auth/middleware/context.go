package auth

import "context"

type ctxKey string

const (
	ctxKeySub         ctxKey = "sub"
	ctxKeyInstitution ctxKey = "institution"
)

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxKeySub); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithInstitution scopes the request to one institution. 0 means all.
func WithInstitution(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxKeyInstitution, id)
}

func InstitutionFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(ctxKeyInstitution).(int64); ok {
		return v
	}
	return 0
}
