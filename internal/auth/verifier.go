package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/dropskey/backend-dropskey/internal/common"
)

// Claims are the identity facts this service reads from an access token.
// Tokens are minted by the upstream identity provider; this service only
// verifies them.
type Claims struct {
	Subject string
	Roles   []string
}

// Verifier checks access token signatures and registered claims.
type Verifier struct {
	Secret    []byte
	Validator TokenValidator
	Now       func() time.Time
}

func (v *Verifier) now() time.Time {
	if v != nil && v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Parse verifies the token signature and claims and extracts the identity.
func (v *Verifier) Parse(token string) (Claims, error) {
	if v == nil || len(v.Secret) == 0 {
		return Claims{}, errors.New("auth: verifier not configured")
	}
	algorithm, err := extractTokenAlgorithm(token)
	if err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	parsed, err := jwt.ParseString(token, jwt.WithKey(algorithm, v.Secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := v.Validator.Validate(parsed, algorithm, v.now()); err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	subject := parsed.Subject()
	if subject == "" {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "token missing subject", http.StatusUnauthorized, nil)
	}
	return Claims{Subject: subject, Roles: extractRoles(parsed)}, nil
}

func extractRoles(tok jwt.Token) []string {
	raw, ok := tok.Get("roles")
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	default:
		return nil
	}
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	if header := signatures[0].ProtectedHeaders(); header != nil {
		if alg := header.Algorithm(); alg != "" {
			algorithm = alg
		}
	}
	if algorithm == "" {
		return "", errors.New("auth: token missing algorithm header")
	}
	return algorithm, nil
}
