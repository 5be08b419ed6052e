package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/storefront-checkout/internal/common"
)

// Verifier resolves a bearer token into the caller's identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (common.Identity, error)
}

// HMACVerifier verifies HS256 tokens signed with a shared secret. It backs local
// development and tests where no identity provider is available.
type HMACVerifier struct {
	Secret    []byte
	Validator TokenValidator
	TTL       time.Duration
	Now       func() time.Time
}

// NewHMACVerifier builds a verifier with the standard validator settings.
func NewHMACVerifier(secret, issuer, audience string) (*HMACVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &HMACVerifier{
		Secret: []byte(secret),
		Validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: 30 * time.Second,
			Algorithm: jwa.HS256,
		},
		TTL: time.Hour,
	}, nil
}

func (v *HMACVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify implements Verifier.
func (v *HMACVerifier) Verify(_ context.Context, token string) (common.Identity, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.Identity{}, unauthorized(errNoToken)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return common.Identity{}, unauthorized(err)
	}
	if v.Validator.Algorithm != "" && algorithm != v.Validator.Algorithm {
		return common.Identity{}, unauthorized(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.Secret), jwt.WithValidate(false))
	if err != nil {
		return common.Identity{}, unauthorized(err)
	}
	if err := v.Validator.Validate(parsed, algorithm, v.now()); err != nil {
		return common.Identity{}, unauthorized(err)
	}
	if parsed.Subject() == "" {
		return common.Identity{}, unauthorized(errors.New("auth: token missing subject"))
	}
	id := common.Identity{UserID: parsed.Subject()}
	if email, ok := parsed.PrivateClaims()["email"].(string); ok {
		id.Email = email
	}
	if verified, ok := parsed.PrivateClaims()["email_verified"].(bool); ok {
		id.EmailVerified = verified
	}
	return id, nil
}

// Sign issues a token for the identity. Used by the dev token tool and tests.
func (v *HMACVerifier) Sign(id common.Identity) (string, time.Time, error) {
	now := v.now()
	ttl := v.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	expiresAt := now.Add(ttl)
	builder := jwt.NewBuilder().
		Subject(id.UserID).
		IssuedAt(now).
		NotBefore(now.Add(-v.Validator.ClockSkew)).
		Expiration(expiresAt).
		Claim("email", id.Email).
		Claim("email_verified", id.EmailVerified)
	if v.Validator.Issuer != "" {
		builder = builder.Issuer(v.Validator.Issuer)
	}
	if v.Validator.Audience != "" {
		builder = builder.Audience([]string{v.Validator.Audience})
	}
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, v.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
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
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", fmt.Errorf("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func unauthorized(err error) error {
	return common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, err)
}
