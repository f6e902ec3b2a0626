package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/types"
)

// ErrInvalidToken is returned for any token that cannot be trusted.
var ErrInvalidToken = errors.New("invalid token")

var errMissingSecret = errors.New("token secret is required")

// sessionClaims is the JWT payload: {"username", "id", "iat"[, "exp"]}.
type sessionClaims struct {
	Username string `json:"username"`
	ID       string `json:"id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies session tokens with a single HMAC secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenIssuer constructs a TokenIssuer. A zero ttl issues tokens without
// an expiry.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errMissingSecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	t := &TokenIssuer{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
	}
	// Signing and expiry checks share one clock.
	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	return t, nil
}

// Issue signs claims into a compact token. IssuedAt defaults to now.
func (t *TokenIssuer) Issue(claims types.Claims) (string, error) {
	issuedAt := t.now()
	if claims.IssuedAt != 0 {
		issuedAt = time.Unix(claims.IssuedAt, 0)
	}

	payload := sessionClaims{
		Username: claims.Username,
		ID:       claims.UserID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
	if t.ttl > 0 {
		payload.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(t.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	return token.SignedString(t.secret)
}

// Verify checks the signature and structure of tokenString. Every failure
// is reported as ErrInvalidToken with zero-valued claims.
func (t *TokenIssuer) Verify(tokenString string) (types.Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return types.Claims{}, ErrInvalidToken
	}

	var payload sessionClaims
	token, err := t.parser.ParseWithClaims(tokenString, &payload, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return types.Claims{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(payload.ID)
	if err != nil || userID == uuid.Nil {
		return types.Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(payload.Username) == "" {
		return types.Claims{}, ErrInvalidToken
	}

	claims := types.Claims{
		Username: payload.Username,
		UserID:   userID,
	}
	if payload.IssuedAt != nil {
		claims.IssuedAt = payload.IssuedAt.Unix()
	}
	return claims, nil
}
