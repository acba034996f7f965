// Package auth identifies callers of the HTTP API from bearer JWTs
// issued by the platform's user service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang-jwt/jwt/v5/request"
	"github.com/google/uuid"
	"github.com/programme-lv/proctor/httpjson"
	"github.com/programme-lv/proctor/srvcerror"
)

type Role string

const (
	RoleParticipant Role = "participant"
	RoleProctor     Role = "proctor"
	RoleAdmin       Role = "admin"
)

type JwtClaims struct {
	Username string   `json:"username,omitempty"`
	UUID     string   `json:"uuid,omitempty"`
	Roles    []Role   `json:"roles,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

func (c *JwtClaims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UUID)
}

func (c *JwtClaims) HasRole(r Role) bool {
	return slices.Contains(c.Roles, r) || slices.Contains(c.Roles, RoleAdmin)
}

type ClaimsKeyType string

var CtxJwtClaimsKey ClaimsKeyType = "jwtClaims"

func GenerateJWT(username string, userUUID uuid.UUID, roles []Role, ttl time.Duration, jwtKey []byte) (string, error) {
	claims := &JwtClaims{
		Username:         username,
		UUID:             userUUID.String(),
		Roles:            roles,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl))},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey)
}

func ValidateJWT(tokenStr string, jwtKey []byte) (*JwtClaims, error) {
	claims := &JwtClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return jwtKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, errors.New("invalid token signature")
		}
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// GetJwtAuthMiddleware validates JWT token and adds the claims to the
// request context. Requests without a token pass with nil claims.
func GetJwtAuthMiddleware(jwtKey []byte) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, err := request.BearerExtractor{}.ExtractToken(r)
			if err != nil {
				if errors.Is(err, request.ErrNoTokenInRequest) {
					ctx := context.WithValue(r.Context(), CtxJwtClaimsKey, (*JwtClaims)(nil))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				httpjson.WriteErrorJson(w, err.Error(), http.StatusUnauthorized, ErrCodeUnauthorized)
				return
			}

			claims, err := ValidateJWT(token, jwtKey)
			if err != nil {
				httpjson.WriteErrorJson(w, err.Error(), http.StatusUnauthorized, ErrCodeUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CtxJwtClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(hfn)
	}
}

func ClaimsFromContext(ctx context.Context) *JwtClaims {
	claims, _ := ctx.Value(CtxJwtClaimsKey).(*JwtClaims)
	return claims
}

const ErrCodeUnauthorized = "unauthorized"

func ErrUnauthorized() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeUnauthorized,
		"sign in to continue",
	).SetHttpStatusCode(http.StatusUnauthorized)
}

// Caller returns the authenticated user of the request.
func Caller(r *http.Request) (uuid.UUID, *JwtClaims, error) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return uuid.Nil, nil, ErrUnauthorized()
	}
	id, err := claims.UserUUID()
	if err != nil {
		return uuid.Nil, nil, ErrUnauthorized().SetDebug(err)
	}
	return id, claims, nil
}

// RequireRole rejects requests whose caller lacks the role. Admins pass
// every check.
func RequireRole(role Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, claims, err := Caller(r)
			if err != nil {
				httpjson.WriteErrorJson(w, err.Error(), http.StatusUnauthorized, ErrCodeUnauthorized)
				return
			}
			if !claims.HasRole(role) {
				forbidden := srvcerror.ErrForbidden()
				httpjson.WriteErrorJson(w, forbidden.Error(), forbidden.HttpStatusCode(), forbidden.ErrorCode())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
