package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"evbooking/backend/services/booking-gateway/internal/auth"
)

// OptionalAuth validates a bearer token when one is sent and attaches the caller's credentials
// to the request context. Anonymous requests pass through untouched. Expired tokens are
// attached flagged as expired so the booking flow can ask the user to log in again; any other
// invalid token is rejected with 401.
func OptionalAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeUnauthorized(w, "invalid authorization header")
				return
			}
			tokenStr := strings.TrimSpace(parts[1])

			creds, err := parseCredentials(tokenStr, secret)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithCredentials(r.Context(), creds)))
		})
	}
}

func parseCredentials(tokenStr, secret string) (auth.Credentials, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenInvalidClaims
		}
		return []byte(secret), nil
	})
	expired := errors.Is(err, jwt.ErrTokenExpired)
	if err != nil && !expired {
		return auth.Credentials{}, err
	}
	if !expired && !token.Valid {
		return auth.Credentials{}, jwt.ErrTokenUnverifiable
	}

	userID, err := extractUserID(claims)
	if err != nil {
		return auth.Credentials{}, err
	}
	creds := auth.Credentials{Token: tokenStr, UserID: userID, Expired: expired}
	if role, ok := claims["role"].(string); ok {
		creds.Role = role
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		creds.ExpiresAt = exp.Time
	}
	return creds, nil
}

// extractUserID reads user_id, falling back to the standard subject claim.
func extractUserID(claims jwt.MapClaims) (int64, error) {
	raw, ok := claims["user_id"]
	if !ok {
		raw = claims["sub"]
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return id, nil
	default:
		return 0, fmt.Errorf("user_id not present")
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "kind": "unauthenticated"})
}
