package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/byteflow-dev/byteflow/pkg/protoconn"
)

// Identity is the authenticated peer behind a connection.
type Identity struct {
	UserID   string
	Username string
}

// authenticator verifies HMAC-signed bearer tokens.
type authenticator struct {
	secret []byte
}

func newAuthenticator(secret []byte) *authenticator {
	if len(secret) == 0 {
		return nil
	}
	return &authenticator{secret: secret}
}

// Verify parses tokenString and returns the identity in its claims.
func (a *authenticator) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}
	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: user_id claim is not a string", ErrUnauthorized)
	}
	username, _ := claims["username"].(string)
	return &Identity{UserID: userID, Username: username}, nil
}

// IssueToken signs an access token for the given user. Clients present it
// as "Authorization: Bearer <token>" when upgrading.
func IssueToken(secret []byte, userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter for clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// IdentityOf returns the identity a connection authenticated with.
func IdentityOf(c *protoconn.Conn) (*Identity, bool) {
	id, ok := c.Connection().UserData().(*Identity)
	return id, ok && id != nil
}
