// Package auth verifies the teacher-role csrf token presented at
// join_room time. The cookie/CSRF auth subsystem itself is an external
// collaborator per spec.md §1 (Non-goal: authentication cryptography); this
// package only implements the verification call site the Room Actor needs,
// grounded on the teacher repo's pkg/auth JWTManager.
package auth

import (
	"errors"
	"fmt"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCSRF is returned for any csrf token the verifier rejects.
var ErrInvalidCSRF = errors.New("csrf token is invalid")

// Claims is the minimal claim set carried by a teacher's session csrf
// token: which teacher, for which room.
type Claims struct {
	TeacherID int64  `json:"teacherId"`
	RoomCode  string `json:"roomCode"`
	jwt.RegisteredClaims
}

// CSRFVerifier validates the csrf token a teacher presents on join_room.
type CSRFVerifier interface {
	Verify(token, roomCode string) (teacherID int64, err error)
}

type jwtVerifier struct {
	cfg config.TeacherAuthConfig
}

// NewJWTVerifier builds a CSRFVerifier backed by HMAC-signed JWTs, the
// teacher repo's signing scheme.
func NewJWTVerifier(cfg config.TeacherAuthConfig) CSRFVerifier {
	return &jwtVerifier{cfg: cfg}
}

func (v *jwtVerifier) Verify(token, roomCode string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.cfg.Secret), nil
	})
	if err != nil {
		return 0, ErrInvalidCSRF
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return 0, ErrInvalidCSRF
	}
	if claims.RoomCode != roomCode {
		return 0, ErrInvalidCSRF
	}
	return claims.TeacherID, nil
}
