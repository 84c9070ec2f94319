package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/chat"
)

// Claims represents the authorization claims transmitted via a JWT.
// Issuance lives with the platform's auth service; this layer only validates.
type Claims struct {
	jwt.StandardClaims
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	IsStudent bool   `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsTeacher bool   `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin   bool   `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
}

// User maps validated claims to the identity the hub attaches to a connection.
func (c *Claims) User() chat.User {
	return chat.User{
		ID:        c.Subject,
		Username:  c.Username,
		Email:     c.Email,
		IsStudent: c.IsStudent,
		IsTeacher: c.IsTeacher,
		IsAdmin:   c.IsAdmin,
	}
}

// ValidateCredential parses and verifies a credential string presented at
// connect time. The hub must not register a session for an invalid one.
func ValidateCredential(credential string, conf *core.Config) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidCredential
		}
		return conf.SecretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidCredential
	}
	return claims, nil
}

func GetUserClaims(usr chat.User, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  "Academia",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username:  usr.Username,
		Email:     usr.Email,
		IsStudent: usr.IsStudent,
		IsTeacher: usr.IsTeacher,
		IsAdmin:   usr.IsAdmin,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(conf.SecretKey)
}
