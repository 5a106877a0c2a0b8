package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/models"
	"github.com/oklog/ulid/v2"
)

const sessionIssuer = "campaign-portal"

// Internal reasons. Callers outside this package collapse all of them into
// a single unauthorized outcome.
var (
	ErrSessionMalformed = errors.New("session token malformed")
	ErrSessionExpired   = errors.New("session token expired")
	ErrSessionSignature = errors.New("session token signature invalid")
	ErrSessionClaims    = errors.New("session token claims invalid")
)

// AuthUser is derived from a verified session; it is never persisted.
type AuthUser struct {
	Email      string      `json:"email"`
	TenantID   uuid.UUID   `json:"tenant_id"`
	Portal     models.Role `json:"portal_type"`
	CampaignID *uuid.UUID  `json:"campaign_id,omitempty"`
}

type Claims struct {
	Email      string     `json:"email"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	Portal     string     `json:"portal_type"`
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	jwt.RegisteredClaims
}

type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager signs HS256 session tokens. ttl <= 0 falls back to 7 days.
func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *SessionManager) Issue(user AuthUser) (token string, claims *Claims, err error) {
	now := m.now()
	claims = &Claims{
		Email:      user.Email,
		TenantID:   user.TenantID,
		Portal:     string(user.Portal),
		CampaignID: user.CampaignID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   user.Email,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	return token, claims, nil
}

// Verify checks signature, expiry and claim shape. Any failure returns a nil
// user; the wrapped reason is for logging only.
func (m *SessionManager) Verify(tokenStr string) (*AuthUser, *Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, nil, fmt.Errorf("%w: %v", ErrSessionSignature, err)
		default:
			return nil, nil, fmt.Errorf("%w: %v", ErrSessionMalformed, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, nil, ErrSessionMalformed
	}
	portal, err := models.ParsePortalRole(claims.Portal)
	if err != nil || claims.Email == "" || claims.TenantID == uuid.Nil || claims.ID == "" {
		return nil, nil, ErrSessionClaims
	}

	return &AuthUser{
		Email:      claims.Email,
		TenantID:   claims.TenantID,
		Portal:     portal,
		CampaignID: claims.CampaignID,
	}, claims, nil
}
