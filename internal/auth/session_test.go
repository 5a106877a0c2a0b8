package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jobboard/campaign-portal/internal/models"
)

func testUser() AuthUser {
	campaignID := uuid.New()
	return AuthUser{
		Email:      "customer@example.com",
		TenantID:   uuid.New(),
		Portal:     models.RoleCustomer,
		CampaignID: &campaignID,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	m := NewSessionManager("test-secret", time.Hour)
	user := testUser()

	token, claims, err := m.Issue(user)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}

	got, gotClaims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if got.Email != user.Email || got.TenantID != user.TenantID || got.Portal != user.Portal {
		t.Errorf("Verify() user = %+v, want %+v", got, user)
	}
	if got.CampaignID == nil || *got.CampaignID != *user.CampaignID {
		t.Errorf("campaign scope lost: %v", got.CampaignID)
	}
	if gotClaims.ID != claims.ID {
		t.Errorf("jti = %q, want %q", gotClaims.ID, claims.ID)
	}
}

func TestSessionExpired(t *testing.T) {
	m := NewSessionManager("test-secret", time.Hour)
	issuedAt := time.Now().Add(-2 * time.Hour)
	m.now = func() time.Time { return issuedAt }
	token, _, err := m.Issue(testUser())
	if err != nil {
		t.Fatal(err)
	}

	m.now = time.Now
	user, _, err := m.Verify(token)
	if user != nil {
		t.Fatal("expired token must not yield a user")
	}
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSessionForgedSignature(t *testing.T) {
	token, _, err := NewSessionManager("other-secret", time.Hour).Issue(testUser())
	if err != nil {
		t.Fatal(err)
	}

	user, _, err := NewSessionManager("test-secret", time.Hour).Verify(token)
	if user != nil {
		t.Fatal("forged token must not yield a user")
	}
	if !errors.Is(err, ErrSessionSignature) {
		t.Errorf("expected ErrSessionSignature, got %v", err)
	}
}

func TestSessionMalformed(t *testing.T) {
	m := NewSessionManager("test-secret", time.Hour)
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		user, _, err := m.Verify(raw)
		if user != nil || err == nil {
			t.Errorf("Verify(%q) = %v, %v; want nil user and error", raw, user, err)
		}
	}
}

func TestSessionRejectsUnknownPortal(t *testing.T) {
	claims := Claims{
		Email:    "x@example.com",
		TenantID: uuid.New(),
		Portal:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "01HZZZ",
			Issuer:    sessionIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = NewSessionManager("test-secret", time.Hour).Verify(token)
	if !errors.Is(err, ErrSessionClaims) {
		t.Errorf("expected ErrSessionClaims, got %v", err)
	}
}

func TestSessionRejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		Email:    "x@example.com",
		TenantID: uuid.New(),
		Portal:   "cs",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "01HZZZ",
			Issuer:    sessionIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	user, _, err := NewSessionManager("test-secret", time.Hour).Verify(token)
	if user != nil || err == nil {
		t.Fatal("alg=none token must be rejected")
	}
}

func TestNewMagicToken(t *testing.T) {
	plain, hash, err := NewMagicToken()
	if err != nil {
		t.Fatal(err)
	}
	if len(plain) < 40 {
		t.Errorf("token too short: %d chars", len(plain))
	}
	if strings.ContainsAny(plain, "+/=") {
		t.Errorf("token is not URL-safe: %q", plain)
	}
	if hash != HashToken(plain) {
		t.Error("hash does not match HashToken(plain)")
	}
	if hash == plain {
		t.Error("hash must differ from plaintext")
	}

	plain2, _, _ := NewMagicToken()
	if plain2 == plain {
		t.Error("two tokens collided")
	}
}
