package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-superset-kernel/permissions"
	"golang.org/x/oauth2"
)

// Credential is the token triple issued by the platform. AccessToken rotates
// on refresh; RefreshToken only changes on an explicit rotation.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	CSRFToken    string    `json:"csrf_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"` // zero when the access token carries no exp
}

// NewCredential builds a Credential and derives ExpiresAt from the access token.
func NewCredential(access, refresh, csrf string) Credential {
	return Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		CSRFToken:    csrf,
		ExpiresAt:    ExpiryOf(access),
	}
}

// WithAccessToken returns a copy of c holding a refreshed access token.
func (c Credential) WithAccessToken(access string) Credential {
	c.AccessToken = access
	c.ExpiresAt = ExpiryOf(access)
	return c
}

// Valid reports whether c carries an access token.
func (c Credential) Valid() bool {
	return c.AccessToken != ""
}

// ExpiresWithin reports whether the access token expires before now+leeway.
// Opaque tokens never report expiry; the platform's 401 is authoritative.
func (c Credential) ExpiresWithin(now time.Time, leeway time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(c.ExpiresAt)
}

func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.ExpiresAt,
	}
}

// ExpiryOf reads the exp claim without verifying the signature. The kernel is a
// client of the platform and never holds its signing key.
func ExpiryOf(accessToken string) time.Time {
	if accessToken == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Identity is the principal behind a session, fetched once per login.
type Identity struct {
	ID          string                 `json:"id"`
	Username    string                 `json:"username"`
	DisplayName string                 `json:"display_name,omitempty"`
	Email       string                 `json:"email,omitempty"`
	Roles       []permissions.RoleName `json:"roles"`
}

func (i *Identity) Capabilities() permissions.Set {
	if i == nil {
		return permissions.Capabilities()
	}
	return permissions.Capabilities(i.Roles...)
}
