package membership

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LinkCodec builds and parses the accept link embedded in invite emails. The
// token identifies the team and invite; implementations may additionally bind
// the invitee email into the token.
type LinkCodec interface {
	AcceptURL(teamID, inviteID, email string) (string, error)
	Parse(token string) (teamID, inviteID, email string, err error)
}

// OpaqueLinkCodec encodes the token as "<teamID>.<inviteID>". The invite id is
// an unguessable uuid, so possession of the link is the credential. It carries
// no email claim; Parse returns an empty email.
type OpaqueLinkCodec struct {
	BaseURL string
}

// AcceptURL builds the accept link for the invite
func (c *OpaqueLinkCodec) AcceptURL(teamID, inviteID, email string) (string, error) {
	if teamID == "" || inviteID == "" {
		return "", fmt.Errorf("%w: missing team or invite id", ErrInvalid)
	}
	return fmt.Sprintf("%s/invites/accept?token=%s.%s", strings.TrimRight(c.BaseURL, "/"), teamID, inviteID), nil
}

// Parse splits the opaque token back into team and invite ids
func (c *OpaqueLinkCodec) Parse(token string) (string, string, string, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("%w: malformed invite token", ErrInvalid)
	}
	return parts[0], parts[1], "", nil
}

type inviteClaims struct {
	TeamID   string `json:"teamId"`
	InviteID string `json:"inviteId"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// EmailBoundLinkCodec signs the token with HMAC and binds the invitee email
// into it, so a forwarded link cannot be accepted by a different account.
// Token expiry matches the invite expiry window.
type EmailBoundLinkCodec struct {
	BaseURL string
	Secret  []byte
	TTL     time.Duration
}

// AcceptURL signs a token carrying team, invite and invitee email
func (c *EmailBoundLinkCodec) AcceptURL(teamID, inviteID, email string) (string, error) {
	if teamID == "" || inviteID == "" {
		return "", fmt.Errorf("%w: missing team or invite id", ErrInvalid)
	}
	ttl := c.TTL
	if ttl == 0 {
		ttl = InviteTTL
	}
	claims := inviteClaims{
		TeamID:   teamID,
		InviteID: inviteID,
		Email:    NormalizeEmail(email),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.Secret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/invites/accept?token=%s", strings.TrimRight(c.BaseURL, "/"), signed), nil
}

// Parse verifies the signature and expiry and returns the bound identifiers
func (c *EmailBoundLinkCodec) Parse(token string) (string, string, string, error) {
	claims := &inviteClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", "", fmt.Errorf("%w: invite link expired", ErrExpired)
		}
		return "", "", "", fmt.Errorf("%w: invalid invite token", ErrInvalid)
	}
	if !parsed.Valid || claims.TeamID == "" || claims.InviteID == "" {
		return "", "", "", fmt.Errorf("%w: invalid invite token", ErrInvalid)
	}
	return claims.TeamID, claims.InviteID, claims.Email, nil
}
