// Package pagination implements keyset cursors for ticket listings.
//
// A cursor records the (created_at, id) position of the last row a page
// returned, plus the order the page was read in. Cursors are signed with
// HS256 so a client can hand one back but cannot mint one. They carry no
// authorization: callers re-apply tenant and filter scoping on every page.
package pagination

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrInvalidCursor is returned for any token this codec did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a position in the (created_at, id) ordering.
type Cursor struct {
	CreatedAt time.Time
	ID        string
	Order     domain.SortOrder
}

// Equal compares cursors at the microsecond precision they are encoded with.
func (c Cursor) Equal(other Cursor) bool {
	return c.CreatedAt.UnixMicro() == other.CreatedAt.UnixMicro() && c.ID == other.ID && c.Order == other.Order
}

type cursorClaims struct {
	CreatedAt int64  `json:"c"`
	ID        string `json:"i"`
	Order     string `json:"o"`
	jwt.RegisteredClaims
}

// Codec signs and verifies cursors.
type Codec struct {
	secret []byte
}

// NewCodec builds a codec keyed by secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Encode returns the opaque token for c.
func (c *Codec) Encode(cur Cursor) (string, error) {
	if cur.ID == "" || !cur.Order.Valid() {
		return "", fmt.Errorf("encode cursor: %w", ErrInvalidCursor)
	}
	claims := cursorClaims{
		CreatedAt: cur.CreatedAt.UnixMicro(),
		ID:        cur.ID,
		Order:     string(cur.Order),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode verifies token and returns the position it encodes.
func (c *Codec) Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, ErrInvalidCursor
	}
	parsed, err := jwt.ParseWithClaims(token, &cursorClaims{}, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	claims, ok := parsed.Claims.(*cursorClaims)
	if !ok || !parsed.Valid {
		return Cursor{}, ErrInvalidCursor
	}
	order := domain.SortOrder(claims.Order)
	if claims.ID == "" || !order.Valid() {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{
		CreatedAt: time.UnixMicro(claims.CreatedAt).UTC(),
		ID:        claims.ID,
		Order:     order,
	}, nil
}
