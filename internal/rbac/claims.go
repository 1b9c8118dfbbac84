package rbac

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the verified, strictly typed view of an identity's access claims.
// Nil slices and maps mean the claim was absent.
type Claims struct {
	Subject     string         `json:"subject"`
	Roles       []RoleID       `json:"roles,omitempty"`
	Departments []DepartmentID `json:"departments,omitempty"`
	Modules     Overrides      `json:"modules,omitempty"`
}

// HasRole reports whether the claims carry role.
func (c *Claims) HasRole(role RoleID) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Assignments expands role claims into assignments spanning every claimed
// department.
func (c *Claims) Assignments() []Assignment {
	if c == nil || len(c.Roles) == 0 {
		return nil
	}
	out := make([]Assignment, 0, len(c.Roles))
	for _, r := range c.Roles {
		out = append(out, Assignment{Role: r, Departments: c.Departments})
	}
	return out
}

// Raw converts the claims back to their wire shape.
func (c *Claims) Raw() RawClaims {
	if c == nil {
		return RawClaims{}
	}
	var raw RawClaims
	if c.Roles != nil {
		raw.Roles = make([]string, len(c.Roles))
		for i, r := range c.Roles {
			raw.Roles[i] = string(r)
		}
	}
	if c.Departments != nil {
		raw.Departments = make([]string, len(c.Departments))
		for i, d := range c.Departments {
			raw.Departments[i] = string(d)
		}
	}
	if c.Modules != nil {
		raw.Modules = make(map[string][]string, len(c.Modules))
		for m, set := range c.Modules {
			raw.Modules[string(m)] = set.Strings()
		}
	}
	return raw
}

// RawClaims is the wire shape of the private claims carried in a token.
type RawClaims struct {
	Roles       []string            `json:"roles,omitempty"`
	Departments []string            `json:"departments,omitempty"`
	Modules     map[string][]string `json:"modules,omitempty"`
}

// DecodeClaims validates raw claims against the engine's catalogs.
// Identifiers must match catalog entries exactly; any unknown role,
// department, module or action rejects the whole claim set.
func DecodeClaims(subject string, raw RawClaims, engine *Engine) (*Claims, error) {
	if subject == "" || strings.TrimSpace(subject) != subject {
		return nil, fmt.Errorf("%w: subject %q", ErrInvalidClaims, subject)
	}
	claims := &Claims{Subject: subject}
	if raw.Roles != nil {
		claims.Roles = make([]RoleID, 0, len(raw.Roles))
		for _, r := range raw.Roles {
			if _, ok := engine.Roles().Lookup(RoleID(r)); !ok {
				return nil, fmt.Errorf("%w: role %q", ErrInvalidClaims, r)
			}
			claims.Roles = append(claims.Roles, RoleID(r))
		}
	}
	if raw.Departments != nil {
		claims.Departments = make([]DepartmentID, 0, len(raw.Departments))
		for _, d := range raw.Departments {
			if _, ok := engine.Departments().Lookup(DepartmentID(d)); !ok {
				return nil, fmt.Errorf("%w: department %q", ErrInvalidClaims, d)
			}
			claims.Departments = append(claims.Departments, DepartmentID(d))
		}
	}
	if raw.Modules != nil {
		overrides, err := ParseOverrides(raw.Modules)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
		}
		claims.Modules = overrides
	}
	return claims, nil
}

type tokenClaims struct {
	RawClaims
	jwt.RegisteredClaims
}

// TokenParser verifies HS256 bearer tokens and decodes their claims.
type TokenParser struct {
	secret []byte
	engine *Engine
	issuer string
}

// NewTokenParser builds a parser. issuer is enforced when non-empty.
func NewTokenParser(secret []byte, issuer string, engine *Engine) *TokenParser {
	return &TokenParser{secret: secret, engine: engine, issuer: issuer}
}

// Parse verifies the token signature and expiry, then strictly decodes the
// access claims. Undecodable, unsigned or expired tokens return
// ErrInvalidToken; verified tokens naming unknown catalog entries return
// ErrInvalidClaims.
func (p *TokenParser) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return DecodeClaims(tc.Subject, tc.RawClaims, p.engine)
}

// Issue signs claims into a token valid for ttl. Used by tooling and tests;
// production tokens come from the external identity provider.
func (p *TokenParser) Issue(subject string, raw RawClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	tc := tokenClaims{
		RawClaims: raw,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(p.secret)
}
