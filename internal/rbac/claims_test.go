package rbac

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-core/internal/shared"
)

func TestDecodeClaimsValidates(t *testing.T) {
	claims, err := DecodeClaims("u-1", RawClaims{
		Roles:       []string{"planner"},
		Departments: []string{"production"},
		Modules:     map[string][]string{"orders": {"view"}},
	}, DefaultEngine())
	require.NoError(t, err)
	assert.Equal(t, []RoleID{RolePlanner}, claims.Roles)
	assert.Equal(t, []DepartmentID{DeptProduction}, claims.Departments)
	assert.Equal(t, Of(ActionView), claims.Modules[ModuleOrders])
}

func TestDecodeClaimsRequiresExactIdentifiers(t *testing.T) {
	engine := DefaultEngine()
	cases := map[string]RawClaims{
		"padded role":      {Roles: []string{"  admin "}},
		"upper role":       {Roles: []string{"ADMIN"}},
		"title department": {Departments: []string{"Production"}},
		"upper module":     {Modules: map[string][]string{"Orders": {"view"}}},
		"upper action":     {Modules: map[string][]string{"orders": {"VIEW"}}},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeClaims("u-1", raw, engine)
			require.ErrorIs(t, err, ErrInvalidClaims)
		})
	}

	_, err := DecodeClaims(" u-1", RawClaims{}, engine)
	require.ErrorIs(t, err, ErrInvalidClaims)
}

func TestDecodeClaimsFailsClosed(t *testing.T) {
	engine := DefaultEngine()
	cases := map[string]RawClaims{
		"unknown role":       {Roles: []string{"wizard"}},
		"unknown department": {Departments: []string{"moon"}},
		"unknown module":     {Modules: map[string][]string{"payroll": {"view"}}},
		"unknown action":     {Modules: map[string][]string{"orders": {"teleport"}}},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeClaims("u-1", raw, engine)
			require.ErrorIs(t, err, ErrInvalidClaims)
			require.ErrorIs(t, err, shared.ErrPermissionDenied)
		})
	}

	_, err := DecodeClaims("  ", RawClaims{}, engine)
	require.ErrorIs(t, err, ErrInvalidClaims)
}

func TestDecodeClaimsAbsentFieldsStayNil(t *testing.T) {
	claims, err := DecodeClaims("u-1", RawClaims{}, DefaultEngine())
	require.NoError(t, err)
	assert.Nil(t, claims.Roles)
	assert.Nil(t, claims.Modules)
	assert.Nil(t, claims.Assignments())
}

func TestTokenParserRoundTrip(t *testing.T) {
	parser := NewTokenParser([]byte("secret"), "odyssey", DefaultEngine())
	token, err := parser.Issue("u-7", RawClaims{Roles: []string{"manager"}, Departments: []string{"sales"}}, time.Minute)
	require.NoError(t, err)

	claims, err := parser.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u-7", claims.Subject)
	assert.True(t, claims.HasRole(RoleManager))
	assert.Equal(t, []Assignment{{Role: RoleManager, Departments: []DepartmentID{DeptSales}}}, claims.Assignments())
}

func TestTokenParserRejectsBadTokens(t *testing.T) {
	parser := NewTokenParser([]byte("secret"), "odyssey", DefaultEngine())

	other := NewTokenParser([]byte("other"), "odyssey", DefaultEngine())
	forged, err := other.Issue("u-7", RawClaims{Roles: []string{"admin"}}, time.Minute)
	require.NoError(t, err)
	_, err = parser.Parse(forged)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	expired, err := parser.Issue("u-7", RawClaims{}, -time.Minute)
	require.NoError(t, err)
	_, err = parser.Parse(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = parser.Parse("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u-7", "roles": []string{"admin"}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = parser.Parse(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenParserRejectsUnknownRoleInSignedToken(t *testing.T) {
	parser := NewTokenParser([]byte("secret"), "", DefaultEngine())
	token, err := parser.Issue("u-7", RawClaims{Roles: []string{"superuser"}}, time.Minute)
	require.NoError(t, err)

	_, err = parser.Parse(token)
	require.ErrorIs(t, err, ErrInvalidClaims)
}

func TestClaimsRawRoundTrip(t *testing.T) {
	engine := DefaultEngine()
	claims, err := DecodeClaims("u-1", RawClaims{
		Roles:       []string{"manager"},
		Departments: []string{"sales"},
		Modules:     map[string][]string{"orders": {"view", "create"}},
	}, engine)
	require.NoError(t, err)

	again, err := DecodeClaims("u-1", claims.Raw(), engine)
	require.NoError(t, err)
	assert.Equal(t, claims, again)

	var nilClaims *Claims
	assert.Equal(t, RawClaims{}, nilClaims.Raw())
}
