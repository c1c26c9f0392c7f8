package services

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/shared"
)

func newTestAccessControl() *AccessControlService {
	return &AccessControlService{rules: compileRules(defaultAccessRules())}
}

func claimsWith(subject string, scopes ...string) *dto.AuthClaims {
	return &dto.AuthClaims{
		Subject:   subject,
		Scopes:    scopes,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestDecideUnclassifiedEndpointAllows(t *testing.T) {
	svc := newTestAccessControl()

	decision := svc.Decide("/ping", http.MethodGet, nil)
	assert.True(t, decision.Allowed)
	assert.False(t, decision.Classified)
}

func TestDecideNoIdentityDenied(t *testing.T) {
	svc := newTestAccessControl()

	decision := svc.Decide("/api/v1/users/abc", http.MethodGet, nil)
	assert.False(t, decision.Allowed)
	assert.True(t, decision.Classified)
	assert.Equal(t, "authentication required", decision.Reason)
	assert.Equal(t, http.StatusUnauthorized, decision.StatusCode)
}

func TestDecideEmptySubjectDenied(t *testing.T) {
	svc := newTestAccessControl()

	decision := svc.Decide("/api/v1/users/abc", http.MethodGet, claimsWith(""))
	assert.False(t, decision.Allowed)
	assert.Equal(t, http.StatusUnauthorized, decision.StatusCode)
}

func TestDecideOwnerWithoutScopeAllowed(t *testing.T) {
	svc := newTestAccessControl()

	decision := svc.Decide("/api/v1/users/user-1", http.MethodGet, claimsWith("user-1"))
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Classified)
}

func TestDecideScopeWithoutOwnershipAllowed(t *testing.T) {
	svc := newTestAccessControl()

	decision := svc.Decide("/api/v1/users/user-2", http.MethodGet, claimsWith("user-1", shared.ScopeUsersRead))
	assert.True(t, decision.Allowed)
}

func TestDecideNeitherScopeNorOwnershipDenied(t *testing.T) {
	svc := newTestAccessControl()

	decision := svc.Decide("/api/v1/users/user-2", http.MethodGet, claimsWith("user-1"))
	assert.False(t, decision.Allowed)
	assert.Equal(t, "insufficient permissions", decision.Reason)
	assert.Equal(t, http.StatusForbidden, decision.StatusCode)
}

func TestDecideWriteScopeDoesNotGrantDelete(t *testing.T) {
	svc := newTestAccessControl()

	decision := svc.Decide("/api/v1/users/user-2", http.MethodDelete, claimsWith("user-1", shared.ScopeUsersWrite))
	assert.False(t, decision.Allowed)
}

func TestDecideAdminEndpointRequiresAdminScope(t *testing.T) {
	svc := newTestAccessControl()

	decision := svc.Decide("/api/v1/admin/users", http.MethodGet, claimsWith("user-1", shared.ScopeUsersRead))
	assert.False(t, decision.Allowed)
	assert.Equal(t, "admin privileges required", decision.Reason)
	assert.Equal(t, http.StatusForbidden, decision.StatusCode)

	decision = svc.Decide("/api/v1/admin/users", http.MethodGet, claimsWith("admin-1", shared.ScopeAdmin))
	assert.True(t, decision.Allowed)
}

func TestDecideAdminBypassesOwnership(t *testing.T) {
	svc := newTestAccessControl()

	decision := svc.Decide("/api/v1/users/user-2", http.MethodPut, claimsWith("admin-1", shared.ScopeAdmin))
	assert.True(t, decision.Allowed)
}

func TestDecideSelfServiceEndpoint(t *testing.T) {
	svc := newTestAccessControl()

	decision := svc.Decide("/api/v1/me", http.MethodGet, claimsWith("user-1"))
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Classified)

	decision = svc.Decide("/api/v1/me", http.MethodGet, nil)
	assert.False(t, decision.Allowed)
}

func TestDecideCarriesClassification(t *testing.T) {
	svc := newTestAccessControl()

	decision := svc.Decide("/api/v1/users/user-1", http.MethodGet, claimsWith("user-1"))
	assert.Equal(t, "personal_info", decision.DataCategory)
	assert.Contains(t, decision.Fields, "email")
}

func TestDecideMethodsAreIndependent(t *testing.T) {
	svc := newTestAccessControl()

	// GET on the incidents collection matches a rule, PATCH does not.
	decision := svc.Decide("/api/v1/admin/incidents", "PATCH", claimsWith("user-1"))
	assert.False(t, decision.Classified)
}

func TestResourceOwner(t *testing.T) {
	svc := newTestAccessControl()

	assert.Equal(t, "user-9", svc.ResourceOwner("/api/v1/users/user-9", http.MethodGet))
	assert.Equal(t, "", svc.ResourceOwner("/api/v1/me", http.MethodGet))
	assert.Equal(t, "", svc.ResourceOwner("/ping", http.MethodGet))
}

func TestMatchSegments(t *testing.T) {
	assert.True(t, matchSegments([]string{"api", ""}, []string{"api", "anything"}))
	assert.False(t, matchSegments([]string{"api", ""}, []string{"api"}))
	assert.False(t, matchSegments([]string{"api", "x"}, []string{"api", "y"}))
}

func TestDecideAuditTrailScopeOrOwnership(t *testing.T) {
	svc := newTestAccessControl()

	// A compliance reviewer holds audit:read without full admin.
	decision := svc.Decide("/api/v1/admin/audit-logs/abc", http.MethodGet, claimsWith("reviewer", shared.ScopeAuditRead))
	assert.True(t, decision.Allowed)

	// A user can pull their own trail through ownership alone.
	decision = svc.Decide("/api/v1/admin/audit-logs/abc", http.MethodGet, claimsWith("abc"))
	assert.True(t, decision.Allowed)

	// Someone else's trail needs the scope.
	decision = svc.Decide("/api/v1/admin/audit-logs/abc", http.MethodGet, claimsWith("def"))
	assert.False(t, decision.Allowed)
	assert.Equal(t, "insufficient permissions", decision.Reason)

	decision = svc.Decide("/api/v1/admin/audit-summary", http.MethodGet, claimsWith("reviewer", shared.ScopeAuditRead))
	assert.True(t, decision.Allowed)

	decision = svc.Decide("/api/v1/admin/audit-summary", http.MethodGet, claimsWith("admin-1", shared.ScopeAdmin))
	assert.True(t, decision.Allowed)
}
