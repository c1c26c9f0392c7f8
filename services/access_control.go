package services

import (
	"net/http"
	"strings"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/model"
	"github.com/datashield-labs/warden_api/shared"
)

// AccessRule classifies one (endpoint pattern, method) pair. Patterns may
// contain {param} placeholders; a {user_id} placeholder marks the segment
// that names the addressed resource owner.
type AccessRule struct {
	Pattern       string
	Method        string
	DataCategory  model.DataCategory
	Fields        []string
	Scope         string
	RequiresAdmin bool
	// SelfService marks endpoints with no {user_id} segment that always
	// operate on the caller's own data; any authenticated caller passes.
	SelfService bool
}

// compiledRule is the load-time form: segment count plus a literal or
// placeholder per segment, so no pattern is re-parsed per request.
type compiledRule struct {
	rule      AccessRule
	segments  []string // "" for a placeholder segment
	ownerIdx  int      // index of the {user_id} segment, -1 when absent
	hasParams bool
}

// AccessControlService is the authoritative allow/deny gate for
// classified endpoints. Decide is a pure function of (rule, claims,
// path); unlike the limiter and the detector it fails closed.
type AccessControlService struct {
	appContext.DefaultService

	rules []compiledRule
}

const ACCESS_CONTROL_SVC = "access_control_svc"

func (svc AccessControlService) Id() string {
	return ACCESS_CONTROL_SVC
}

func (svc *AccessControlService) Configure(ctx *appContext.Context) error {
	svc.rules = compileRules(defaultAccessRules())
	return svc.DefaultService.Configure(ctx)
}

func (svc *AccessControlService) Start() error {
	log.WithField("rules", len(svc.rules)).Info("Access control rules loaded")
	return nil
}

func defaultAccessRules() []AccessRule {
	personalFields := []string{"email", "username", "profile"}

	return []AccessRule{
		{Pattern: "/api/v1/users", Method: http.MethodGet, DataCategory: model.CategoryPersonalInfo, Fields: personalFields, RequiresAdmin: true},
		{Pattern: "/api/v1/users/{user_id}", Method: http.MethodGet, DataCategory: model.CategoryPersonalInfo, Fields: personalFields, Scope: shared.ScopeUsersRead},
		{Pattern: "/api/v1/users/{user_id}", Method: http.MethodPut, DataCategory: model.CategoryPersonalInfo, Fields: personalFields, Scope: shared.ScopeUsersWrite},
		{Pattern: "/api/v1/users/{user_id}", Method: http.MethodDelete, DataCategory: model.CategoryPersonalInfo, Fields: []string{"all_user_data"}, Scope: shared.ScopeUsersDelete},

		{Pattern: "/api/v1/me", Method: http.MethodGet, DataCategory: model.CategoryPersonalInfo, Fields: personalFields, SelfService: true},
		{Pattern: "/api/v1/me", Method: http.MethodPut, DataCategory: model.CategoryPersonalInfo, Fields: personalFields, SelfService: true},
		{Pattern: "/api/v1/me/deletion", Method: http.MethodPost, DataCategory: model.CategoryPersonalInfo, Fields: []string{"deletion_request"}, SelfService: true},
		{Pattern: "/api/v1/data/export", Method: http.MethodPost, DataCategory: model.CategoryPersonalInfo, Fields: []string{"all_personal_data"}, Scope: shared.ScopeDataExport, SelfService: true},

		{Pattern: "/api/v1/admin/users", Method: http.MethodGet, DataCategory: model.CategoryPersonalInfo, Fields: personalFields, RequiresAdmin: true},
		// Audit reads are scope-gated rather than admin-only so a
		// compliance reviewer can hold audit:read without full admin,
		// and a user can pull their own trail.
		{Pattern: "/api/v1/admin/audit-logs/{user_id}", Method: http.MethodGet, DataCategory: model.CategorySystemData, Fields: []string{"audit_trail"}, Scope: shared.ScopeAuditRead},
		{Pattern: "/api/v1/admin/audit-summary", Method: http.MethodGet, DataCategory: model.CategorySystemData, Fields: []string{"audit_summary"}, Scope: shared.ScopeAuditRead},
		{Pattern: "/api/v1/admin/incidents", Method: http.MethodGet, DataCategory: model.CategorySystemData, Fields: []string{"incidents"}, RequiresAdmin: true},
		{Pattern: "/api/v1/admin/incidents", Method: http.MethodPost, DataCategory: model.CategorySystemData, Fields: []string{"incidents"}, RequiresAdmin: true},
		{Pattern: "/api/v1/admin/incidents/{incident_id}", Method: http.MethodGet, DataCategory: model.CategorySystemData, Fields: []string{"incidents"}, RequiresAdmin: true},
		{Pattern: "/api/v1/admin/incidents/{incident_id}/status", Method: http.MethodPut, DataCategory: model.CategorySystemData, Fields: []string{"incidents"}, RequiresAdmin: true},
		{Pattern: "/api/v1/admin/incident-summary", Method: http.MethodGet, DataCategory: model.CategorySystemData, Fields: []string{"incidents"}, RequiresAdmin: true},
		{Pattern: "/api/v1/admin/deletion-requests", Method: http.MethodGet, DataCategory: model.CategorySystemData, Fields: []string{"deletion_requests"}, RequiresAdmin: true},
		{Pattern: "/api/v1/admin/deletion-requests/{request_id}/process", Method: http.MethodPost, DataCategory: model.CategorySystemData, Fields: []string{"deletion_requests"}, RequiresAdmin: true},
		{Pattern: "/api/v1/admin/retention/sweep", Method: http.MethodPost, DataCategory: model.CategorySystemData, Fields: []string{"retention"}, RequiresAdmin: true},
	}
}

func compileRules(rules []AccessRule) []compiledRule {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{rule: r, ownerIdx: -1}
		for i, seg := range splitPath(r.Pattern) {
			if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
				cr.segments = append(cr.segments, "")
				cr.hasParams = true
				if seg == "{user_id}" {
					cr.ownerIdx = i
				}
			} else {
				cr.segments = append(cr.segments, seg)
			}
		}
		compiled = append(compiled, cr)
	}
	return compiled
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

// matchRule finds the governing rule: exact (path, method) first, then
// pattern match with placeholder segments skipped.
func (svc *AccessControlService) matchRule(path, method string) (*compiledRule, []string) {
	segs := splitPath(path)

	for i := range svc.rules {
		r := &svc.rules[i]
		if r.rule.Method == method && !r.hasParams && r.rule.Pattern == path {
			return r, segs
		}
	}

	for i := range svc.rules {
		r := &svc.rules[i]
		if r.rule.Method != method || !r.hasParams {
			continue
		}
		if matchSegments(r.segments, segs) {
			return r, segs
		}
	}

	return nil, nil
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, p := range pattern {
		if p == "" {
			continue // placeholder
		}
		if p != path[i] {
			return false
		}
	}
	return true
}

// Decide maps (path, method, caller claims) to an allow/deny decision.
// Endpoints without a rule are not classified as sensitive and pass
// untagged. Ownership and scope combine as a logical OR.
func (svc *AccessControlService) Decide(path, method string, claims *dto.AuthClaims) dto.AccessDecision {
	rule, segs := svc.matchRule(path, method)
	if rule == nil {
		return dto.AccessDecision{Allowed: true}
	}

	decision := dto.AccessDecision{
		Classified:   true,
		DataCategory: string(rule.rule.DataCategory),
		Fields:       rule.rule.Fields,
	}

	if claims == nil || claims.Subject == "" {
		decision.Reason = "authentication required"
		decision.StatusCode = http.StatusUnauthorized
		return decision
	}

	isAdmin := claims.HasScope(shared.ScopeAdmin)

	if rule.rule.RequiresAdmin {
		if !isAdmin {
			decision.Reason = "admin privileges required"
			decision.StatusCode = http.StatusForbidden
			return decision
		}
		decision.Allowed = true
		return decision
	}

	if rule.rule.SelfService || isAdmin {
		decision.Allowed = true
		return decision
	}

	if rule.rule.Scope != "" && claims.HasScope(rule.rule.Scope) {
		decision.Allowed = true
		return decision
	}

	if rule.ownerIdx >= 0 && rule.ownerIdx < len(segs) && segs[rule.ownerIdx] == claims.Subject {
		decision.Allowed = true
		return decision
	}

	decision.Reason = "insufficient permissions"
	decision.StatusCode = http.StatusForbidden
	return decision
}

// ResourceOwner extracts the addressed owner id from the path of a
// classified endpoint, or "" when the rule carries no {user_id} segment.
func (svc *AccessControlService) ResourceOwner(path, method string) string {
	rule, segs := svc.matchRule(path, method)
	if rule == nil || rule.ownerIdx < 0 || rule.ownerIdx >= len(segs) {
		return ""
	}
	return segs[rule.ownerIdx]
}
