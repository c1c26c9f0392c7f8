package dto

import "time"

type RateLimitInfo struct {
	Allowed    bool       `json:"allowed"`
	Window     string     `json:"window,omitempty"` // tightest exceeded window on deny
	Remaining  int        `json:"remaining"`
	RetryAfter int        `json:"retry_after,omitempty"` // seconds
	ResetTime  *time.Time `json:"reset_time,omitempty"`
}

type FindingCategory string

const (
	FindingSQLInjection    FindingCategory = "sql_injection"
	FindingXSS             FindingCategory = "xss"
	FindingPathTraversal   FindingCategory = "path_traversal"
	FindingSuspiciousAgent FindingCategory = "suspicious_agent"
)

type SecurityFinding struct {
	Category FindingCategory `json:"category"`
	Pattern  string          `json:"pattern"`
	Severity string          `json:"severity"`
}

// AuthClaims is the decoded token the identity layer hands to the core:
// subject id, granted scopes and expiry. Signature verification happens
// upstream of this struct.
type AuthClaims struct {
	Subject   string    `json:"sub"`
	SessionID string    `json:"session_id,omitempty"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"exp"`
}

func (c *AuthClaims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type AccessDecision struct {
	Allowed      bool     `json:"allowed"`
	Reason       string   `json:"reason,omitempty"`
	StatusCode   int      `json:"-"`
	DataCategory string   `json:"data_category,omitempty"`
	Fields       []string `json:"fields,omitempty"`
	Classified   bool     `json:"-"`
}
