package shared

const (
	UserID    = "user_id"
	Claims    = "claims"
	ClientIP  = "client_ip"
	UserAgent = "user_agent"

	ScopeAdmin       = "admin"
	ScopeUsersRead   = "users:read"
	ScopeUsersWrite  = "users:write"
	ScopeUsersDelete = "users:delete"
	ScopeDataExport  = "data:export"
	ScopeAuditRead   = "audit:read"

	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
)
