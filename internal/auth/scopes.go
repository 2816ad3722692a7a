package auth

// Known OAuth scopes used by the gait service.
const (
	ScopeGaitWrite = "gait:write"
	ScopeGaitRead  = "gait:read"
)
