package auth

import (
	"time"
)

// AuthMethod represents the type of authentication
type AuthMethod string

const (
	AuthMethodBasic AuthMethod = "basic" // username/password
	AuthMethodJWT   AuthMethod = "jwt"   // JWT token
)

// AuthResult represents the result of authentication
type AuthResult struct {
	Success  bool     `json:"success"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Token    *Token   `json:"token,omitempty"`
}

// Token represents a JWT token
type Token struct {
	Type      string    `json:"type"`  // "Bearer"
	Value     string    `json:"value"` // JWT token string
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest represents a login request. An empty Method means basic.
type LoginRequest struct {
	Method   AuthMethod `json:"method"`
	Username string     `json:"username,omitempty"`
	Password string     `json:"password,omitempty"`
	Token    string     `json:"token,omitempty"`
}

// Resources guarded by the API.
const (
	ResourceConnection = "connection" // status, up, down
	ResourceHistory    = "history"
	ResourceMetrics    = "metrics"
)

// Actions on a resource.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// Permission represents a permission in the system
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// rolePermissions defines the built-in roles. "*" matches anything.
var rolePermissions = map[string][]Permission{
	"admin": {
		{Resource: "*", Action: "*"},
	},
	"operator": {
		{Resource: ResourceConnection, Action: ActionRead},
		{Resource: ResourceConnection, Action: ActionWrite},
		{Resource: ResourceHistory, Action: ActionRead},
		{Resource: ResourceMetrics, Action: ActionRead},
	},
	"viewer": {
		{Resource: ResourceConnection, Action: ActionRead},
		{Resource: ResourceHistory, Action: ActionRead},
	},
}
