package mcp

// Server describes a remote MCP server reachable over streamable HTTP.
type Server struct {
	Name string `json:"name" mapstructure:"name"`
	URL  string `json:"url" mapstructure:"url"`
	// Headers sent on every request, values may reference $VARS which are
	// resolved from EnvFile first, then the process environment.
	Headers map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	EnvFile string            `json:"envFile,omitempty" mapstructure:"env_file"`
	// Verbatim servers are registered by API callers: headers are sent as
	// given and EnvFile is ignored.
	Verbatim bool `json:"-" mapstructure:"-"`
}
