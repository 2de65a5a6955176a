package devops

// Config holds the DevOps platform settings loaded from yaml. The personal
// access token is never part of it; binaries read that from the
// environment.
type Config struct {
	// BaseURL is the organization root, e.g.
	// https://devops.internal.example/acme.
	BaseURL string `yaml:"base_url"`

	// DefaultWiki names the wiki the one-shot CLI assumes when its flag is
	// omitted. MCP tools always name their wiki per call.
	DefaultWiki string `yaml:"default_wiki"`

	// PublicOnly rejects base URLs on private address space. Off by
	// default: the platform normally lives on the intranet.
	PublicOnly bool `yaml:"public_only"`
}
