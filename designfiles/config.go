package designfiles

// Config holds the design-file API settings read from yaml. The access
// token comes from the environment, never from this file.
type Config struct {
	// BaseURL is the design-file API root. Empty means the public API.
	BaseURL string `yaml:"base_url"`

	// AllowPrivateNetworks permits loopback and RFC 1918 base URLs, for
	// self-hosted mirrors and tests.
	AllowPrivateNetworks bool `yaml:"allow_private_networks"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.figma.com"
	}
}
