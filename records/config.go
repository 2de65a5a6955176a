package records

// Config holds the records-platform settings loaded from yaml. The access
// token is never part of it; cmd reads that from the environment.
type Config struct {
	// BaseURL is the platform root, e.g. https://records.internal.example.
	BaseURL string `yaml:"base_url"`

	// WritesEnabled gates metadata updates. Off by default: reading and
	// extracting never need it.
	WritesEnabled bool `yaml:"writes_enabled"`

	// AllowPrivateNetworks permits base URLs on private address space.
	// Records platforms normally live on the intranet.
	AllowPrivateNetworks bool `yaml:"allow_private_networks"`
}
