package broker

// Config holds the broker management API settings loaded from yaml. The
// password is never part of it; cmd reads that from the environment.
type Config struct {
	// BaseURL is the management API root, e.g. http://broker.internal:15672.
	BaseURL string `yaml:"base_url"`

	// Username authenticates against the management API.
	Username string `yaml:"username"`

	// VHosts lists the virtual hosts to inspect. Defaults to the root
	// vhost "/".
	VHosts []string `yaml:"vhosts"`

	// AllowPrivateNetworks permits base URLs on private address space.
	// Broker management listeners are rarely public.
	AllowPrivateNetworks bool `yaml:"allow_private_networks"`
}

func (c *Config) defaults() {
	if len(c.VHosts) == 0 {
		c.VHosts = []string{"/"}
	}
}
