package wikisync

// Config configures the wiki sync service.
type Config struct {
	// AllowedProjects is the project allow-list. Empty means every request
	// is rejected; projects are opted in explicitly.
	AllowedProjects []string `yaml:"allowed_projects"`

	// WritesEnabled gates all mutating operations. When false, update
	// requests fail before any network call.
	WritesEnabled bool `yaml:"writes_enabled"`

	// ExcerptLimit bounds, in bytes, the content excerpt embedded in
	// text-not-found errors.
	ExcerptLimit int `yaml:"excerpt_limit"`

	// MaxListedHits bounds how many match locations an ambiguity error
	// enumerates.
	MaxListedHits int `yaml:"max_listed_hits"`

	// MaxHitLineLen bounds, in runes, each listed line in an ambiguity
	// error.
	MaxHitLineLen int `yaml:"max_hit_line_len"`
}

func (c *Config) defaults() {
	if c.ExcerptLimit <= 0 {
		c.ExcerptLimit = 600
	}
	if c.MaxListedHits <= 0 {
		c.MaxListedHits = 8
	}
	if c.MaxHitLineLen <= 0 {
		c.MaxHitLineLen = 120
	}
}

func defaultConfig() *Config {
	return &Config{
		ExcerptLimit:  600,
		MaxListedHits: 8,
		MaxHitLineLen: 120,
	}
}
