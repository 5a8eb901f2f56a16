package config

// Respawnfile represents the structure of the respawn.yaml configuration file.
// Unset keys keep their defaults; pointer fields distinguish "false" from unset.
type Respawnfile struct {
	Root           string   `yaml:"root"`
	Watch          []string `yaml:"watch"`
	IgnoreWatch    []string `yaml:"ignoreWatch"`
	Extensions     []string `yaml:"extensions"`
	ExcludeDirs    []string `yaml:"excludeDirs"`
	Ignore         []string `yaml:"ignore"`
	Only           []string `yaml:"only"`
	Target         string   `yaml:"target"`
	Debounce       string   `yaml:"debounce"`
	RestartTimeout string   `yaml:"restartTimeout"`
	CacheDirectory string   `yaml:"cacheDirectory"`

	TranslateErrors *bool `yaml:"translateErrors"`
	Clear           *bool `yaml:"clear"`
	Respawn         *bool `yaml:"respawn"`
	ExitChild       *bool `yaml:"exitChild"`
	NoCache         *bool `yaml:"noCache"`
}
