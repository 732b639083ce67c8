package cfg

type Cfg struct {
	// Application configuration
	Port             string
	DBPath           string
	APIAccessKey     string
	DiscoveryOptions string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
