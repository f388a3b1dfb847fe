package apiserver

// Config defines the configuration structure for the tracking API server
type Config struct {
	ServerName string `mapstructure:"server_name"`
	Listen     string `mapstructure:"listen"`
	BasicAuth  bool   `mapstructure:"basic_auth"`
	Secret     string `mapstructure:"secret"`
	Debug      bool   `mapstructure:"debug"`
	Users      []struct {
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
	} `mapstructure:"users"`
}
