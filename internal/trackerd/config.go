package trackerd

import (
	"github.com/neverlinked/package-tracking/internal/apiserver"
	"github.com/neverlinked/package-tracking/internal/sink"
	"github.com/neverlinked/package-tracking/internal/source"
)

type Config struct {
	Zones struct {
		File      string  `mapstructure:"file"`
		Threshold float64 `mapstructure:"threshold"`
	} `mapstructure:"zones"`
	Engine struct {
		DistinctUnresolved bool `mapstructure:"distinct_unresolved"`
		Debug              bool `mapstructure:"debug"`
	} `mapstructure:"engine"`
	Source source.Config `mapstructure:"source"`
	Sink   struct {
		Interval int `mapstructure:"interval"`
		Csv      struct {
			Enabled bool   `mapstructure:"enabled"`
			Dir     string `mapstructure:"dir"`
		} `mapstructure:"csv"`
	} `mapstructure:"sink"`
	// Db is disabled when Driver is empty.
	Db sink.DbConfig `mapstructure:"db"`
	// Http is disabled when Listen is empty.
	Http apiserver.Config `mapstructure:"http"`
	Log  struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}
