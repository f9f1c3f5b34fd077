// internal/utils/logger/config.go
package logger

// Config controls console/file output and rotation.
type Config struct {
	LogFile     string `mapstructure:"file"`
	MaxSize     int    `mapstructure:"max_size"`    // megabytes
	MaxAge      int    `mapstructure:"max_age"`     // days
	MaxBackups  int    `mapstructure:"max_backups"` // rotated files kept
	Compress    bool   `mapstructure:"compress"`
	Development bool   `mapstructure:"development"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() *Config {
	return &Config{
		LogFile:     "sniper.log",
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: false,
	}
}
