package config

type Config struct {
	LogLevel string `toml:"log_level"`
}
