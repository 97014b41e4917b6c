package config

import "time"

type Config struct {
	SecretKey string        `toml:"secret_key"`
	TokenExp  time.Duration `toml:"token_exp"`
}
