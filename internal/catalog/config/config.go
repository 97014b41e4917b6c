package config

import "time"

type Config struct {
	// адрес сервиса партнеров; пусто - каталог из базы
	PartnerServiceAddr string        `toml:"partner_service"`
	PartnerTimeout     time.Duration `toml:"partner_timeout"`

	// кэш каталога в Redis; пусто - без кэша
	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	CacheTTL      time.Duration `toml:"cache_ttl"`
}
