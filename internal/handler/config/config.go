package config

import "time"

type Config struct {
	ServerAddr string `toml:"run_address"`
	// ключ сервиса партнеров для событий заказа и бонусов; пусто - маршруты отключены
	PartnerKey      string        `toml:"partner_key"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}
