package main

import "time"

// Config is the environment-driven application configuration.
type Config struct {
	Host               string        `env:"HOST,default="`
	Port               int           `env:"PORT,default=3000"`
	CorsAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS,default=*"`
	DisconnectGrace    time.Duration `env:"DISCONNECT_GRACE,default=5s"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL,default=5m"`
	IdleRoomMaxAge     time.Duration `env:"IDLE_ROOM_MAX_AGE,default=1h"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
	LogLevel           string        `env:"LOG_LEVEL,default=info"`
}
