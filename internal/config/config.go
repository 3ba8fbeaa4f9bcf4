// Package config loads process configuration the way the teacher repo
// does: github.com/spf13/viper layered over environment variables, with an
// optional config file. RoomConfig is new here, surfacing every
// orchestrator tunable spec.md hard-codes as a constant (reservation TTL,
// coalescing windows, heartbeat cadence, disconnect grace) so operators can
// tune them without a rebuild.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the application's top-level configuration tree.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     TeacherAuthConfig
	Room     RoomConfig
}

// ServerConfig is HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// PostgresConfig is the Session Store Gateway's backing database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig is the room hub's pub/sub fan-out backend.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TeacherAuthConfig configures csrf-token verification for teacher
// join_room handshakes (Non-goal: no cryptographic detail beyond the
// verification call site, per spec.md §1).
type TeacherAuthConfig struct {
	Secret           string `mapstructure:"secret"`
	SigningAlgorithm string `mapstructure:"signing_algorithm"`
	Issuer           string `mapstructure:"issuer"`
}

// RoomConfig carries every magic number spec.md names, with defaults
// matching the spec exactly.
type RoomConfig struct {
	StatsCoalesceWindow       time.Duration `mapstructure:"stats_coalesce_window"`
	WaitingRoomCoalesceWindow time.Duration `mapstructure:"waiting_room_coalesce_window"`
	ReservationTTL            time.Duration `mapstructure:"reservation_ttl"`
	StudentDisconnectGrace    time.Duration `mapstructure:"student_disconnect_grace"`
	TeacherReconnectGrace     time.Duration `mapstructure:"teacher_reconnect_grace"`
	HeartbeatInterval         time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout          time.Duration `mapstructure:"heartbeat_timeout"`
	GatewayCallTimeout        time.Duration `mapstructure:"gateway_call_timeout"`
	EndQuizDrainTimeout       time.Duration `mapstructure:"end_quiz_drain_timeout"`
	RetryBackoffs             []time.Duration
	OutboundQueueCapacity     int `mapstructure:"outbound_queue_capacity"`
}

// DefaultRoomConfig matches spec.md §4.4.5, §4.4.6, and §5 verbatim.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		StatsCoalesceWindow:       200 * time.Millisecond,
		WaitingRoomCoalesceWindow: 150 * time.Millisecond,
		ReservationTTL:            10 * time.Minute,
		StudentDisconnectGrace:    30 * time.Second,
		TeacherReconnectGrace:     60 * time.Second,
		HeartbeatInterval:         20 * time.Second,
		HeartbeatTimeout:          15 * time.Second,
		GatewayCallTimeout:        5 * time.Second,
		EndQuizDrainTimeout:       2 * time.Second,
		RetryBackoffs:             []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 400 * time.Millisecond},
		OutboundQueueCapacity:     64,
	}
}

// Load loads configuration from environment variables (with or without the
// APP_ prefix) and an optional file named by APP_CONFIG_FILE, following the
// teacher's precedence order.
func Load() (*Config, error) {
	cfg := &Config{Room: DefaultRoomConfig()}
	v := viper.New()

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVariables(v)

	if configFile := v.GetString("config_file"); configFile != "" { // APP_ prefix added by AutomaticEnv
		v.SetConfigFile(configFile)
		_ = v.ReadInConfig() // missing/invalid file is non-fatal; env vars and defaults still apply
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if cfg.Room.OutboundQueueCapacity == 0 {
		cfg.Room = DefaultRoomConfig()
	}

	return cfg, nil
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.idle_timeout", "SERVER_IDLE_TIMEOUT")

	v.BindEnv("postgres.host", "POSTGRES_HOST")
	v.BindEnv("postgres.port", "POSTGRES_PORT")
	v.BindEnv("postgres.user", "POSTGRES_USER")
	v.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	v.BindEnv("postgres.database", "POSTGRES_DB")
	v.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")

	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	v.BindEnv("auth.secret", "AUTH_SECRET")
	v.BindEnv("auth.signing_algorithm", "AUTH_SIGNING_ALGORITHM")
	v.BindEnv("auth.issuer", "AUTH_ISSUER")
}

// GetConnectionString returns a formatted PostgreSQL DSN.
func (p PostgresConfig) GetConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// GetAddr returns the Redis address in "host:port" form.
func (r RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// GetAddr returns the listen address in ":port" form.
func (s ServerConfig) GetAddr() string {
	return fmt.Sprintf(":%d", s.Port)
}
