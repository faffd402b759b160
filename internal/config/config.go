package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/ogas1024/chat-room/pkg/config"
	"github.com/ogas1024/chat-room/pkg/database"
	"github.com/ogas1024/chat-room/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	TCP       TCPConfig
	Status    StatusConfig
	Chat      ChatConfig
	WebSocket WebSocketConfig
	Heartbeat HeartbeatConfig
	Database  database.Config
	Redis     pubsub.RedisConfig
	Responder ResponderConfig
	Token     TokenConfig
	Log       LogConfig
}

// ServerConfig is the WebSocket HTTP listener.
type ServerConfig struct {
	Host string
	Port int
}

// TCPConfig is the length-prefixed raw TCP listener.
type TCPConfig struct {
	Host    string
	Port    int
	Enabled bool
}

// StatusConfig is the operator HTTP API listener.
type StatusConfig struct {
	Host string
	Port int
}

type ChatConfig struct {
	DefaultRoom    string `mapstructure:"default_room"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxRoomMembers int    `mapstructure:"max_room_members"`
	MaxBodyLength  int    `mapstructure:"max_body_length"`
	EchoBroadcast  bool   `mapstructure:"echo_broadcast"`
	EchoPrivate    bool   `mapstructure:"echo_private"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	MaxFrameSize int64         `mapstructure:"max_frame_size"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

type HeartbeatConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	AuthGrace         time.Duration `mapstructure:"auth_grace"`
	MaxLoginAttempts  int           `mapstructure:"max_login_attempts"`
	MaxProtocolErrors int           `mapstructure:"max_protocol_errors"`
}

// ResponderConfig points at an optional auto-reply HTTP service. An
// empty URL disables the feature.
type ResponderConfig struct {
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	HistoryContext int           `mapstructure:"history_context"`
}

type TokenConfig struct {
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("tcp.host", "0.0.0.0")
	v.SetDefault("tcp.port", 9000)
	v.SetDefault("tcp.enabled", true)
	v.SetDefault("status.host", "0.0.0.0")
	v.SetDefault("status.port", 8081)
	v.SetDefault("chat.default_room", "general")
	v.SetDefault("chat.max_connections", 1024)
	v.SetDefault("chat.max_room_members", 256)
	v.SetDefault("chat.max_body_length", 4096)
	v.SetDefault("chat.echo_broadcast", false)
	v.SetDefault("chat.echo_private", true)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_frame_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("heartbeat.interval", "15s")
	v.SetDefault("heartbeat.idle_timeout", "5m")
	v.SetDefault("heartbeat.auth_grace", "30s")
	v.SetDefault("heartbeat.max_login_attempts", 5)
	v.SetDefault("heartbeat.max_protocol_errors", 8)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "chat.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("responder.url", "")
	v.SetDefault("responder.timeout", "10s")
	v.SetDefault("responder.history_context", 20)
	v.SetDefault("token.ttl", "24h")
	v.SetDefault("token.issuer", "chat-room")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("tcp.port", "TCP_PORT")
	v.BindEnv("status.port", "STATUS_PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("responder.url", "RESPONDER_URL")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Heartbeat.Interval = parseDuration(v, "heartbeat.interval", 15*time.Second)
	cfg.Heartbeat.IdleTimeout = parseDuration(v, "heartbeat.idle_timeout", 5*time.Minute)
	cfg.Heartbeat.AuthGrace = parseDuration(v, "heartbeat.auth_grace", 30*time.Second)
	cfg.Responder.Timeout = parseDuration(v, "responder.timeout", 10*time.Second)
	cfg.Token.TTL = parseDuration(v, "token.ttl", 24*time.Hour)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
