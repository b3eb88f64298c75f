package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	App      *Appconfig       `yaml:"app" validate:"required"`
	DB       *DBconfig        `yaml:"db" validate:"required"`
	RabbitMq *RabbitMqconfig  `yaml:"rabbitmq" validate:"required"`
	WS       *WebSocketconfig `yaml:"ws" validate:"required"`
	Store    *Storeconfig     `yaml:"store" validate:"required"`
	Tracking *Trackingconfig  `yaml:"tracking" validate:"required"`
	Srv      *Serviceconfig   `yaml:"service" validate:"required"`
	Log      *Loggerconfig    `yaml:"log" validate:"required"`
}

type Appconfig struct {
	Env         string `yaml:"env" validate:"oneof=development production"`
	JwtSecret   string `yaml:"jwt_secret" validate:"required"`
	JwtIssuer   string `yaml:"jwt_issuer"`
	JwtAudience string `yaml:"jwt_audience"`
}

type DBconfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port" validate:"gt=0"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	MaxRetries int    `yaml:"max_retries" validate:"gt=0"`
	MaxConns   int32  `yaml:"max_conns" validate:"gt=0"`
}

type RabbitMqconfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gt=0"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	Exchange string `yaml:"exchange" validate:"required"`
}

type WebSocketconfig struct {
	AuthTimeout     time.Duration `yaml:"auth_timeout" validate:"gt=0"`
	PingInterval    time.Duration `yaml:"ping_interval" validate:"gt=0"`
	PongWait        time.Duration `yaml:"pong_wait" validate:"gtfield=PingInterval"`
	WriteWait       time.Duration `yaml:"write_wait" validate:"gt=0"`
	SendBuffer      int           `yaml:"send_buffer" validate:"gt=0"`
	PriorityWait    time.Duration `yaml:"priority_wait" validate:"gt=0"`
	MaxMessageBytes int64         `yaml:"max_message_bytes" validate:"gt=0"`
}

type Storeconfig struct {
	Driver        string `yaml:"driver" validate:"oneof=postgres sqlite memory"`
	SQLitePath    string `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	DirectoryFile string `yaml:"directory_file"`
}

type Trackingconfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`
	DemoteAfter   time.Duration `yaml:"demote_after" validate:"gt=0"`
	PurgeAfter    time.Duration `yaml:"purge_after" validate:"gtfield=DemoteAfter"`
	ActiveWindow  time.Duration `yaml:"active_window" validate:"gt=0"`
}

type Serviceconfig struct {
	LocationServicePort string   `yaml:"location_service" validate:"required,numeric"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
}

type Loggerconfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when neither a file nor the
// environment overrides a value.
func Default() *Config {
	return &Config{
		App: &Appconfig{
			Env:         EnvDevelopment,
			JwtSecret:   "",
			JwtIssuer:   "",
			JwtAudience: "",
		},
		DB: &DBconfig{
			Host:       "localhost",
			Port:       5432,
			User:       "bustracker_user",
			Password:   "bustracker_pass",
			Database:   "bustracker_db",
			MaxRetries: 5,
			MaxConns:   10,
		},
		RabbitMq: &RabbitMqconfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     5672,
			User:     "guest",
			Password: "guest",
			VHost:    "",
			Exchange: "location_topic",
		},
		WS: &WebSocketconfig{
			AuthTimeout:     5 * time.Second,
			PingInterval:    30 * time.Second,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
			SendBuffer:      64,
			PriorityWait:    250 * time.Millisecond,
			MaxMessageBytes: 4096,
		},
		Store: &Storeconfig{
			Driver:     "postgres",
			SQLitePath: "data/live_positions.db",
		},
		Tracking: &Trackingconfig{
			SweepInterval: 5 * time.Minute,
			DemoteAfter:   10 * time.Minute,
			PurgeAfter:    24 * time.Hour,
			ActiveWindow:  5 * time.Minute,
		},
		Srv: &Serviceconfig{
			LocationServicePort: "3001",
			AllowedOrigins:      []string{"*"},
		},
		Log: &Loggerconfig{
			Level: "INFO",
		},
	}
}

// New loads .env (if present), overlays CONFIG_FILE (if set) on the
// defaults, then applies environment variables and validates the result.
func New() (*Config, error) {
	_ = godotenv.Load()

	cnf := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := overlayYAML(cnf, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cnf)

	if err := Validate(cnf); err != nil {
		return nil, err
	}
	return cnf, nil
}

// NewFromYAML reads a YAML file on top of the defaults without
// consulting the environment.
func NewFromYAML(path string) (*Config, error) {
	cnf := Default()
	if err := overlayYAML(cnf, path); err != nil {
		return nil, err
	}
	if err := Validate(cnf); err != nil {
		return nil, err
	}
	return cnf, nil
}

func Validate(cnf *Config) error {
	if err := validator.New().Struct(cnf); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

func overlayYAML(cnf *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cnf); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cnf *Config) {
	getEnv := func(key, def string) string {
		val := os.Getenv(key)
		if val == "" {
			return def
		}
		return val
	}

	getEnvInt := func(key string, def int) int {
		valStr := os.Getenv(key)
		if valStr == "" {
			return def
		}
		val, err := strconv.Atoi(valStr)
		if err != nil {
			fmt.Printf("cannot parse %s, using default %v\n", key, def)
			return def
		}
		return val
	}

	getEnvBool := func(key string, def bool) bool {
		valStr := os.Getenv(key)
		if valStr == "" {
			return def
		}
		val, err := strconv.ParseBool(valStr)
		if err != nil {
			fmt.Printf("cannot parse %s, using default %v\n", key, def)
			return def
		}
		return val
	}

	getEnvDuration := func(key string, def time.Duration) time.Duration {
		valStr := os.Getenv(key)
		if valStr == "" {
			return def
		}
		val, err := time.ParseDuration(valStr)
		if err != nil {
			fmt.Printf("cannot parse %s, using default %v\n", key, def)
			return def
		}
		return val
	}

	cnf.App.Env = getEnv("APP_ENV", cnf.App.Env)
	cnf.App.JwtSecret = getEnv("JWT_SECRET", cnf.App.JwtSecret)
	cnf.App.JwtIssuer = getEnv("JWT_ISSUER", cnf.App.JwtIssuer)
	cnf.App.JwtAudience = getEnv("JWT_AUDIENCE", cnf.App.JwtAudience)

	cnf.DB.Host = getEnv("DB_HOST", cnf.DB.Host)
	cnf.DB.Port = getEnvInt("DB_PORT", cnf.DB.Port)
	cnf.DB.User = getEnv("DB_USER", cnf.DB.User)
	cnf.DB.Password = getEnv("DB_PASSWORD", cnf.DB.Password)
	cnf.DB.Database = getEnv("DB_NAME", cnf.DB.Database)
	cnf.DB.MaxRetries = getEnvInt("DB_MAX_RETRIES", cnf.DB.MaxRetries)
	cnf.DB.MaxConns = int32(getEnvInt("DB_MAX_CONNS", int(cnf.DB.MaxConns)))

	cnf.RabbitMq.Enabled = getEnvBool("RABBITMQ_ENABLED", cnf.RabbitMq.Enabled)
	cnf.RabbitMq.Host = getEnv("RABBITMQ_HOST", cnf.RabbitMq.Host)
	cnf.RabbitMq.Port = getEnvInt("RABBITMQ_PORT", cnf.RabbitMq.Port)
	cnf.RabbitMq.User = getEnv("RABBITMQ_USER", cnf.RabbitMq.User)
	cnf.RabbitMq.Password = getEnv("RABBITMQ_PASSWORD", cnf.RabbitMq.Password)
	cnf.RabbitMq.VHost = getEnv("RABBITMQ_VHOST", cnf.RabbitMq.VHost)
	cnf.RabbitMq.Exchange = getEnv("RABBITMQ_EXCHANGE", cnf.RabbitMq.Exchange)

	cnf.WS.AuthTimeout = getEnvDuration("WS_AUTH_TIMEOUT", cnf.WS.AuthTimeout)
	cnf.WS.PingInterval = getEnvDuration("WS_PING_INTERVAL", cnf.WS.PingInterval)
	cnf.WS.PongWait = getEnvDuration("WS_PONG_WAIT", cnf.WS.PongWait)
	cnf.WS.WriteWait = getEnvDuration("WS_WRITE_WAIT", cnf.WS.WriteWait)
	cnf.WS.SendBuffer = getEnvInt("WS_SEND_BUFFER", cnf.WS.SendBuffer)
	cnf.WS.PriorityWait = getEnvDuration("WS_PRIORITY_WAIT", cnf.WS.PriorityWait)
	cnf.WS.MaxMessageBytes = int64(getEnvInt("WS_MAX_MESSAGE_BYTES", int(cnf.WS.MaxMessageBytes)))

	cnf.Store.Driver = getEnv("STORE_DRIVER", cnf.Store.Driver)
	cnf.Store.SQLitePath = getEnv("SQLITE_PATH", cnf.Store.SQLitePath)
	cnf.Store.DirectoryFile = getEnv("DIRECTORY_FILE", cnf.Store.DirectoryFile)

	cnf.Tracking.SweepInterval = getEnvDuration("SWEEP_INTERVAL", cnf.Tracking.SweepInterval)
	cnf.Tracking.DemoteAfter = getEnvDuration("DEMOTE_AFTER", cnf.Tracking.DemoteAfter)
	cnf.Tracking.PurgeAfter = getEnvDuration("PURGE_AFTER", cnf.Tracking.PurgeAfter)
	cnf.Tracking.ActiveWindow = getEnvDuration("ACTIVE_WINDOW", cnf.Tracking.ActiveWindow)

	cnf.Srv.LocationServicePort = getEnv("LOCATION_SERVICE_PORT", cnf.Srv.LocationServicePort)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cnf.Srv.AllowedOrigins = splitList(origins)
	}

	cnf.Log.Level = getEnv("LOG_LEVEL", cnf.Log.Level)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
