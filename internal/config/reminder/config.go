package reminder_config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
	"github.com/NordCoder/Puntos/internal/obs"
	"github.com/NordCoder/Puntos/internal/outbox"
	"github.com/NordCoder/Puntos/internal/repository/fcm"
	"github.com/NordCoder/Puntos/internal/repository/loyaltyapi"
	pg "github.com/NordCoder/Puntos/internal/repository/postgres"
	redisrepo "github.com/NordCoder/Puntos/internal/repository/redis"
)

type App struct {
	Name        string `mapstructure:"name"`
	Env         string `mapstructure:"env"`
	Version     string `mapstructure:"version"`
	BaseURL     string `mapstructure:"base_url"`
	PointsRoute string `mapstructure:"points_route"`
}

// PointsLink is where every notification click lands.
func (a App) PointsLink() string {
	return strings.TrimRight(a.BaseURL, "/") + "/" + strings.TrimLeft(a.PointsRoute, "/")
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

const (
	KVPostgres = "postgres"
	KVRedis    = "redis"
)

type KV struct {
	Driver string `mapstructure:"driver"`
}

type Kafka struct {
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	Partitions int      `mapstructure:"partitions"`
}

type Reminder struct {
	Hour          int           `mapstructure:"hour"`
	Minute        int           `mapstructure:"minute"`
	Timezone      string        `mapstructure:"timezone"`
	PromptTimeout time.Duration `mapstructure:"prompt_timeout"`
	// BackgroundWorker enables the outbox to push-worker fallback.
	BackgroundWorker bool `mapstructure:"background_worker"`
}

func (r Reminder) SchedulerConfig() (domain.Config, error) {
	loc := time.Local
	if r.Timezone != "" {
		l, err := time.LoadLocation(r.Timezone)
		if err != nil {
			return domain.Config{}, fmt.Errorf("%w: timezone %q", domain.ErrInvalidConfig, r.Timezone)
		}
		loc = l
	}
	return domain.NewConfig(r.Hour, r.Minute, loc)
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (c *Config) AsLoggerConfig() *obs.LogConfig {
	return &obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    "puntos/" + c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

type Config struct {
	App      App               `mapstructure:"app"`
	Server   Server            `mapstructure:"server"`
	DB       pg.Config         `mapstructure:"db"`
	KV       KV                `mapstructure:"kv"`
	Redis    redisrepo.Config  `mapstructure:"redis"`
	Kafka    Kafka             `mapstructure:"kafka"`
	FCM      fcm.Config        `mapstructure:"fcm"`
	Upstream loyaltyapi.Config `mapstructure:"upstream"`
	Reminder Reminder          `mapstructure:"reminder"`
	Outbox   outbox.Config     `mapstructure:"outbox"`
	OTEL     OTEL              `mapstructure:"otel"`
	Log      Log               `mapstructure:"log"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
