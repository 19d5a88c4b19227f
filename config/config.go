package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"wablast"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"wablast"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"wablast"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// WhatsApp Cloud API 配置
	WhatsAppProvider      string `env:"WHATSAPP_PROVIDER" envDefault:"cloud"` // cloud, mock
	WhatsAppAPIBase       string `env:"WHATSAPP_API_BASE" envDefault:"https://graph.facebook.com"`
	WhatsAppAPIVersion    string `env:"WHATSAPP_API_VERSION" envDefault:"v20.0"`
	WhatsAppAccessToken   string `env:"WHATSAPP_ACCESS_TOKEN"`  // 必填，Graph API Bearer token
	WhatsAppPhoneNumberID string `env:"WHATSAPP_PHONE_NUMBER_ID"` // 必填，发送号码 ID
	WhatsAppVerifyToken   string `env:"WHATSAPP_VERIFY_TOKEN"`  // webhook 握手校验 token
	WhatsAppAppSecret     string `env:"WHATSAPP_APP_SECRET"`    // webhook 签名密钥
	WhatsAppDefaultMedia  string `env:"WHATSAPP_DEFAULT_MEDIA_URL"` // 图文消息缺省配图
	WhatsAppSendTimeout   int    `env:"WHATSAPP_SEND_TIMEOUT_SECONDS" envDefault:"15"`
	WhatsAppUploadTimeout int    `env:"WHATSAPP_UPLOAD_TIMEOUT_SECONDS" envDefault:"60"`

	// 投递失败自动升级跟进任务
	AutoEscalateFailed bool `env:"AUTO_ESCALATE_FAILED" envDefault:"true"`

	// 调度器配置
	SchedulerInterval   int `env:"SCHEDULER_INTERVAL_SECONDS" envDefault:"60"`
	SchedulerLeaseTTL   int `env:"SCHEDULER_LEASE_TTL_SECONDS" envDefault:"120"`
	DispatchPrefetch    int `env:"DISPATCH_PREFETCH" envDefault:"8"`
	DispatchMaxAttempts int `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"3"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// OpenTelemetry 配置
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}
}

// MustValidate 启动时校验必填配置，缺失直接退出。由各 cmd 入口调用。
func MustValidate() {
	if Cfg.WhatsAppProvider == "cloud" {
		if Cfg.WhatsAppAccessToken == "" {
			log.Fatal("WHATSAPP_ACCESS_TOKEN is required when WHATSAPP_PROVIDER=cloud")
		}
		if Cfg.WhatsAppPhoneNumberID == "" {
			log.Fatal("WHATSAPP_PHONE_NUMBER_ID is required when WHATSAPP_PROVIDER=cloud")
		}
	}

	if Cfg.WhatsAppAppSecret == "" {
		log.Printf("WARN: WHATSAPP_APP_SECRET is not set, webhook callbacks will be rejected")
	}
	if Cfg.WhatsAppVerifyToken == "" {
		log.Printf("WARN: WHATSAPP_VERIFY_TOKEN is not set, webhook verification will fail")
	}

	if Cfg.DispatchMaxAttempts <= 0 {
		log.Fatal("DISPATCH_MAX_ATTEMPTS must be positive")
	}
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// WebhookConfigured 判断 webhook 所需的密钥是否齐备。
func (c *Config) WebhookConfigured() bool {
	return c.WhatsAppAppSecret != "" && c.WhatsAppVerifyToken != ""
}
