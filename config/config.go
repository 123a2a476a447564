package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	JWT         JWTConfig       `mapstructure:"jwt"`
	OAuth       OAuthConfig     `mapstructure:"oauth"`
	Email       EmailConfig     `mapstructure:"email"`
	SMS         SMSConfig       `mapstructure:"sms"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Security    SecurityConfig  `mapstructure:"security"`
	Queue       QueueConfig     `mapstructure:"queue"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	CORS        CORSConfig      `mapstructure:"cors"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	FrontendURL string          `mapstructure:"frontend_url"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	AccessTTLMinutes int    `mapstructure:"access_ttl_minutes"`
	RefreshTTLDays   int    `mapstructure:"refresh_ttl_days"`
	VerifyTTLHours   int    `mapstructure:"verify_ttl_hours"`
	ResetTTLMinutes  int    `mapstructure:"reset_ttl_minutes"`
	SessionTTLDays   int    `mapstructure:"session_ttl_days"`
}

type OAuthConfig struct {
	Google ProviderConfig   `mapstructure:"google"`
	Github ProviderConfig   `mapstructure:"github"`
	Apple  AppleOAuthConfig `mapstructure:"apple"`
}

type ProviderConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type AppleOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"` // 预先签发的 client secret JWT
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SMSConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	APIToken   string `mapstructure:"api_token"`
	Sender     string `mapstructure:"sender"`
}

type TelegramConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id"`
	APIBase   string `mapstructure:"api_base"`
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"` // base64, 32 字节
	AdminAPIKey   string `mapstructure:"admin_api_key"`
	TOTPIssuer    string `mapstructure:"totp_issuer"`
}

type QueueConfig struct {
	NotificationQueue string `mapstructure:"notification_queue"`
	MaxWorkers        int    `mapstructure:"max_workers"`
}

type SchedulerConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
	ReminderDays    int `mapstructure:"reminder_days"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"` // 为空时不启用 tracing
	ServiceName string `mapstructure:"service_name"`
}

// Interval 扫描周期
func (s SchedulerConfig) Interval() time.Duration {
	if s.IntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// ReminderWindow 到期提醒窗口
func (s SchedulerConfig) ReminderWindow() time.Duration {
	if s.ReminderDays <= 0 {
		return 48 * time.Hour
	}
	return time.Duration(s.ReminderDays) * 24 * time.Hour
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("jwt.access_ttl_minutes", 30)
	v.SetDefault("jwt.refresh_ttl_days", 30)
	v.SetDefault("jwt.verify_ttl_hours", 24)
	v.SetDefault("jwt.reset_ttl_minutes", 30)
	v.SetDefault("jwt.session_ttl_days", 30)
	v.SetDefault("security.totp_issuer", "Calmness FI")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("queue.notification_queue", "queue:notifications")
	v.SetDefault("queue.max_workers", 2)
	v.SetDefault("scheduler.interval_minutes", 15)
	v.SetDefault("scheduler.reminder_days", 2)
	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("telemetry.service_name", "calmness-server")
}

func Load(configPath string) (*Config, error) {
	// .env 只用于本地开发，不存在时忽略
	_ = godotenv.Load()

	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
