package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	EnableTLS   bool
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	ACMEEmail   string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type LDAPConfig struct {
	Host             string
	Port             int
	UseSSL           bool
	BaseDN           string
	AdminDN          string
	AdminPassword    string
	UserSearchBase   string
	UserSearchFilter string
	AdminGroupCN     string
}

type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Window    int
}

type SMSConfig struct {
	Enabled         bool
	Region          string
	SenderID        string
	SMSType         string
	CodeLength      int
	CodeExpiry      time.Duration
	MessageTemplate string
	FallbackEnabled bool
}

type EmailConfig struct {
	Enabled            bool
	Host               string
	Port               int
	From               string
	Username           string
	Password           string
	VerificationExpiry time.Duration
	VerifyBaseURL      string
}

type RedisConfig struct {
	URL       string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ElasticsearchConfig struct {
	URL       string
	Username  string
	Password  string
	UserIndex string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type KMSConfig struct {
	Enabled bool
	Region  string
	KeyID   string
}

type BucketingConfig struct {
	UserBuckets int
}

type Config struct {
	AppName     string
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	LDAP          LDAPConfig
	TOTP          TOTPConfig
	SMS           SMSConfig
	Email         EmailConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
}

// LoadConfig reads configuration from the environment, with an optional
// .env file for local development.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		AppName:     getEnv("APP_NAME", "LDAP 2FA Backend API"),
		Environment: getEnv("ENVIRONMENT", "development"),

		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8000),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),

			EnableTLS:   getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:    getEnvBool("SERVER_AUTOCERT", false),
			Domain:      getEnv("SERVER_DOMAIN", ""),
			CertFile:    getEnv("SERVER_CERT_FILE", ""),
			KeyFile:     getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir: getEnv("SERVER_AUTOCERT_DIR", "./certs"),
			ACMEEmail:   getEnv("SERVER_ACME_EMAIL", ""),
		},

		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},

		LDAP: LDAPConfig{
			Host:             getEnv("LDAP_HOST", "localhost"),
			Port:             getEnvInt("LDAP_PORT", 389),
			UseSSL:           getEnvBool("LDAP_USE_SSL", false),
			BaseDN:           getEnv("LDAP_BASE_DN", "dc=example,dc=internal"),
			AdminDN:          getEnv("LDAP_ADMIN_DN", "cn=admin,dc=example,dc=internal"),
			AdminPassword:    getEnv("LDAP_ADMIN_PASSWORD", ""),
			UserSearchBase:   getEnv("LDAP_USER_SEARCH_BASE", "ou=users"),
			UserSearchFilter: getEnv("LDAP_USER_SEARCH_FILTER", "(uid=%s)"),
			AdminGroupCN:     getEnv("LDAP_ADMIN_GROUP_CN", "admins"),
		},

		TOTP: TOTPConfig{
			Issuer:    getEnv("TOTP_ISSUER", "LDAP-2FA-App"),
			Digits:    getEnvInt("TOTP_DIGITS", 6),
			Period:    getEnvInt("TOTP_INTERVAL", 30),
			Algorithm: getEnv("TOTP_ALGORITHM", "SHA1"),
			Window:    getEnvInt("TOTP_WINDOW", 1),
		},

		SMS: SMSConfig{
			Enabled:         getEnvBool("ENABLE_SMS_2FA", false),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			SenderID:        getEnv("SMS_SENDER_ID", "2FA"),
			SMSType:         getEnv("SMS_TYPE", "Transactional"),
			CodeLength:      getEnvInt("SMS_CODE_LENGTH", 6),
			CodeExpiry:      getEnvDuration("SMS_CODE_EXPIRY_SECONDS", 5*time.Minute),
			MessageTemplate: getEnv("SMS_MESSAGE_TEMPLATE", "Your verification code is: %s. It expires in 5 minutes."),
			FallbackEnabled: getEnvBool("SMS_FALLBACK_ENABLED", false),
		},

		Email: EmailConfig{
			Enabled:            getEnvBool("ENABLE_EMAIL_VERIFICATION", true),
			Host:               getEnv("SMTP_HOST", "localhost"),
			Port:               getEnvInt("SMTP_PORT", 587),
			From:               getEnv("SMTP_FROM", "no-reply@example.internal"),
			Username:           getEnv("SMTP_USERNAME", ""),
			Password:           getEnv("SMTP_PASSWORD", ""),
			VerificationExpiry: getEnvDuration("EMAIL_VERIFICATION_EXPIRY", 24*time.Hour),
			VerifyBaseURL:      getEnv("EMAIL_VERIFY_BASE_URL", "http://localhost:3000/verify-email"),
		},

		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			PoolSize:  getEnvInt("REDIS_POOL_SIZE", 50),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "sms_otp:"),
		},

		Scylla: ScyllaConfig{
			Nodes:    getEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "mfa"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},

		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_AUTH_TOPIC", "auth-events"),
		},

		Elasticsearch: ElasticsearchConfig{
			URL:       getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:  getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:  getEnv("ELASTICSEARCH_PASSWORD", ""),
			UserIndex: getEnv("ELASTICSEARCH_USER_INDEX", "user-profiles"),
		},

		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
			Database: getEnv("CLICKHOUSE_DATABASE", "audit"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},

		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			Region:  getEnv("AWS_REGION", "us-east-1"),
			KeyID:   getEnv("KMS_KEY_ID", ""),
		},

		Bucketing: BucketingConfig{
			UserBuckets: getEnvInt("USER_BUCKETS", 64),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

// getEnvDuration accepts either a Go duration string ("5m") or a bare
// number of seconds, matching how the original deployment configured
// SMS_CODE_EXPIRY_SECONDS.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
