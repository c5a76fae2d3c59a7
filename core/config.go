package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	DatabaseConfig struct {
		Engine          string
		Host            string
		Port            int
		Name            string
		User            string
		Password        string
		AdminUser       string
		AdminPassword   string
		DisableTLS      bool
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
		ConnMaxIdleTime time.Duration
	}

	AuthConfig struct {
		Provider           string // cognito | local
		Region             string
		UserPoolID         string
		ClientID           string
		ClientSecret       string
		AccessKey          string // signs Cognito admin calls
		SecretKey          string
		Endpoint           string // overrides the Cognito IDP endpoint
		JWKSURL            string // overrides the derived JWKS URL
		Issuer             string // overrides the derived issuer
		CacheTTL           time.Duration
		RateLimitPerMinute int
	}

	StorageConfig struct {
		Endpoint      string
		Region        string
		Bucket        string
		AccessKey     string
		SecretKey     string
		UseSSL        bool
		PublicBaseURL string
		PresignExpiry time.Duration
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}

	Config struct {
		Env             string
		Build           string
		AppName         string
		Debug           bool
		TestMode        bool
		SecretKey       string
		AdminEmail      string
		FrontendBaseURL string
		RollbarToken    string
		SendgridApiKey  string
		FromEmail       string
		FromName        string

		Server   ServerConfig
		Database DatabaseConfig
		Auth     AuthConfig
		Storage  StorageConfig
		Redis    RedisConfig
	}
)

// Address returns the host:port pair of the database server.
func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IssuerURL is the expected `iss` claim of identity provider tokens.
func (c AuthConfig) IssuerURL() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

func (c AuthConfig) JWKSEndpoint() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return c.IssuerURL() + "/.well-known/jwks.json"
}

func (c AuthConfig) IsLocal() bool { return strings.EqualFold(c.Provider, "local") }

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.FromName, Address: c.FromEmail}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "LearningHub")
	v.SetDefault("secretKey", "v7b!k2m@q9#x4t$z8w&e5r^y1u*i3o(p6a)s0d-f_g+h=j")
	v.SetDefault("adminEmail", "")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("fromEmail", "noreply@localhost")
	v.SetDefault("fromName", "LearningHub")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":4000")
	v.SetDefault("server.debugHost", ":4001")
	v.SetDefault("server.readTimeout", 60*time.Second)
	v.SetDefault("server.writeTimeout", 60*time.Second)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "learninghub")
	v.SetDefault("database.user", "learninghub")
	v.SetDefault("database.password", "learninghub")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 60*time.Second)
	v.SetDefault("database.connMaxIdleTime", 60*time.Second)

	v.SetDefault("auth.provider", "cognito")
	v.SetDefault("auth.region", "ap-southeast-1")
	v.SetDefault("auth.cacheTTL", 5*time.Minute)
	v.SetDefault("auth.rateLimitPerMinute", 20)

	v.SetDefault("storage.endpoint", "s3.ap-southeast-1.amazonaws.com")
	v.SetDefault("storage.region", "ap-southeast-1")
	v.SetDefault("storage.bucket", "learninghub-app-bucket")
	v.SetDefault("storage.useSSL", true)
	v.SetDefault("storage.presignExpiry", time.Hour)

	v.SetDefault("redis.prefix", "learninghub")
}

// NewConfig loads the configuration from defaults, `config/.env.<env>` and the environment.
// Environment variables are prefixed by the env name, e.g. `PROD_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		dotEnvPath = filepath.Join(dir, ".env."+strings.ToLower(env))
	}
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:             env,
		Build:           v.GetString("build"),
		AppName:         v.GetString("appName"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		SecretKey:       v.GetString("secretKey"),
		AdminEmail:      CleanString(v.GetString("adminEmail"), true /* lower */),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		RollbarToken:    v.GetString("rollbarToken"),
		SendgridApiKey:  v.GetString("sendgridApiKey"),
		FromEmail:       v.GetString("fromEmail"),
		FromName:        v.GetString("fromName"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Address:         v.GetString("server.address"),
			DebugHost:       v.GetString("server.debugHost"),
			ReadTimeout:     v.GetDuration("server.readTimeout"),
			WriteTimeout:    v.GetDuration("server.writeTimeout"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:          v.GetString("database.engine"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			Name:            v.GetString("database.name"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			AdminUser:       v.GetString("database.adminUser"),
			AdminPassword:   v.GetString("database.adminPassword"),
			DisableTLS:      v.GetBool("database.disableTLS"),
			MaxOpenConns:    v.GetInt("database.maxOpenConns"),
			MaxIdleConns:    v.GetInt("database.maxIdleConns"),
			ConnMaxLifetime: v.GetDuration("database.connMaxLifetime"),
			ConnMaxIdleTime: v.GetDuration("database.connMaxIdleTime"),
		},
		Auth: AuthConfig{
			Provider:           v.GetString("auth.provider"),
			Region:             v.GetString("auth.region"),
			UserPoolID:         v.GetString("auth.userPoolId"),
			ClientID:           v.GetString("auth.clientId"),
			ClientSecret:       v.GetString("auth.clientSecret"),
			AccessKey:          v.GetString("auth.accessKey"),
			SecretKey:          v.GetString("auth.secretKey"),
			Endpoint:           v.GetString("auth.endpoint"),
			JWKSURL:            v.GetString("auth.jwksUrl"),
			Issuer:             v.GetString("auth.issuer"),
			CacheTTL:           v.GetDuration("auth.cacheTTL"),
			RateLimitPerMinute: v.GetInt("auth.rateLimitPerMinute"),
		},
		Storage: StorageConfig{
			Endpoint:      v.GetString("storage.endpoint"),
			Region:        v.GetString("storage.region"),
			Bucket:        v.GetString("storage.bucket"),
			AccessKey:     v.GetString("storage.accessKey"),
			SecretKey:     v.GetString("storage.secretKey"),
			UseSSL:        v.GetBool("storage.useSSL"),
			PublicBaseURL: v.GetString("storage.publicBaseURL"),
			PresignExpiry: v.GetDuration("storage.presignExpiry"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
		},
	}
}
