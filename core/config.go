package core

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ErrDatabaseURLMissing is returned by NewConfig when DATABASE_URL is not set.
var ErrDatabaseURLMissing = errors.New("DATABASE_URL is not defined")

const (
	PasswordPolicyBasic  = "basic"
	PasswordPolicyStrict = "strict"
)

type (
	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		AppName          string
		Debug            bool
		TestMode         bool
		SecretKey        string
		DefaultFromEmail mail.Address
		FrontendBaseURL  string
		RollbarToken     string
		SendgridAPIKey   string

		Server   ServerConfig
		Database DatabaseConfig
		Users    UsersConfig
	}

	ServerConfig struct {
		Address            string
		DebugAddress       string
		ReadTimeout        time.Duration
		WriteTimeout       time.Duration
		ShutdownTimeout    time.Duration
		CORSAllowOrigins   []string
		JWTExpirationDelta time.Duration
		DisableRequestLogs bool
	}

	DatabaseConfig struct {
		URL             string
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
		PingAttempts    int
		AutoMigrate     bool
	}

	UsersConfig struct {
		UniqueEmail      bool
		PasswordPolicy   string
		SendWelcomeEmail bool
	}
)

// NewConfig reads the configuration from the environment.
// `config/.env.<env>` and `.env` files are loaded first when present; real env vars always win.
// Keys map to env vars by upper-casing them and replacing dots with underscores:
// `database.url` is read from DATABASE_URL.
func NewConfig() (*Config, error) {
	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if err := loadDotEnv(env); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	conf := &Config{
		Env:             env,
		Build:           v.GetString("build"),
		AppName:         v.GetString("app_name"),
		Debug:           v.GetBool("debug"),
		TestMode:        env == "TEST",
		SecretKey:       v.GetString("secret_key"),
		FrontendBaseURL: strings.TrimRight(v.GetString("frontend_base_url"), "/"),
		RollbarToken:    v.GetString("rollbar_token"),
		SendgridAPIKey:  v.GetString("sendgrid_api_key"),
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			DebugAddress:       v.GetString("server.debug_address"),
			ReadTimeout:        v.GetDuration("server.read_timeout"),
			WriteTimeout:       v.GetDuration("server.write_timeout"),
			ShutdownTimeout:    v.GetDuration("server.shutdown_timeout"),
			CORSAllowOrigins:   splitList(v.GetString("server.cors_allow_origins")),
			JWTExpirationDelta: v.GetDuration("server.jwt_expiration_delta"),
			DisableRequestLogs: v.GetBool("server.disable_request_logs"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			PingAttempts:    v.GetInt("database.ping_attempts"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Users: UsersConfig{
			UniqueEmail:      v.GetBool("users.unique_email"),
			PasswordPolicy:   strings.ToLower(v.GetString("users.password_policy")),
			SendWelcomeEmail: v.GetBool("users.send_welcome_email"),
		},
	}
	if len(conf.Server.CORSAllowOrigins) == 0 {
		conf.Server.CORSAllowOrigins = []string{conf.FrontendBaseURL}
	}

	from, err := mail.ParseAddress(v.GetString("default_from_email"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing DEFAULT_FROM_EMAIL")
	}
	conf.DefaultFromEmail = *from

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (conf *Config) validate() error {
	if conf.Database.URL == "" {
		return ErrDatabaseURLMissing
	}
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.AppName, "app_name"),
		vala.StringNotEmpty(conf.SecretKey, "secret_key"),
		vala.StringNotEmpty(conf.Server.Address, "server.address"),
		vala.GreaterThan(conf.Database.PingAttempts, 0, "database.ping_attempts"),
		vala.GreaterThan(int(conf.Server.ShutdownTimeout), 0, "server.shutdown_timeout"),
		vala.GreaterThan(int(conf.Server.JWTExpirationDelta), 0, "server.jwt_expiration_delta"),
		oneOf(conf.Users.PasswordPolicy, "users.password_policy", PasswordPolicyBasic, PasswordPolicyStrict),
	).Check()
	return errors.Wrap(err, "invalid configuration")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("app_name", "Academia")
	v.SetDefault("secret_key", "v7k0-zq!m3x@s+2u=8pr#yd&c4h(f)w6%e9ntl^ab5g1j")
	v.SetDefault("default_from_email", "Academia <noreply@localhost>")
	v.SetDefault("frontend_base_url", "http://localhost:5173")

	v.SetDefault("server.address", ":3001")
	v.SetDefault("server.debug_address", ":4001")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.cors_allow_origins", "")
	v.SetDefault("server.jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("server.disable_request_logs", false)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.ping_attempts", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("users.unique_email", false)
	v.SetDefault("users.password_policy", PasswordPolicyBasic)
	v.SetDefault("users.send_welcome_email", false)
}

// loadDotEnv loads the env specific file then the local .env file, if they exist (ignored otherwise).
func loadDotEnv(env string) error {
	paths := []string{
		filepath.Join("config", ".env."+strings.ToLower(env)),
		".env",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				return errors.Wrapf(err, "loading %s", p)
			}
		} else if !os.IsNotExist(err) {
			return errors.Wrapf(err, "stat %s", p)
		}
	}
	return nil
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func oneOf(value, paramName string, choices ...string) vala.Checker {
	return func() (bool, string) {
		for _, c := range choices {
			if value == c {
				return true, ""
			}
		}
		return false, fmt.Sprintf("parameter %s must be one of %v (got %q)", paramName, choices, value)
	}
}
