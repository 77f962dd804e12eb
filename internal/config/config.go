// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads visitor settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// command-line flags the user actually set. Secrets never live in the file;
// they are read from the environment.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/mail"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Mail drivers.
const (
	MailSMTP   = "smtp"
	MailLog    = "log"
	MailMemory = "memory"
)

// Config is the complete visitor configuration.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Metrics  Metrics  `koanf:"metrics"`
	Log      Log      `koanf:"log"`
	Site     Site     `koanf:"site"`
	URLs     URLs     `koanf:"urls"`
	Accounts Accounts `koanf:"accounts"`
	Token    Token    `koanf:"token"`
	Store    Store    `koanf:"store"`
	Mail     Mail     `koanf:"mail"`

	Secrets Secrets `koanf:"-"`
}

// HTTP configures the web listener.
type HTTP struct {
	Addr string `koanf:"addr"`
	// Prefix is the path every account page is mounted under.
	Prefix string `koanf:"prefix"`
}

// Metrics configures the observability listener. An empty address disables it.
type Metrics struct {
	Addr string `koanf:"addr"`
}

// Log configures logging output.
type Log struct {
	Format string `koanf:"format"`
}

// Site identifies the deployment in outgoing email.
type Site struct {
	Name    string `koanf:"name"`
	BaseURL string `koanf:"base_url"`
}

// URLs are the redirect targets used by the account pages.
type URLs struct {
	Login                string `koanf:"login"`
	LoginRedirect        string `koanf:"login_redirect"`
	LogoutRedirect       string `koanf:"logout_redirect"`
	InvalidTokenRedirect string `koanf:"invalid_token_redirect"`
}

// Accounts configures registration and login.
type Accounts struct {
	IdentityField     string `koanf:"identity_field"`
	PasswordMinLength int    `koanf:"password_min_length"`
	RegisterEnabled   bool   `koanf:"register_enabled"`
}

// Token configures verification links.
type Token struct {
	// MaxAge bounds link age; zero means links only expire through state
	// changes.
	MaxAge time.Duration `koanf:"max_age"`
}

// Store selects the persistence backend.
type Store struct {
	Driver string `koanf:"driver"`
}

// Mail configures outgoing email.
type Mail struct {
	Driver string `koanf:"driver"`
	From   string `koanf:"from"`
	SMTP   SMTP   `koanf:"smtp"`
}

// SMTP holds relay settings for the smtp mail driver.
type SMTP struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	// TLS is "mandatory", "opportunistic" or "none".
	TLS string `koanf:"tls"`
}

// Secrets are read from the environment only.
type Secrets struct {
	DatabaseURL  string `env:"DATABASE_URL"`
	SecretKey    string `env:"VISITOR_SECRET_KEY"`
	SMTPPassword string `env:"VISITOR_SMTP_PASSWORD"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP:    HTTP{Addr: ":8080", Prefix: "/user"},
		Metrics: Metrics{Addr: "127.0.0.1:9100"},
		Log:     Log{Format: "json"},
		Site:    Site{Name: "visitor", BaseURL: "http://localhost:8080"},
		URLs: URLs{
			LoginRedirect: "/",
		},
		Accounts: Accounts{
			IdentityField:     string(account.IdentityEmail),
			PasswordMinLength: account.DefaultPasswordMinLength,
			RegisterEnabled:   true,
		},
		Store: Store{Driver: StorePostgres},
		Mail: Mail{
			Driver: MailSMTP,
			From:   "noreply@localhost",
			SMTP:   SMTP{Port: 587, TLS: "mandatory"},
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":         "http.addr",
	"prefix":       "http.prefix",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"store":        "store.driver",
	"mail":         "mail.driver",
	"base-url":     "site.base_url",
}

// RegisterFlags adds the overridable settings to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("addr", d.HTTP.Addr, "HTTP listen address")
	flags.String("prefix", d.HTTP.Prefix, "path prefix for account pages")
	flags.String("metrics-addr", d.Metrics.Addr, "metrics listen address (empty to disable)")
	flags.String("log-format", d.Log.Format, "log format (json or text)")
	flags.String("store", d.Store.Driver, "storage driver (postgres or memory)")
	flags.String("mail", d.Mail.Driver, "mail driver (smtp, log or memory)")
	flags.String("base-url", d.Site.BaseURL, "public base URL used in email links")
}

// Load builds the configuration from defaults, the YAML file at path (if
// not empty), changed flags (if flags is not nil) and the environment.
// The result is not validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	if err := env.Parse(&cfg.Secrets); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	cfg.normalize()
	return &cfg, nil
}

// normalize fills derived defaults.
func (c *Config) normalize() {
	c.HTTP.Prefix = "/" + strings.Trim(c.HTTP.Prefix, "/")
	if c.HTTP.Prefix == "/" {
		c.HTTP.Prefix = ""
	}
	if c.URLs.Login == "" {
		c.URLs.Login = c.HTTP.Prefix + "/login/"
	}
	if c.URLs.LogoutRedirect == "" {
		c.URLs.LogoutRedirect = c.URLs.Login
	}
	if c.URLs.InvalidTokenRedirect == "" {
		c.URLs.InvalidTokenRedirect = c.URLs.Login
	}
	c.Site.BaseURL = strings.TrimRight(c.Site.BaseURL, "/")
}

// Identity returns the configured login identity field.
func (c *Config) Identity() account.IdentityField {
	return account.IdentityField(c.Accounts.IdentityField)
}

// Policy returns the configured password policy.
func (c *Config) Policy() account.PasswordPolicy {
	return account.PasswordPolicy{MinLength: c.Accounts.PasswordMinLength}
}

// Validate reports the first invalid setting as a CONFIG_INVALID error.
func (c *Config) Validate() error {
	invalid := func(key string, value any, msg string) error {
		return oops.Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf("%s: %s", key, msg)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", c.HTTP.Addr, "must not be empty")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", c.Log.Format, "must be json or text")
	}
	if u, err := url.Parse(c.Site.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("site.base_url", c.Site.BaseURL, "must be an absolute http(s) URL")
	}
	if !c.Identity().Valid() {
		return invalid("accounts.identity_field", c.Accounts.IdentityField, "must be email or username")
	}
	if c.Accounts.PasswordMinLength < 1 {
		return invalid("accounts.password_min_length", c.Accounts.PasswordMinLength, "must be at least 1")
	}
	if c.Token.MaxAge < 0 {
		return invalid("token.max_age", c.Token.MaxAge, "must not be negative")
	}
	if c.Secrets.SecretKey == "" {
		return invalid("VISITOR_SECRET_KEY", "", "must be set")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Secrets.DatabaseURL == "" {
			return invalid("DATABASE_URL", "", "must be set for the postgres store")
		}
	default:
		return invalid("store.driver", c.Store.Driver, "must be postgres or memory")
	}

	if c.Mail.From == "" {
		return invalid("mail.from", c.Mail.From, "must not be empty")
	}
	switch c.Mail.Driver {
	case MailLog, MailMemory:
	case MailSMTP:
		if c.Mail.SMTP.Host == "" {
			return invalid("mail.smtp.host", c.Mail.SMTP.Host, "must be set for the smtp driver")
		}
		if c.Mail.SMTP.Port <= 0 || c.Mail.SMTP.Port > 65535 {
			return invalid("mail.smtp.port", c.Mail.SMTP.Port, "must be a valid port")
		}
		switch c.Mail.SMTP.TLS {
		case "mandatory", "opportunistic", "none":
		default:
			return invalid("mail.smtp.tls", c.Mail.SMTP.TLS, "must be mandatory, opportunistic or none")
		}
	default:
		return invalid("mail.driver", c.Mail.Driver, "must be smtp, log or memory")
	}
	return nil
}

// SMTPConfig returns the relay settings including the password secret.
func (c *Config) SMTPConfig() mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:     c.Mail.SMTP.Host,
		Port:     c.Mail.SMTP.Port,
		Username: c.Mail.SMTP.Username,
		Password: c.Secrets.SMTPPassword,
		TLS:      c.Mail.SMTP.TLS,
	}
}

// MailSite returns the site identity used in email templates.
func (c *Config) MailSite() mail.Site {
	return mail.Site{Name: c.Site.Name, BaseURL: c.Site.BaseURL}
}
