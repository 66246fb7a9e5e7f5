// Package config loads the client configuration from a config file, a .env file and environment variables.
//
// Priority, from the highest: environment variables, the .env file, the config file, defaults.
// Environment variables are prefixed, e.g. DOTCLOUD_ENDPOINT or DOTCLOUD_AUTH_API_KEY.
package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"unicode"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/dotcloud/go-client/pkg/client"
	"github.com/dotcloud/go-client/pkg/client/auth"
	"github.com/dotcloud/go-client/pkg/telemetry"
)

const DefaultEnvPrefix = "DOTCLOUD"

const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "api_key"
	AuthTypeOAuth2 = "oauth2"
)

const (
	keyEndpoint           = "endpoint"
	keyDebug              = "debug"
	keyUserAgent          = "user_agent"
	keyAuthType           = "auth.type"
	keyAuthUsername       = "auth.username"
	keyAuthPassword       = "auth.password"
	keyAuthAPIKey         = "auth.api_key"
	keyOAuth2ClientID     = "auth.oauth2.client_id"
	keyOAuth2ClientSecret = "auth.oauth2.client_secret"
	keyOAuth2TokenURL     = "auth.oauth2.token_url"
	keyOAuth2AccessToken  = "auth.oauth2.access_token"
	keyOAuth2RefreshToken = "auth.oauth2.refresh_token"
	keyOAuth2Scopes       = "auth.oauth2.scopes"
	keyTelemetryEndpoint  = "telemetry.endpoint"
	keyTelemetryInsecure  = "telemetry.insecure"
	keyTelemetryService   = "telemetry.service_name"
)

// Config of the dotCloud API client.
type Config struct {
	Endpoint  string `mapstructure:"endpoint" validate:"required,url"`
	Debug     bool   `mapstructure:"debug"`
	UserAgent string `mapstructure:"user_agent"`
	Auth      Auth   `mapstructure:"auth"`

	// Telemetry exports spans and metrics of requests, it is disabled if the endpoint is empty.
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

type Auth struct {
	// Type is one of "none", "basic", "api_key", "oauth2", it is inferred from the credentials if empty.
	Type     string `mapstructure:"type" validate:"omitempty,oneof=none basic api_key oauth2"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// APIKey in the "key:secret" form.
	APIKey string `mapstructure:"api_key"`
	OAuth2 OAuth2 `mapstructure:"oauth2"`
}

type OAuth2 struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	TokenURL     string   `mapstructure:"token_url" validate:"omitempty,url"`
	AccessToken  string   `mapstructure:"access_token"`
	RefreshToken string   `mapstructure:"refresh_token"`
	Scopes       []string `mapstructure:"scopes"`
}

type LoadOptions struct {
	// ConfigFile is an optional YAML, JSON or TOML file.
	ConfigFile string
	// EnvFile is an optional .env file, it doesn't override the process environment.
	EnvFile string
	// EnvPrefix of environment variables, DefaultEnvPrefix is used if empty.
	EnvPrefix string
}

// Load reads the configuration and validates it.
func Load(opts LoadOptions) (Config, error) {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}

	v := viper.New()
	setDefaults(v)

	// Config file
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf(`cannot read config file "%s": %w`, opts.ConfigFile, err)
		}
	}

	// Environment
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The .env file fills only variables missing in the process environment
	if opts.EnvFile != "" {
		envs, err := godotenv.Read(opts.EnvFile)
		if err != nil {
			return Config{}, fmt.Errorf(`cannot read env file "%s": %w`, opts.EnvFile, err)
		}
		for _, key := range v.AllKeys() {
			name := envName(opts.EnvPrefix, key)
			if _, found := os.LookupEnv(name); found {
				continue
			}
			if value, found := envs[name]; found {
				v.Set(key, value)
			}
		}
	}

	// Loose scalars, e.g. DEBUG=1 or SCOPES="read write"
	debug, err := cast.ToBoolE(v.Get(keyDebug))
	if err != nil {
		return Config{}, fmt.Errorf(`invalid value of "%s": %w`, keyDebug, err)
	}
	v.Set(keyDebug, debug)
	insecure, err := cast.ToBoolE(v.Get(keyTelemetryInsecure))
	if err != nil {
		return Config{}, fmt.Errorf(`invalid value of "%s": %w`, keyTelemetryInsecure, err)
	}
	v.Set(keyTelemetryInsecure, insecure)
	v.Set(keyOAuth2Scopes, toList(v.Get(keyOAuth2Scopes)))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("cannot decode config: %w", err)
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Auth.Type = strings.ToLower(strings.TrimSpace(cfg.Auth.Type))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AuthType returns the configured authentication type, or the type inferred from the credentials.
func (c Config) AuthType() string {
	switch {
	case c.Auth.Type != "":
		return c.Auth.Type
	case c.Auth.APIKey != "":
		return AuthTypeAPIKey
	case c.Auth.OAuth2.TokenURL != "":
		return AuthTypeOAuth2
	case c.Auth.Username != "":
		return AuthTypeBasic
	default:
		return AuthTypeNone
	}
}

// Authenticator creates the authenticator of the configured type.
// The OAuth2 password grant is exchanged immediately, the httpClient is used to reach the token endpoint.
func (c Config) Authenticator(ctx context.Context, httpClient *http.Client) (auth.Authenticator, error) {
	switch c.AuthType() {
	case AuthTypeNone:
		return auth.None{}, nil
	case AuthTypeBasic:
		return auth.NewBasic(c.Auth.Username, c.Auth.Password), nil
	case AuthTypeAPIKey:
		a, err := auth.NewBasicFromAPIKey(c.Auth.APIKey)
		if err != nil {
			return nil, err
		}
		return a, nil
	case AuthTypeOAuth2:
		oauthCfg := &oauth2.Config{
			ClientID:     c.Auth.OAuth2.ClientID,
			ClientSecret: c.Auth.OAuth2.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: c.Auth.OAuth2.TokenURL},
			Scopes:       c.Auth.OAuth2.Scopes,
		}
		var opts []auth.OAuth2Option
		if httpClient != nil {
			opts = append(opts, auth.WithHTTPClient(httpClient))
		}
		if c.Auth.OAuth2.AccessToken == "" && c.Auth.OAuth2.RefreshToken == "" {
			a, err := auth.PasswordCredentials(ctx, oauthCfg, c.Auth.Username, c.Auth.Password, opts...)
			if err != nil {
				return nil, err
			}
			return a, nil
		}
		token := &oauth2.Token{AccessToken: c.Auth.OAuth2.AccessToken, RefreshToken: c.Auth.OAuth2.RefreshToken}
		return auth.NewOAuth2(oauthCfg, token, opts...), nil
	default:
		return nil, fmt.Errorf(`unexpected auth type "%s"`, c.Auth.Type)
	}
}

// NewClient applies the configuration to the base client.
// The token endpoint is reached through the transport of the base client.
func (c Config) NewClient(ctx context.Context, base client.Client) (client.Client, error) {
	out := base.WithEndpoint(c.Endpoint).WithDebug(c.Debug)
	if c.UserAgent != "" {
		out = out.WithUserAgent(c.UserAgent)
	}

	authenticator, err := c.Authenticator(ctx, &http.Client{Transport: base.Session().Transport()})
	if err != nil {
		return client.Client{}, err
	}
	return out.WithAuthenticator(authenticator), nil
}

func setDefaults(v *viper.Viper) {
	// Each key must be known to viper, otherwise it is not read from the environment by Unmarshal
	v.SetDefault(keyEndpoint, client.DefaultEndpoint)
	v.SetDefault(keyDebug, false)
	v.SetDefault(keyUserAgent, "")
	v.SetDefault(keyAuthType, "")
	v.SetDefault(keyAuthUsername, "")
	v.SetDefault(keyAuthPassword, "")
	v.SetDefault(keyAuthAPIKey, "")
	v.SetDefault(keyOAuth2ClientID, "")
	v.SetDefault(keyOAuth2ClientSecret, "")
	v.SetDefault(keyOAuth2TokenURL, "")
	v.SetDefault(keyOAuth2AccessToken, "")
	v.SetDefault(keyOAuth2RefreshToken, "")
	v.SetDefault(keyOAuth2Scopes, []string{})
	v.SetDefault(keyTelemetryEndpoint, "")
	v.SetDefault(keyTelemetryInsecure, false)
	v.SetDefault(keyTelemetryService, "")
}

func envName(prefix, key string) string {
	return strings.ToUpper(prefix + "_" + strings.ReplaceAll(key, ".", "_"))
}

// toList accepts a list or a string separated by commas or whitespaces.
func toList(v any) []string {
	if str, ok := v.(string); ok {
		return strings.FieldsFunc(str, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
	}
	return cast.ToStringSlice(v)
}
