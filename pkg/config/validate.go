package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"github.com/dotcloud/go-client/pkg/client/auth"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Errors use the config keys, e.g. "auth.oauth2.token_url"
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks the field rules and the credentials required by the auth type.
// All problems are reported at once.
func (c Config) Validate() error {
	var err error

	if vErr := getValidator().Struct(c); vErr != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(vErr, &fieldErrs) {
			return vErr
		}
		for _, e := range fieldErrs {
			err = multierror.Append(err, fmt.Errorf(`"%s" %s`, fieldKey(e), fieldMessage(e)))
		}
	}

	required := func(key, value string) {
		if value == "" {
			err = multierror.Append(err, fmt.Errorf(`"%s" is required by auth type "%s"`, key, c.AuthType()))
		}
	}

	switch c.AuthType() {
	case AuthTypeBasic:
		required(keyAuthUsername, c.Auth.Username)
		required(keyAuthPassword, c.Auth.Password)
	case AuthTypeAPIKey:
		required(keyAuthAPIKey, c.Auth.APIKey)
		if c.Auth.APIKey != "" {
			if _, e := auth.NewBasicFromAPIKey(c.Auth.APIKey); e != nil {
				err = multierror.Append(err, fmt.Errorf(`"%s": %w`, keyAuthAPIKey, e))
			}
		}
	case AuthTypeOAuth2:
		required(keyOAuth2ClientID, c.Auth.OAuth2.ClientID)
		required(keyOAuth2TokenURL, c.Auth.OAuth2.TokenURL)
		if c.Auth.OAuth2.AccessToken == "" && c.Auth.OAuth2.RefreshToken == "" {
			// Password grant
			required(keyAuthUsername, c.Auth.Username)
			required(keyAuthPassword, c.Auth.Password)
		}
	}

	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// fieldKey converts "Config.auth.oauth2.token_url" to "auth.oauth2.token_url".
func fieldKey(e validator.FieldError) string {
	_, key, _ := strings.Cut(e.Namespace(), ".")
	return key
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + e.Param()
	case "hostname_port":
		return `must be in the "host:port" form`
	default:
		return "is invalid"
	}
}
