package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Guest credentials accepted by the GNSS hub.
const (
	GuestUser     = "gnssguest"
	GuestPassword = "gnssguest"
)

// ErrUnknownKey is returned by Get and Set for keys that are not settable.
var ErrUnknownKey = errors.New("unknown config key")

type field struct {
	get func(*Config) string
	set func(*Config, string) error
}

func stringField(p func(*Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func intField(p func(*Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("not an integer: %q", v)
			}
			if n < 0 {
				return fmt.Errorf("must not be negative: %d", n)
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(p func(*Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("not a boolean: %q", v)
			}
			*p(c) = b
			return nil
		},
	}
}

func durationField(p func(*Config) *time.Duration) field {
	return field{
		get: func(c *Config) string { return p(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("not a duration: %q", v)
			}
			*p(c) = d
			return nil
		},
	}
}

func choiceField(p func(*Config) *string, choices ...string) field {
	f := stringField(p)
	f.set = func(c *Config, v string) error {
		v = strings.ToLower(v)
		for _, choice := range choices {
			if v == choice {
				*p(c) = v
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(choices, ", "))
	}
	return f
}

var fields = map[string]field{
	"save_dir":        stringField(func(c *Config) *string { return &c.SaveDir }),
	"search_path":     stringField(func(c *Config) *string { return &c.SearchPath }),
	"source":          choiceField(func(c *Config) *string { return &c.Source }, "esa", "scihub", "asf"),
	"orbit_type":      choiceField(func(c *Config) *string { return &c.OrbitType }, "precise", "restituted"),
	"workers":         intField(func(c *Config) *int { return &c.Workers }),
	"http.timeout":    durationField(func(c *Config) *time.Duration { return &c.HTTP.Timeout }),
	"http.retries":    intField(func(c *Config) *int { return &c.HTTP.Retries }),
	"http.user_agent": stringField(func(c *Config) *string { return &c.HTTP.UserAgent }),
	"esa.base_url":    stringField(func(c *Config) *string { return &c.ESA.BaseURL }),
	"asf.base_url":    stringField(func(c *Config) *string { return &c.ASF.BaseURL }),
	"scihub.api_url":  stringField(func(c *Config) *string { return &c.Scihub.APIURL }),
	"scihub.user":     stringField(func(c *Config) *string { return &c.Scihub.User }),
	"scihub.password": {
		get: func(c *Config) string { return MaskPassword(c.Scihub.Password) },
		set: func(c *Config, v string) error { c.Scihub.Password = v; return nil },
	},
	"catalog.enabled": boolField(func(c *Config) *bool { return &c.Catalog.Enabled }),
	"catalog.path":    stringField(func(c *Config) *string { return &c.Catalog.Path }),
	"watch.debounce":  durationField(func(c *Config) *time.Duration { return &c.Watch.Debounce }),
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the display value of key. Passwords are masked.
func Get(cfg *Config, key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return f.get(cfg), nil
}

// Set parses value and stores it under key.
func Set(cfg *Config, key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := f.set(cfg, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// MaskPassword returns a masked version of a password for display.
func MaskPassword(password string) string {
	switch {
	case password == "":
		return "(not set)"
	case password == GuestPassword:
		return GuestPassword
	case len(password) <= 4:
		return "***"
	default:
		return password[:1] + "***" + password[len(password)-1:]
	}
}

// CredentialSource represents where the GNSS hub credentials were loaded from.
type CredentialSource string

const (
	CredentialSourceEnv    CredentialSource = "environment"
	CredentialSourceConfig CredentialSource = "config_file"
	CredentialSourceGuest  CredentialSource = "guest"
)

// ScihubCredentials returns the hub user and password, falling back to
// the guest account when either is empty.
func ScihubCredentials(cfg *Config) (user, password string) {
	if cfg != nil {
		user, password = cfg.Scihub.User, cfg.Scihub.Password
	}
	if user == "" || password == "" {
		return GuestUser, GuestPassword
	}
	return user, password
}

// GetCredentialSource reports where ScihubCredentials gets its values.
func GetCredentialSource(cfg *Config) CredentialSource {
	for _, name := range []string{"EOF_SCIHUB_USER", "SCIHUB_USER"} {
		if os.Getenv(name) != "" {
			return CredentialSourceEnv
		}
	}
	user, _ := ScihubCredentials(cfg)
	if user == GuestUser {
		return CredentialSourceGuest
	}
	return CredentialSourceConfig
}
