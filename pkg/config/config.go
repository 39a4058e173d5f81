package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Port         int           `default:"3000" validate:"min=1,max=65535"`
	Prefork      bool          `default:"false"`
	Origin       string        `default:"https://finance.yahoo.com" validate:"required,url"`
	Timeout      time.Duration `default:"20s" validate:"gt=0"`
	MaxBodyBytes int64         `default:"10485760" validate:"gt=0"`

	RulesetPath   string
	FilterMode    string `default:"remove" validate:"oneof=remove hide"`
	StripScripts  bool   `default:"true"`
	SetCSP        bool   `default:"true"`
	StrictTickers bool   `default:"false"`

	ExposeRuleset  bool `default:"true"`
	MetricsEnabled bool `default:"true"`

	LogLevel  string `default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	LogFormat string `default:"auto" validate:"oneof=auto json console"`
	LogURLs   bool   `default:"false"`
}

// Load applies defaults, then environment overrides, then validates.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with an injectable environment lookup.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	var errs []string
	env := envReader{lookup: lookup, errs: &errs}

	env.intVar("PORT", &c.Port)
	env.boolVar("PREFORK", &c.Prefork)
	env.strVar("UPSTREAM_ORIGIN", &c.Origin)
	env.durationVar("UPSTREAM_TIMEOUT", &c.Timeout)
	env.int64Var("MAX_BODY_BYTES", &c.MaxBodyBytes)
	env.strVar("RULESET", &c.RulesetPath)
	env.strVar("FILTER_MODE", &c.FilterMode)
	env.boolVar("STRIP_SCRIPTS", &c.StripScripts)
	env.boolVar("SET_CSP", &c.SetCSP)
	env.boolVar("STRICT_TICKERS", &c.StrictTickers)
	env.boolVar("EXPOSE_RULESET", &c.ExposeRuleset)
	env.boolVar("METRICS_ENABLED", &c.MetricsEnabled)
	env.strVar("LOG_LEVEL", &c.LogLevel)
	env.strVar("LOG_FORMAT", &c.LogFormat)
	env.boolVar("LOG_URLS", &c.LogURLs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("parse environment: %s", strings.Join(errs, "; "))
	}

	c.Origin = strings.TrimSuffix(c.Origin, "/")
	c.FilterMode = strings.ToLower(c.FilterMode)
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Addr is the listen address for the configured port.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   *[]string
}

func (e envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e envReader) fail(key, v string, err error) {
	*e.errs = append(*e.errs, fmt.Sprintf("%s=%q: %v", key, v, err))
}

func (e envReader) strVar(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e envReader) intVar(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e envReader) int64Var(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e envReader) boolVar(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

// durationVar accepts Go durations ("20s") or bare seconds ("20").
func (e envReader) durationVar(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}
