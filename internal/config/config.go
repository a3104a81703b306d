package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/picklr-io/vpnpilot/internal/gates"
	"github.com/picklr-io/vpnpilot/internal/vpn"
)

// Environment variable names.
const (
	EnvEnvironment           = "ENVIRONMENT"
	EnvRegion                = "AWS_REGION"
	EnvIdleMinutes           = "IDLE_MINUTES"
	EnvCooldownMinutes       = "COOLDOWN_MINUTES"
	EnvBusinessHours         = "BUSINESS_HOURS_PROTECTION"
	EnvBusinessTimezone      = "BUSINESS_HOURS_TIMEZONE"
	EnvBusinessStart         = "BUSINESS_HOURS_START"
	EnvBusinessEnd           = "BUSINESS_HOURS_END"
	EnvBusinessDays          = "BUSINESS_HOURS_DAYS"
	EnvAutoOpenDays          = "AUTO_OPEN_DAYS"
	EnvCostTracking          = "COST_TRACKING_ENABLED"
	EnvPeerEndpoint          = "PEER_API_ENDPOINT"
	EnvPeerAPIKey            = "PEER_API_KEY"
	EnvPeerAPIKeySecretID    = "PEER_API_KEY_SECRET_ID"
	EnvPeerAPIKeySecretField = "PEER_API_KEY_SECRET_FIELD"
	EnvSourceAccount         = "SOURCE_ACCOUNT_ID"
	EnvControlAPIKey         = "CONTROL_API_KEY"
	EnvAlertTopicARN         = "ALERT_TOPIC_ARN"
	EnvKMSKeyID              = "PARAMETER_KMS_KEY_ID"
	EnvSlackSigningSecret    = "SLACK_SIGNING_SECRET"
	EnvProductionUsers       = "PRODUCTION_AUTHORIZED_USERS"
	EnvAdminUsers            = "ADMIN_AUTHORIZED_USERS"
	EnvLogLevel              = "LOG_LEVEL"
)

// Defaults.
const (
	DefaultIdleMinutes     = 60
	DefaultCooldownMinutes = 30
	DefaultDays            = "1-5"
)

// Config is the runtime configuration of every entry point.
type Config struct {
	Environment string `validate:"required,oneof=staging production"`
	Region      string

	IdleMinutes     int `validate:"gte=1,lte=1440"`
	CooldownMinutes int `validate:"gte=0,ltefield=IdleMinutes"`

	BusinessHoursEnabled  bool
	BusinessHoursTimezone string
	BusinessHoursStart    int            `validate:"gte=0,lte=23"`
	BusinessHoursEnd      int            `validate:"gte=1,lte=24,gtfield=BusinessHoursStart"`
	BusinessDays          []time.Weekday `validate:"dive,gte=0,lte=6"`
	AutoOpenDays          []time.Weekday `validate:"dive,gte=0,lte=6"`

	CostTracking bool

	PeerEndpoint          string `validate:"omitempty,url"`
	PeerAPIKey            string
	PeerAPIKeySecretID    string
	PeerAPIKeySecretField string
	SourceAccount         string `validate:"omitempty,numeric,len=12"`
	ControlAPIKey         string

	AlertTopicARN      string `validate:"omitempty,startswith=arn:"`
	KMSKeyID           string
	SlackSigningSecret string

	ProductionUsers []string
	AdminUsers      []string

	LogLevel string `validate:"omitempty,oneof=debug info warn warning error"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LookupFunc reads one variable; os.LookupEnv in production.
type LookupFunc func(key string) (string, bool)

// FromEnv loads the configuration from the process environment.
func FromEnv() (*Config, error) {
	return Load(os.LookupEnv)
}

// Load reads and validates the configuration. Every violation is vpn.ErrConfig.
func Load(lookup LookupFunc) (*Config, error) {
	r := reader{lookup: lookup}
	cfg := &Config{
		Environment:           r.str(EnvEnvironment, ""),
		Region:                r.str(EnvRegion, ""),
		IdleMinutes:           r.int(EnvIdleMinutes, DefaultIdleMinutes),
		CooldownMinutes:       r.int(EnvCooldownMinutes, DefaultCooldownMinutes),
		BusinessHoursEnabled:  r.bool(EnvBusinessHours, true),
		BusinessHoursTimezone: r.str(EnvBusinessTimezone, "UTC"),
		BusinessHoursStart:    r.int(EnvBusinessStart, 9),
		BusinessHoursEnd:      r.int(EnvBusinessEnd, 18),
		BusinessDays:          r.days(EnvBusinessDays),
		AutoOpenDays:          r.days(EnvAutoOpenDays),
		CostTracking:          r.bool(EnvCostTracking, true),
		PeerEndpoint:          r.str(EnvPeerEndpoint, ""),
		PeerAPIKey:            r.str(EnvPeerAPIKey, ""),
		PeerAPIKeySecretID:    r.str(EnvPeerAPIKeySecretID, ""),
		PeerAPIKeySecretField: r.str(EnvPeerAPIKeySecretField, ""),
		SourceAccount:         r.str(EnvSourceAccount, ""),
		ControlAPIKey:         r.str(EnvControlAPIKey, ""),
		AlertTopicARN:         r.str(EnvAlertTopicARN, ""),
		KMSKeyID:              r.str(EnvKMSKeyID, ""),
		SlackSigningSecret:    r.str(EnvSlackSigningSecret, ""),
		ProductionUsers:       r.list(EnvProductionUsers),
		AdminUsers:            r.list(EnvAdminUsers),
		LogLevel:              r.str(EnvLogLevel, "info"),
	}
	if len(r.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", vpn.ErrConfig, errors.Join(r.errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies the struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", vpn.ErrConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", vpn.ErrConfig, err)
	}
	if c.PeerAPIKey != "" && c.PeerAPIKeySecretID != "" {
		return fmt.Errorf("%w: set only one of %s and %s", vpn.ErrConfig, EnvPeerAPIKey, EnvPeerAPIKeySecretID)
	}
	if _, ok := gates.ZoneOffset(c.BusinessHoursTimezone); !ok {
		return fmt.Errorf("%w: %s %q is not a supported timezone", vpn.ErrConfig, EnvBusinessTimezone, c.BusinessHoursTimezone)
	}
	return nil
}

func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.IdleMinutes) * time.Minute
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

func (c *Config) BusinessHours() gates.BusinessHours {
	return gates.BusinessHours{
		Enabled:   c.BusinessHoursEnabled,
		Timezone:  c.BusinessHoursTimezone,
		StartHour: c.BusinessHoursStart,
		EndHour:   c.BusinessHoursEnd,
		Days:      c.BusinessDays,
	}
}

func (c *Config) GateConfig() gates.Config {
	return gates.Config{Cooldown: c.Cooldown(), BusinessHours: c.BusinessHours()}
}

// PeerEnvironment is the environment reachable through PeerEndpoint.
func (c *Config) PeerEnvironment() string {
	if c.Environment == "production" {
		return "staging"
	}
	return "production"
}

// SecretSource resolves secrets by id.
type SecretSource interface {
	Secret(ctx context.Context, id, field string) (string, error)
}

// ResolvePeerAPIKey returns the literal key or reads it from the secret store.
func (c *Config) ResolvePeerAPIKey(ctx context.Context, src SecretSource) (string, error) {
	if c.PeerAPIKey != "" || c.PeerAPIKeySecretID == "" {
		return c.PeerAPIKey, nil
	}
	if src == nil {
		return "", fmt.Errorf("%w: %s set but no secret source", vpn.ErrConfig, EnvPeerAPIKeySecretID)
	}
	key, err := src.Secret(ctx, c.PeerAPIKeySecretID, c.PeerAPIKeySecretField)
	if err != nil {
		return "", fmt.Errorf("%w: peer api key: %w", vpn.ErrConfig, err)
	}
	return key, nil
}

type reader struct {
	lookup LookupFunc
	errs   []error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (r *reader) days(key string) []time.Weekday {
	v := r.str(key, DefaultDays)
	days, err := gates.ParseDays(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
	}
	return days
}

func (r *reader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
