package config

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. RELAYLOAD_TIMEOUT or RELAYLOAD_TRACING_ENDPOINT.
const EnvPrefix = "RELAYLOAD"

// settingKeys are the keys bound to environment variables.
var settingKeys = []string{
	"endpoint", "count", "duration",
	"via_proxy", "direct_addr", "proxy_addr",
	"method", "body", "body_file", "timeout", "no_keepalive",
	"tick", "max_batch", "max_inflight", "drain",
	"output", "quiet", "log_errors", "dashboard",
	"yes", "confirm_above",
	"tracing.endpoint", "tracing.protocol", "tracing.service_name",
	"tracing.sample_rate", "tracing.insecure", "tracing.propagate",
}

// Loader builds a Config from a config file, RELAYLOAD_* environment
// variables, flags and positional arguments, in increasing precedence.
type Loader struct{}

// ErrHelpRequested is returned when the user asked for usage information.
var ErrHelpRequested = errors.New("help requested")

func NewLoader() *Loader {
	return &Loader{}
}

// Load parses a raw argument list.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	return l.LoadFlags(flagSet, flagSet.Args())
}

// LoadFlags builds a Config from an already parsed flag set, as handed over by
// a cobra command, and its positional arguments.
func (Loader) LoadFlags(fs *pflag.FlagSet, positional []string) (*Config, error) {
	configPath := ""
	if f := fs.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for _, key := range settingKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	settings := v.AllSettings()
	if err := applyConfigSettings(&cfg, settings); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, fs); err != nil {
		return nil, err
	}
	if err := applyPositional(&cfg, positional); err != nil {
		return nil, err
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	if _, fromSettings := lookupSetting(settings, "body"); cfg.Method == http.MethodGet && !fromSettings && !fs.Changed("body") {
		// GET carries no form body unless one was asked for.
		cfg.Body = ""
	}
	cfg.BodyFile = strings.TrimSpace(cfg.BodyFile)
	cfg.Endpoint = EndpointType(strings.ToLower(strings.TrimSpace(string(cfg.Endpoint))))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	return &cfg, nil
}

// applyPositional handles "<sync|async> <count> [duration-seconds]".
func applyPositional(cfg *Config, args []string) error {
	if len(args) > 3 {
		return ValidationError{issues: []string{
			fmt.Sprintf("expected at most 3 arguments, got %d (usage: %s)", len(args), usageLine),
		}}
	}
	if len(args) >= 1 {
		cfg.Endpoint = EndpointType(args[0])
	}
	if len(args) >= 2 {
		n, err := strconv.Atoi(strings.TrimSpace(args[1]))
		if err != nil {
			return ValidationError{issues: []string{fmt.Sprintf("count %q must be a positive integer", args[1])}}
		}
		cfg.Count = n
	}
	if len(args) == 3 {
		d, err := parseSeconds(args[2])
		if err != nil || d <= 0 {
			return ValidationError{issues: []string{fmt.Sprintf("duration %q must be a positive number of seconds", args[2])}}
		}
		cfg.Duration = d
	}
	return nil
}

func parseSeconds(raw string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("invalid seconds %q", raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// applyConfigSettings applies file and environment settings to cfg.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	var err error
	str := func(dst *string, keys ...string) {
		if err != nil {
			return
		}
		if raw, ok := lookupSetting(settings, keys...); ok {
			var val string
			if val, err = asString(raw); err != nil {
				err = fmt.Errorf("%s: %w", keys[0], err)
				return
			}
			*dst = strings.TrimSpace(val)
		}
	}
	integer := func(dst *int, keys ...string) {
		if err != nil {
			return
		}
		if raw, ok := lookupSetting(settings, keys...); ok {
			var val int
			if val, err = asInt(raw); err != nil {
				err = fmt.Errorf("%s: %w", keys[0], err)
				return
			}
			*dst = val
		}
	}
	boolean := func(dst *bool, keys ...string) {
		if err != nil {
			return
		}
		if raw, ok := lookupSetting(settings, keys...); ok {
			var val bool
			if val, err = asBool(raw); err != nil {
				err = fmt.Errorf("%s: %w", keys[0], err)
				return
			}
			*dst = val
		}
	}
	duration := func(dst *time.Duration, keys ...string) {
		if err != nil {
			return
		}
		if raw, ok := lookupSetting(settings, keys...); ok {
			var val time.Duration
			if val, err = asDuration(raw); err != nil {
				err = fmt.Errorf("%s: %w", keys[0], err)
				return
			}
			*dst = val
		}
	}

	var endpoint, output string
	str(&endpoint, "endpoint", "endpoint_type", "endpoint-type")
	integer(&cfg.Count, "count")
	duration(&cfg.Duration, "duration")
	boolean(&cfg.ViaProxy, "via_proxy", "via-proxy")
	str(&cfg.DirectAddr, "direct_addr", "direct-addr")
	str(&cfg.ProxyAddr, "proxy_addr", "proxy-addr")
	str(&cfg.Method, "method")
	duration(&cfg.Timeout, "timeout")
	boolean(&cfg.NoKeepAlive, "no_keepalive", "no-keepalive")
	duration(&cfg.Tick, "tick")
	integer(&cfg.MaxBatch, "max_batch", "max-batch")
	integer(&cfg.MaxInFlight, "max_inflight", "max-inflight")
	duration(&cfg.Drain, "drain")
	str(&output, "output")
	boolean(&cfg.Quiet, "quiet")
	boolean(&cfg.LogErrors, "log_errors", "log-errors")
	boolean(&cfg.Dashboard, "dashboard")
	boolean(&cfg.AssumeYes, "yes")
	integer(&cfg.ConfirmAbove, "confirm_above", "confirm-above")
	if err != nil {
		return err
	}
	if endpoint != "" {
		cfg.Endpoint = EndpointType(endpoint)
	}
	if output != "" {
		cfg.Output = OutputFormat(strings.ToLower(output))
	}

	// The body is not trimmed, and a body file replaces the default form body.
	if raw, ok := lookupSetting(settings, "body"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("body: %w", err)
		}
		cfg.Body = val
	} else if _, ok := lookupSetting(settings, "body_file", "body-file", "bodyfile"); ok {
		cfg.Body = ""
	}
	str(&cfg.BodyFile, "body_file", "body-file", "bodyfile")
	if err != nil {
		return err
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	return nil
}

func applyTracingSettings(tc *TracingConfig, value interface{}) error {
	settings, err := toStringKeyMap(value, true)
	if err != nil {
		return err
	}

	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return nil
}
