// Package config loads the appext command configuration from defaults, an
// optional YAML file, APPEXT_* environment variables and command flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appext "github.com/masegraye/appext-go"
	"github.com/masegraye/appext-go/convert"
)

// EnvPrefix prefixes every environment variable: target.connection is
// read from APPEXT_TARGET_CONNECTION.
const EnvPrefix = "APPEXT"

// Connector kinds.
const (
	ConnectorGateway = "gateway"
	ConnectorCOM     = "com"
	ConnectorMemory  = "memory"
)

// Log formats.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config is the full command configuration.
type Config struct {
	// Connector selects how host instances are reached.
	Connector string `mapstructure:"connector"`

	Target  TargetConfig  `mapstructure:"target"`
	Gateway GatewayConfig `mapstructure:"gateway"`

	// SafeMode is "true", "false", a profile name, or empty to leave the
	// host record alone.
	SafeMode        string `mapstructure:"safe_mode"`
	SeverityPattern string `mapstructure:"severity_pattern"`
	StoredSuffix    string `mapstructure:"stored_suffix"`

	Serve    ServeConfig    `mapstructure:"serve"`
	Designer DesignerConfig `mapstructure:"designer"`
	Log      LogConfig      `mapstructure:"log"`
}

// TargetConfig names the host instance to work on.
type TargetConfig struct {
	Name       string `mapstructure:"name"`
	Connection string `mapstructure:"connection"`
}

// GatewayConfig locates a remote gateway.
type GatewayConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`

	// Retries is the number of attempts of read-only calls; 1 or less
	// disables retries.
	Retries int `mapstructure:"retries"`
}

// ServeConfig configures "appext serve".
type ServeConfig struct {
	Addr  string `mapstructure:"addr"`
	Token string `mapstructure:"token"`

	// Connector is the local connector the gateway exposes: com or memory.
	Connector string `mapstructure:"connector"`
}

// DesignerConfig configures the converter's temporary instances.
type DesignerConfig struct {
	// Platforms lists installed platform executables. A list rather than a
	// map keeps dotted versions from being split into nested keys.
	Platforms     []Platform `mapstructure:"platforms"`
	TempDir       string     `mapstructure:"temp_dir"`
	ExtensionName string     `mapstructure:"extension_name"`
}

// Platform is one installed platform version.
type Platform struct {
	Version string `mapstructure:"version"`
	Path    string `mapstructure:"path"`
}

// PlatformMap returns the platforms keyed by version.
func (c DesignerConfig) PlatformMap() map[string]string {
	m := make(map[string]string, len(c.Platforms))
	for _, p := range c.Platforms {
		m[p.Version] = p.Path
	}
	return m
}

// LogConfig configures the command logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Connector:       ConnectorGateway,
		Target:          TargetConfig{Name: "default"},
		Gateway:         GatewayConfig{URL: "http://localhost:8090", Retries: 3},
		SafeMode:        "true",
		SeverityPattern: appext.DefaultSeverityPattern,
		StoredSuffix:    appext.DefaultStoredDataSuffix,
		Serve:           ServeConfig{Addr: ":8090", Connector: ConnectorCOM},
		Designer:        DesignerConfig{ExtensionName: convert.DefaultExtensionName},
		Log:             LogConfig{Level: "info", Format: LogFormatConsole},
	}
}

// Load reads the configuration. path is an optional YAML file; flags maps
// configuration keys to the command flags that override them.
func Load(path string, flags map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("connector", d.Connector)
	v.SetDefault("target.name", d.Target.Name)
	v.SetDefault("target.connection", d.Target.Connection)
	v.SetDefault("gateway.url", d.Gateway.URL)
	v.SetDefault("gateway.token", d.Gateway.Token)
	v.SetDefault("gateway.retries", d.Gateway.Retries)
	v.SetDefault("safe_mode", d.SafeMode)
	v.SetDefault("severity_pattern", d.SeverityPattern)
	v.SetDefault("stored_suffix", d.StoredSuffix)
	v.SetDefault("serve.addr", d.Serve.Addr)
	v.SetDefault("serve.token", d.Serve.Token)
	v.SetDefault("serve.connector", d.Serve.Connector)
	v.SetDefault("designer.temp_dir", d.Designer.TempDir)
	v.SetDefault("designer.extension_name", d.Designer.ExtensionName)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", appext.ErrInvalidConfig, path, err)
		}
	}

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", appext.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validateConnector("connector", c.Connector, ConnectorGateway, ConnectorCOM, ConnectorMemory); err != nil {
		return err
	}
	if c.Connector == ConnectorGateway && c.Gateway.URL == "" {
		return fmt.Errorf("%w: gateway.url is required for the gateway connector", appext.ErrInvalidConfig)
	}
	if err := validateConnector("serve.connector", c.Serve.Connector, ConnectorCOM, ConnectorMemory); err != nil {
		return err
	}
	if _, err := c.SeverityMatcher(); err != nil {
		return err
	}
	if err := appext.ValidateSuffix(c.StoredSuffix); err != nil {
		return fmt.Errorf("%w: stored_suffix: %v", appext.ErrInvalidConfig, err)
	}
	for i, p := range c.Designer.Platforms {
		if p.Version == "" || p.Path == "" {
			return fmt.Errorf("%w: designer.platforms[%d] needs a version and a path", appext.ErrInvalidConfig, i)
		}
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", appext.ErrInvalidConfig, err)
	}
	if c.Log.Format != LogFormatJSON && c.Log.Format != LogFormatConsole {
		return fmt.Errorf("%w: log.format %q must be %q or %q", appext.ErrInvalidConfig, c.Log.Format, LogFormatJSON, LogFormatConsole)
	}
	return nil
}

func validateConnector(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q must be one of %s", appext.ErrInvalidConfig, key, value, strings.Join(allowed, ", "))
}

// TargetInstance returns the configured host instance.
func (c *Config) TargetInstance() appext.Target {
	return appext.Target{Name: c.Target.Name, Connection: c.Target.Connection}
}

// SeverityMatcher compiles severity_pattern.
func (c *Config) SeverityMatcher() (appext.SeverityMatcher, error) {
	m, err := appext.NewSeverityMatcher(c.SeverityPattern)
	if err != nil {
		return appext.SeverityMatcher{}, fmt.Errorf("%w: severity_pattern: %v", appext.ErrInvalidConfig, err)
	}
	return m, nil
}

// ExtensionOptions returns the appext options the configuration implies.
func (c *Config) ExtensionOptions(logger *zap.Logger) ([]appext.Option, error) {
	m, err := c.SeverityMatcher()
	if err != nil {
		return nil, err
	}
	return []appext.Option{
		appext.WithLogger(logger),
		appext.WithSeverityMatcher(m),
		appext.WithStoredDataSuffix(c.StoredSuffix),
	}, nil
}

// Logger builds a zap logger: JSON production output or human readable
// development output, at the configured level.
func (c LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log.level: %v", appext.ErrInvalidConfig, err)
	}

	zc := zap.NewProductionConfig()
	if c.Format == LogFormatConsole {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
