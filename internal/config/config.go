package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/byteflow-dev/byteflow/internal/errors"
	"github.com/byteflow-dev/byteflow/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "byteflow.json"

	// EnvFileName is the optional file of BYTEFLOW_* overrides next to it.
	EnvFileName = ".env"

	// DefaultAddr is the default server listen address.
	DefaultAddr = ":5100"

	// DefaultPath is the default WebSocket route.
	DefaultPath = "/ws"

	// DefaultURL is the default dial target.
	DefaultURL = "ws://127.0.0.1:5100/ws"
)

// Duration is a time.Duration written as a string such as "10s" in JSON.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Plain numbers are seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var secs float64
		if err := json.Unmarshal(b, &secs); err != nil {
			return fmt.Errorf("duration must be a string like \"10s\": %s", b)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config represents the complete byteflow.json configuration.
type Config struct {
	// Server contains `byteflow serve` settings.
	Server ServerConfig `json:"server"`

	// Client contains `byteflow dial` settings.
	Client ClientConfig `json:"client"`

	// Redis configures the packet cache. Empty Addr disables it.
	Redis RedisConfig `json:"redis,omitzero"`

	// Storage configures S3 packet storage. Empty Bucket disables it.
	Storage StorageConfig `json:"storage,omitzero"`

	Log LogConfig `json:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains WebSocket server settings.
type ServerConfig struct {
	Addr              string   `json:"addr,omitempty"`
	Path              string   `json:"path,omitempty"`
	HeartbeatInterval Duration `json:"heartbeatInterval"`
	MaxConnections    int      `json:"maxConnections,omitempty"`

	// RateLimit is upgrade attempts per second per client IP.
	RateLimit float64 `json:"rateLimit,omitempty"`
	RateBurst int     `json:"rateBurst,omitempty"`

	// JWTSecret enables bearer-token authentication of upgrades. Prefer
	// BYTEFLOW_JWT_SECRET over writing it to the file.
	JWTSecret string `json:"jwtSecret,omitempty"`

	TrustedProxies  []string `json:"trustedProxies,omitempty"`
	ShutdownTimeout Duration `json:"shutdownTimeout"`
}

// ClientConfig contains dial settings.
type ClientConfig struct {
	URL               string   `json:"url,omitempty"`
	HeartbeatInterval Duration `json:"heartbeatInterval"`
	SkipProbe         bool     `json:"skipProbe,omitempty"`
}

// RedisConfig contains cache connection settings.
type RedisConfig struct {
	Addr      string `json:"addr,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Databases []int  `json:"databases,omitempty"`
}

// StorageConfig contains S3 settings.
type StorageConfig struct {
	Bucket string `json:"bucket,omitempty"`
	Region string `json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint, e.g. for MinIO.
	Endpoint string `json:"endpoint,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// LogConfig controls the default slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              DefaultAddr,
			Path:              DefaultPath,
			HeartbeatInterval: Duration(10 * time.Second),
			RateBurst:         20,
			ShutdownTimeout:   Duration(30 * time.Second),
		},
		Client: ClientConfig{
			URL:               DefaultURL,
			HeartbeatInterval: Duration(10 * time.Second),
		},
		Redis: RedisConfig{
			Databases: []int{0},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads byteflow.json and .env from dir. Both files are optional: a
// directory without them yields the defaults plus process environment
// overrides.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	cfg, err := LoadFile(configPath)
	if stderrors.Is(err, fs.ErrNotExist) {
		cfg = New()
		cfg.configPath = configPath
	} else if err != nil {
		return nil, err
	}

	env, err := readEnvFile(filepath.Join(dir, EnvFileName))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookupWith(env)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// exampleConfig is shown under byteflow.json parse errors.
const exampleConfig = `{
  "server": {"addr": ":5100", "path": "/ws", "heartbeatInterval": "30s"},
  "client": {"url": "ws://localhost:5100/ws"}
}`

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("BF103").
				WithDetail("No byteflow.json found in " + filepath.Dir(path)).
				Wrap(err)
		}
		return nil, errors.New("BF100").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		e := errors.New("BF100").WithExample(exampleConfig).Wrap(err)
		var syntaxErr *json.SyntaxError
		if stderrors.As(err, &syntaxErr) {
			e.WithOffset(path, data, syntaxErr.Offset)
		}
		var typeErr *json.UnmarshalTypeError
		if stderrors.As(err, &typeErr) {
			e.WithOffset(path, data, typeErr.Offset)
		}
		return nil, e
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New("BF102").WithDetail("Failed to parse " + path).Wrap(err)
	}
	return env, nil
}

// lookupWith resolves keys from the process environment first, then from
// file. A set process variable wins, as with godotenv.Load.
func lookupWith(file map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}
}

// ApplyEnv overrides fields from BYTEFLOW_* variables resolved by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid integer value for %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid number value for %s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid duration value for %s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("BYTEFLOW_ADDR", &c.Server.Addr)
	str("BYTEFLOW_PATH", &c.Server.Path)
	dur("BYTEFLOW_HEARTBEAT_INTERVAL", &c.Server.HeartbeatInterval)
	num("BYTEFLOW_MAX_CONNECTIONS", &c.Server.MaxConnections)
	float("BYTEFLOW_RATE_LIMIT", &c.Server.RateLimit)
	num("BYTEFLOW_RATE_BURST", &c.Server.RateBurst)
	str("BYTEFLOW_JWT_SECRET", &c.Server.JWTSecret)
	list("BYTEFLOW_TRUSTED_PROXIES", &c.Server.TrustedProxies)
	dur("BYTEFLOW_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	str("BYTEFLOW_URL", &c.Client.URL)

	str("BYTEFLOW_REDIS_ADDR", &c.Redis.Addr)
	str("BYTEFLOW_REDIS_USERNAME", &c.Redis.Username)
	str("BYTEFLOW_REDIS_PASSWORD", &c.Redis.Password)
	if v, ok := lookup("BYTEFLOW_REDIS_DATABASES"); ok && v != "" {
		var dbs []int
		for _, s := range splitList(v) {
			n, err := strconv.Atoi(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid database index in BYTEFLOW_REDIS_DATABASES: %q", s))
				continue
			}
			dbs = append(dbs, n)
		}
		c.Redis.Databases = dbs
	}

	str("BYTEFLOW_S3_BUCKET", &c.Storage.Bucket)
	str("BYTEFLOW_S3_REGION", &c.Storage.Region)
	str("BYTEFLOW_S3_ENDPOINT", &c.Storage.Endpoint)
	str("BYTEFLOW_S3_PREFIX", &c.Storage.Prefix)

	str("BYTEFLOW_LOG_LEVEL", &c.Log.Level)
	str("BYTEFLOW_LOG_FORMAT", &c.Log.Format)

	if len(errs) > 0 {
		return errors.New("BF101").Wrap(stderrors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("BF100").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("BF100").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultPath
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 20
	}
	if c.Client.URL == "" {
		c.Client.URL = DefaultURL
	}
	if len(c.Redis.Databases) == 0 {
		c.Redis.Databases = []int{0}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var problems []string
	if !strings.HasPrefix(c.Server.Path, "/") {
		problems = append(problems, fmt.Sprintf("server.path %q must start with /", c.Server.Path))
	}
	if c.Server.HeartbeatInterval < 0 {
		problems = append(problems, "server.heartbeatInterval must not be negative")
	}
	if c.Server.MaxConnections < 0 {
		problems = append(problems, "server.maxConnections must not be negative")
	}
	if c.Server.RateLimit < 0 {
		problems = append(problems, "server.rateLimit must not be negative")
	}
	if c.Client.HeartbeatInterval < 0 {
		problems = append(problems, "client.heartbeatInterval must not be negative")
	}
	for _, db := range c.Redis.Databases {
		if db < 0 || db > 15 {
			problems = append(problems, fmt.Sprintf("redis database %d is outside 0-15", db))
		}
	}
	if _, err := c.Log.level(); err != nil {
		problems = append(problems, err.Error())
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", f))
	}

	if len(problems) > 0 {
		return errors.New("BF101").WithDetail(strings.Join(problems, "; "))
	}
	return nil
}

// ServerOptions converts the server section for server.New.
func (c *Config) ServerOptions() *server.ServerConfig {
	cfg := server.DefaultServerConfig()
	cfg.Address = c.Server.Addr
	cfg.Path = c.Server.Path
	cfg.HeartbeatInterval = time.Duration(c.Server.HeartbeatInterval)
	cfg.MaxConnections = c.Server.MaxConnections
	cfg.RateLimit = c.Server.RateLimit
	cfg.RateBurst = c.Server.RateBurst
	cfg.TrustedProxies = c.Server.TrustedProxies
	if c.Server.JWTSecret != "" {
		cfg.JWTSecret = []byte(c.Server.JWTSecret)
	}
	if c.Server.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = time.Duration(c.Server.ShutdownTimeout)
	}
	return cfg
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q must be debug, info, warn or error", l.Level)
	}
	return level, nil
}

// NewLogger builds a logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}
