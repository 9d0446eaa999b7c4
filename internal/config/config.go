package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for mindcare.
type Config struct {
	DeviceID     string             `toml:"device_id"`
	BaseDir      string             `toml:"base_dir"`
	LogDir       string             `toml:"log_dir"`
	API          APIConfig          `toml:"api"`
	Database     DatabaseConfig     `toml:"database"`
	BlobStore    BlobStoreConfig    `toml:"blob_store"`
	Sync         SyncConfig         `toml:"sync"`
	Cache        CacheConfig        `toml:"cache"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
}

// Duration is a time.Duration written as a string such as "5m" or "1s".
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// APIConfig describes the remote REST backend.
type APIConfig struct {
	BaseURL string   `toml:"base_url"`
	Token   string   `toml:"token,omitempty"`
	Timeout Duration `toml:"timeout"`

	// RateLimit caps outgoing requests per second. Zero disables the limit.
	RateLimit float64 `toml:"rate_limit,omitempty"`
	Burst     int     `toml:"burst,omitempty"`
}

// DatabaseConfig represents configuration for the local database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// BlobStoreConfig represents configuration for the media blob store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BlobStoreConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket     string   `toml:"s3_bucket,omitempty"`
	S3Prefix     string   `toml:"s3_prefix,omitempty"`
	S3Region     string   `toml:"s3_region,omitempty"`
	S3Endpoint   string   `toml:"s3_endpoint,omitempty"`
	S3PathStyle  bool     `toml:"s3_path_style,omitempty"`
	S3PresignTTL Duration `toml:"s3_presign_ttl,omitempty"`

	// Static credentials. When empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// SyncConfig controls screening sync and queue replay.
type SyncConfig struct {
	Interval       Duration `toml:"interval"`
	ReconnectDelay Duration `toml:"reconnect_delay"`
	MaxRetries     int      `toml:"max_retries"`

	// ReplayRate caps queue replays per second. Zero disables pacing.
	ReplayRate float64 `toml:"replay_rate,omitempty"`
}

// CacheConfig controls resource, media and questionnaire caching.
type CacheConfig struct {
	CacheFirst         bool     `toml:"cache_first"`
	NetworkTimeout     Duration `toml:"network_timeout"`
	ResourceMaxAge     Duration `toml:"resource_max_age"`
	MediaMaxAge        Duration `toml:"media_max_age"`
	QuestionsTTL       Duration `toml:"questions_ttl"`
	PreloadConcurrency int      `toml:"preload_concurrency"`
}

// ConnectivityConfig controls how reachability of the backend is detected.
type ConnectivityConfig struct {
	ProbeInterval Duration `toml:"probe_interval"`
	ProbeTimeout  Duration `toml:"probe_timeout"`
	ProbePath     string   `toml:"probe_path"`
}

// NewConfig creates a new Config with the provided values and default settings.
func NewConfig(deviceID, baseDir string) *Config {
	return &Config{
		DeviceID: deviceID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: Duration{30 * time.Second},
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		BlobStore: BlobStoreConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "media"),
		},
		Sync: SyncConfig{
			Interval:       Duration{5 * time.Minute},
			ReconnectDelay: Duration{time.Second},
			MaxRetries:     3,
			ReplayRate:     5,
		},
		Cache: CacheConfig{
			NetworkTimeout:     Duration{5 * time.Second},
			ResourceMaxAge:     Duration{7 * 24 * time.Hour},
			MediaMaxAge:        Duration{30 * 24 * time.Hour},
			QuestionsTTL:       Duration{24 * time.Hour},
			PreloadConcurrency: 4,
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: Duration{30 * time.Second},
			ProbeTimeout:  Duration{5 * time.Second},
			ProbePath:     "/health",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// Save overwrites the config file at path.
func Save(path string, cfg *Config) error {
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}
