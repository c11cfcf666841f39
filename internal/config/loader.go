package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/pagelake/internal/datalake"
	"github.com/rpattn/pagelake/internal/db"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendLocal = "local"
	BackendMinio = "minio"
)

// Config is the full service configuration.
type Config struct {
	Database   db.Config
	DataLake   DataLakeConfig
	Partners   map[int]string
	Fetch      FetchConfig
	Server     ServerConfig
	Migrations MigrationsConfig
}

type DataLakeConfig struct {
	Backend      string
	RawDir       string
	ProcessedDir string
	Minio        datalake.MinioConfig
}

type FetchConfig struct {
	Timeout time.Duration
	// APIKey is appended as the key query parameter of partner URLs that carry none.
	APIKey string
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

type MigrationsConfig struct {
	Enabled bool
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()
	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)

	v.SetDefault("datalake.backend", BackendLocal)
	v.SetDefault("datalake.raw_dir", "data_lake_files")
	v.SetDefault("datalake.processed_dir", "data_lake_processed")
	v.SetDefault("datalake.minio.endpoint", "localhost:9000")
	v.SetDefault("datalake.minio.access_key", "")
	v.SetDefault("datalake.minio.secret_key", "")
	v.SetDefault("datalake.minio.bucket", "pages")
	v.SetDefault("datalake.minio.prefix", "")
	v.SetDefault("datalake.minio.use_ssl", false)

	v.SetDefault("partners", map[string]string{
		"1": "https://api.mockaroo.com/api/d8c941d0?count=1000",
		"2": "https://api.mockaroo.com/api/d216f630?count=1000",
	})
	v.SetDefault("fetch.timeout", "60s")
	v.SetDefault("fetch.api_key", "")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("migrations.enabled", true)
}

// Load reads an optional .env file, then an optional config.yaml under
// configPath. PAGELAKE_ prefixed environment variables override both, with
// dots replaced by underscores (PAGELAKE_DATABASE_HOST).
func Load(configPath string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("PAGELAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("[config] no config.yaml found in %s, using defaults and env vars", configPath)
	} else {
		log.Printf("[config] loaded %s", v.ConfigFileUsed())
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		DataLake: DataLakeConfig{
			Backend:      strings.ToLower(strings.TrimSpace(v.GetString("datalake.backend"))),
			RawDir:       v.GetString("datalake.raw_dir"),
			ProcessedDir: v.GetString("datalake.processed_dir"),
			Minio: datalake.MinioConfig{
				Endpoint:  v.GetString("datalake.minio.endpoint"),
				AccessKey: v.GetString("datalake.minio.access_key"),
				SecretKey: v.GetString("datalake.minio.secret_key"),
				UseSSL:    v.GetBool("datalake.minio.use_ssl"),
				Bucket:    v.GetString("datalake.minio.bucket"),
				Prefix:    v.GetString("datalake.minio.prefix"),
			},
		},
		Fetch: FetchConfig{
			Timeout: v.GetDuration("fetch.timeout"),
			APIKey:  v.GetString("fetch.api_key"),
		},
		Server: ServerConfig{
			Addr:           v.GetString("server.addr"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Migrations: MigrationsConfig{Enabled: v.GetBool("migrations.enabled")},
	}

	switch cfg.DataLake.Backend {
	case BackendLocal, BackendMinio:
	default:
		return Config{}, fmt.Errorf("unknown datalake backend %q", cfg.DataLake.Backend)
	}
	if cfg.Fetch.Timeout <= 0 {
		return Config{}, fmt.Errorf("fetch.timeout must be positive, got %s", cfg.Fetch.Timeout)
	}

	partners, err := parsePartners(v.GetStringMapString("partners"), cfg.Fetch.APIKey)
	if err != nil {
		return Config{}, err
	}
	cfg.Partners = partners

	return cfg, nil
}

func parsePartners(raw map[string]string, apiKey string) (map[int]string, error) {
	partners := make(map[int]string, len(raw))
	for key, endpoint := range raw {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid partner platform id %q", key)
		}

		parsed, err := url.Parse(strings.TrimSpace(endpoint))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid endpoint for partner %d: %q", id, endpoint)
		}
		if apiKey != "" {
			query := parsed.Query()
			if query.Get("key") == "" {
				query.Set("key", apiKey)
				parsed.RawQuery = query.Encode()
			}
		}
		partners[id] = parsed.String()
	}
	return partners, nil
}
