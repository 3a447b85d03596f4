package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
// Resolution order: defaults -> YAML file -> .env files -> environment.
type Config struct {
	Env string

	Address      string
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LogLevel     string

	DatabaseDriver string
	DatabaseURL    string
	MaxDBConns     int

	RedisURL       string
	LookupCacheTTL time.Duration
	LookupTimeout  time.Duration
	CNPJBaseURL    string
	CEPBaseURL     string

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string
	JWTIssuer string

	SeedSourceURL string
	XSDSchemaPath string
	// TrustRootsPath is a PEM file or directory with the ICP-Brasil chain
	TrustRootsPath string
	OCSPSoftFail   bool

	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string
}

// configFile mirrors the YAML schema of configs/*.yaml
type configFile struct {
	Env    string `yaml:"env"`
	Server struct {
		Address      string `yaml:"address"`
		Debug        bool   `yaml:"debug"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		LogLevel     string `yaml:"log_level"`
	} `yaml:"server"`
	Database struct {
		Driver   string `yaml:"driver"`
		URL      string `yaml:"url"`
		MaxConns int    `yaml:"max_conns"`
	} `yaml:"database"`
	Lookup struct {
		RedisURL    string `yaml:"redis_url"`
		CacheTTL    string `yaml:"cache_ttl"`
		Timeout     string `yaml:"timeout"`
		CNPJBaseURL string `yaml:"cnpj_base_url"`
		CEPBaseURL  string `yaml:"cep_base_url"`
	} `yaml:"lookup"`
	Events struct {
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"events"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		JWTIssuer string `yaml:"jwt_issuer"`
	} `yaml:"auth"`
	Seed struct {
		SourceURL string `yaml:"source_url"`
	} `yaml:"seed"`
	Fiscal struct {
		XSDSchemaPath  string `yaml:"xsd_schema_path"`
		TrustRootsPath string `yaml:"trust_roots_path"`
		OCSPSoftFail   bool   `yaml:"ocsp_soft_fail"`
	} `yaml:"fiscal"`
	LLM struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"llm"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Env:            "development",
		Address:        ":8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   time.Minute,
		LogLevel:       "info",
		DatabaseDriver: "sqlite",
		DatabaseURL:    "fiscal.db",
		MaxDBConns:     10,
		LookupCacheTTL: 24 * time.Hour,
		LookupTimeout:  10 * time.Second,
		CNPJBaseURL:    "https://brasilapi.com.br/api/cnpj/v1",
		CEPBaseURL:     "https://viacep.com.br/ws",
		KafkaTopic:     "fiscal.documents",
		JWTIssuer:      "fiscal-manager",
	}
}

// Load resolves the configuration. path may be empty; a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	if err := loadDotEnv(envName(cfg.Env)); err != nil {
		return cfg, err
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func envName(fallback string) string {
	if env := os.Getenv("FISCAL_ENV"); env != "" {
		return env
	}
	return fallback
}

// loadDotEnv loads .env.<env> then .env; variables already set win.
func loadDotEnv(env string) error {
	for _, name := range []string{".env." + env, ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.Env, f.Env)
	setString(&cfg.Address, f.Server.Address)
	cfg.Debug = cfg.Debug || f.Server.Debug
	setString(&cfg.LogLevel, f.Server.LogLevel)
	setString(&cfg.DatabaseDriver, f.Database.Driver)
	setString(&cfg.DatabaseURL, f.Database.URL)
	if f.Database.MaxConns > 0 {
		cfg.MaxDBConns = f.Database.MaxConns
	}
	setString(&cfg.RedisURL, f.Lookup.RedisURL)
	setString(&cfg.CNPJBaseURL, f.Lookup.CNPJBaseURL)
	setString(&cfg.CEPBaseURL, f.Lookup.CEPBaseURL)
	if len(f.Events.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Events.KafkaBrokers
	}
	setString(&cfg.KafkaTopic, f.Events.KafkaTopic)
	setString(&cfg.JWTSecret, f.Auth.JWTSecret)
	setString(&cfg.JWTIssuer, f.Auth.JWTIssuer)
	setString(&cfg.SeedSourceURL, f.Seed.SourceURL)
	setString(&cfg.XSDSchemaPath, f.Fiscal.XSDSchemaPath)
	setString(&cfg.TrustRootsPath, f.Fiscal.TrustRootsPath)
	cfg.OCSPSoftFail = cfg.OCSPSoftFail || f.Fiscal.OCSPSoftFail
	setString(&cfg.LLMAPIKey, f.LLM.APIKey)
	setString(&cfg.LLMBaseURL, f.LLM.BaseURL)
	setString(&cfg.LLMModel, f.LLM.Model)

	durations := []struct {
		dst *time.Duration
		raw string
		key string
	}{
		{&cfg.ReadTimeout, f.Server.ReadTimeout, "server.read_timeout"},
		{&cfg.WriteTimeout, f.Server.WriteTimeout, "server.write_timeout"},
		{&cfg.LookupCacheTTL, f.Lookup.CacheTTL, "lookup.cache_ttl"},
		{&cfg.LookupTimeout, f.Lookup.Timeout, "lookup.timeout"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Env, os.Getenv("FISCAL_ENV"))
	setString(&cfg.Address, os.Getenv("FISCAL_ADDRESS"))
	setString(&cfg.LogLevel, os.Getenv("FISCAL_LOG_LEVEL"))
	setString(&cfg.DatabaseDriver, os.Getenv("FISCAL_DB_DRIVER"))
	setString(&cfg.DatabaseURL, os.Getenv("FISCAL_DB_URL"))
	setString(&cfg.RedisURL, os.Getenv("FISCAL_REDIS_URL"))
	setString(&cfg.CNPJBaseURL, os.Getenv("FISCAL_CNPJ_BASE_URL"))
	setString(&cfg.CEPBaseURL, os.Getenv("FISCAL_CEP_BASE_URL"))
	setString(&cfg.KafkaTopic, os.Getenv("FISCAL_KAFKA_TOPIC"))
	setString(&cfg.JWTSecret, os.Getenv("FISCAL_JWT_SECRET"))
	setString(&cfg.JWTIssuer, os.Getenv("FISCAL_JWT_ISSUER"))
	setString(&cfg.SeedSourceURL, os.Getenv("FISCAL_SEED_SOURCE_URL"))
	setString(&cfg.XSDSchemaPath, os.Getenv("FISCAL_XSD_SCHEMA_PATH"))
	setString(&cfg.TrustRootsPath, os.Getenv("FISCAL_TRUST_ROOTS"))
	setString(&cfg.LLMAPIKey, os.Getenv("LLM_API_KEY"))
	setString(&cfg.LLMBaseURL, os.Getenv("LLM_BASE_URL"))
	setString(&cfg.LLMModel, os.Getenv("LLM_MODEL"))

	if raw := os.Getenv("FISCAL_KAFKA_BROKERS"); raw != "" {
		cfg.KafkaBrokers = splitList(raw)
	}
	if raw := os.Getenv("FISCAL_DEBUG"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse FISCAL_DEBUG: %w", err)
		}
		cfg.Debug = v
	}
	if raw := os.Getenv("FISCAL_OCSP_SOFT_FAIL"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse FISCAL_OCSP_SOFT_FAIL: %w", err)
		}
		cfg.OCSPSoftFail = v
	}
	if raw := os.Getenv("FISCAL_DB_MAX_CONNS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse FISCAL_DB_MAX_CONNS: %w", err)
		}
		cfg.MaxDBConns = v
	}
	if raw := os.Getenv("FISCAL_LOOKUP_CACHE_TTL"); raw != "" {
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse FISCAL_LOOKUP_CACHE_TTL: %w", err)
		}
		cfg.LookupCacheTTL = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
