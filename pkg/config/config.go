// Package config assembles the memory service's runtime configuration from
// environment variables merged over an optional YAML file, with
// pick*(override, fallback, default) precedence throughout.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jetgogoing/sage-memory/pkg/dbpool"
)

// Config is the fully resolved, process-wide configuration.
type Config struct {
	DB dbpool.Config

	EmbeddingModel   string
	EmbeddingBaseURL string
	GeneratorModel   string
	GeneratorBaseURL string
	APIKey           string

	LogDir     string
	MaxResults int

	RequireAuth bool
	AuthToken   string

	Host string
	Port int

	JanitorExpr    string
	RetentionHours int
}

// fileConfig mirrors the optional YAML file's shape; every field is a
// fallback behind the matching environment variable.
type fileConfig struct {
	DB struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Name     string `yaml:"name"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"db"`
	EmbeddingModel   string `yaml:"embeddingModel"`
	EmbeddingBaseURL string `yaml:"embeddingBaseUrl"`
	GeneratorModel   string `yaml:"generatorModel"`
	GeneratorBaseURL string `yaml:"generatorBaseUrl"`
	APIKey           string `yaml:"apiKey"`
	LogDir           string `yaml:"logDir"`
	MaxResults       int    `yaml:"maxResults"`
	RequireAuth      *bool  `yaml:"requireAuth"`
	AuthToken        string `yaml:"authToken"`
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	JanitorExpr      string `yaml:"janitorExpr"`
	RetentionHours   int    `yaml:"retentionHours"`
}

// Load reads the process environment and merges it over an optional
// YAML file at path (ignored if path is empty or unreadable), env taking
// precedence per the pick* helpers below.
func Load(path string) (*Config, error) {
	var file fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		DB: dbpool.Config{
			Host:     pickString(os.Getenv("DB_HOST"), file.DB.Host, "localhost"),
			Port:     pickInt(envInt("DB_PORT"), file.DB.Port, 5432),
			Name:     pickString(os.Getenv("DB_NAME"), file.DB.Name, "sage_memory"),
			User:     pickString(os.Getenv("DB_USER"), file.DB.User, "postgres"),
			Password: pickString(os.Getenv("DB_PASSWORD"), file.DB.Password, ""),
		},
		EmbeddingModel:   pickString(os.Getenv("EMBEDDING_MODEL"), file.EmbeddingModel, "BAAI/bge-large-zh-v1.5"),
		EmbeddingBaseURL: pickString(os.Getenv("EMBEDDING_BASE_URL"), file.EmbeddingBaseURL, "https://api.siliconflow.cn/v1"),
		GeneratorModel:   pickString(os.Getenv("GENERATOR_MODEL"), file.GeneratorModel, "deepseek-ai/DeepSeek-V2.5"),
		GeneratorBaseURL: pickString(os.Getenv("GENERATOR_BASE_URL"), file.GeneratorBaseURL, "https://api.siliconflow.cn/v1"),
		APIKey:           pickString(os.Getenv("SILICONFLOW_API_KEY"), file.APIKey, ""),
		LogDir:           pickString(os.Getenv("SAGE_LOG_DIR"), file.LogDir, ""),
		MaxResults:       pickInt(envInt("SAGE_MAX_RESULTS"), file.MaxResults, 10),
		RequireAuth:      pickBool(envBool("REQUIRE_AUTH"), file.RequireAuth, false),
		AuthToken:        pickString(os.Getenv("AUTH_TOKEN"), file.AuthToken, ""),
		Host:             pickString(os.Getenv("HOST"), file.Host, "127.0.0.1"),
		Port:             pickInt(envInt("PORT"), file.Port, 8765),
		JanitorExpr:      pickString(os.Getenv("SAGE_JANITOR_CRON"), file.JanitorExpr, "0 * * * *"),
		RetentionHours:   pickInt(envInt("SAGE_RETENTION_HOURS"), file.RetentionHours, 0),
	}
	return cfg, nil
}

// Redacted returns a copy of cfg with secrets replaced for safe logging/export.
func (c Config) Redacted() Config {
	out := c
	out.DB.Password = redact(out.DB.Password)
	out.APIKey = redact(out.APIKey)
	out.AuthToken = redact(out.AuthToken)
	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***redacted***"
}

func envInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func envBool(key string) *bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

func pickString(override, fallback, defaultVal string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback
	}
	return defaultVal
}

func pickInt(override *int, fallback, defaultVal int) int {
	if override != nil {
		return *override
	}
	if fallback != 0 {
		return fallback
	}
	return defaultVal
}

func pickBool(override *bool, fallback *bool, defaultVal bool) bool {
	if override != nil {
		return *override
	}
	if fallback != nil {
		return *fallback
	}
	return defaultVal
}
