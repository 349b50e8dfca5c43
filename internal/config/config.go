// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artl-app/artl-service/internal/models"
)

// Defaults for values left empty in the file and the environment
const (
	DefaultPort           = 8080
	DefaultHost           = "0.0.0.0"
	DefaultOCRLanguage    = "eng"
	DefaultMaxDimension   = 2000
	DefaultSourceLanguage = "en"
	DefaultTargetLanguage = "zh"
	DefaultProvider       = "openai"
	DefaultTimeoutSeconds = 30
	DefaultTokenTTLHours  = 24
	DefaultBucket         = "artl-images"
	DefaultEventsChannel  = "artl:state"
)

// Load reads path (if it exists) and applies environment overrides and
// defaults. A missing file is not an error; the environment alone can
// configure the service.
func Load(path string) (*models.Config, error) {
	var config models.Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyEnv(config *models.Config) error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		config.Port = p
	}
	setString(&config.Host, "HOST")

	// Auth
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		config.Auth.Enabled = parseBool(v)
	}
	setString(&config.Auth.JWTSecret, "JWT_SECRET")

	// OCR
	setString(&config.OCR.Language, "OCR_LANGUAGE")

	// Translation
	setString(&config.Translation.Provider, "TRANSLATION_PROVIDER")
	setString(&config.Translation.SourceLanguage, "SOURCE_LANGUAGE")
	setString(&config.Translation.TargetLanguage, "TARGET_LANGUAGE")
	setString(&config.Translation.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&config.Translation.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&config.Translation.OpenAI.Model, "OPENAI_MODEL")
	setString(&config.Translation.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&config.Translation.Gemini.Model, "GEMINI_MODEL")
	setString(&config.Translation.Ollama.BaseURL, "OLLAMA_BASE_URL")
	setString(&config.Translation.Ollama.Model, "OLLAMA_MODEL")

	// Bluetooth
	setString(&config.Bluetooth.Adapter, "BT_ADAPTER")
	setString(&config.Bluetooth.ServiceUUID, "BT_SERVICE_UUID")
	setString(&config.Bluetooth.TCPListen, "BT_TCP_LISTEN")

	// Storage
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		config.Storage.Endpoint = endpoint
		config.Storage.Enabled = true
	}
	setString(&config.Storage.AccessKey, "MINIO_ACCESS_KEY")
	setString(&config.Storage.SecretKey, "MINIO_SECRET_KEY")
	setString(&config.Storage.Bucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		config.Storage.UseSSL = parseBool(v)
	}

	setString(&config.Database.URL, "DATABASE_URL")
	setString(&config.Events.RedisURL, "REDIS_URL")
	setString(&config.Events.Channel, "REDIS_CHANNEL")
	return nil
}

func applyDefaults(config *models.Config) {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Auth.TokenTTLHours == 0 {
		config.Auth.TokenTTLHours = DefaultTokenTTLHours
	}
	if config.OCR.Engine == "" {
		config.OCR.Engine = "tesseract"
	}
	if config.OCR.Language == "" {
		config.OCR.Language = DefaultOCRLanguage
	}
	if config.OCR.MaxDimension == 0 {
		config.OCR.MaxDimension = DefaultMaxDimension
	}
	if config.Translation.Provider == "" {
		config.Translation.Provider = DefaultProvider
	}
	if config.Translation.SourceLanguage == "" {
		config.Translation.SourceLanguage = DefaultSourceLanguage
	}
	if config.Translation.TargetLanguage == "" {
		config.Translation.TargetLanguage = DefaultTargetLanguage
	}
	if config.Translation.TimeoutSeconds == 0 {
		config.Translation.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if config.Bluetooth.Adapter == "" {
		config.Bluetooth.Adapter = "none"
	}
	if config.Storage.Bucket == "" {
		config.Storage.Bucket = DefaultBucket
	}
	if config.Events.Channel == "" {
		config.Events.Channel = DefaultEventsChannel
	}
}

// Validate checks values that would otherwise fail late at start-up
func Validate(config *models.Config) error {
	var problems []string

	if config.Port < 1 || config.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", config.Port))
	}
	if config.Auth.Enabled {
		if len(config.Auth.JWTSecret) < 16 {
			problems = append(problems, "auth.jwt_secret must be at least 16 characters")
		}
		if len(config.Auth.Users) == 0 {
			problems = append(problems, "auth.users is empty")
		}
	}
	switch config.Translation.Provider {
	case "openai":
		if config.Translation.OpenAI.APIKey == "" {
			problems = append(problems, "translation.openai.api_key is required")
		}
	case "gemini":
		if config.Translation.Gemini.APIKey == "" {
			problems = append(problems, "translation.gemini.api_key is required")
		}
	case "ollama":
	default:
		problems = append(problems, fmt.Sprintf("unknown translation provider %q", config.Translation.Provider))
	}
	switch config.Bluetooth.Adapter {
	case "bluez", "none":
	case "tcp":
		if config.Bluetooth.TCPListen == "" && len(config.Bluetooth.Peers) == 0 {
			problems = append(problems, "bluetooth.tcp_listen or bluetooth.peers is required for the tcp adapter")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown bluetooth adapter %q", config.Bluetooth.Adapter))
	}
	if config.Storage.Enabled && config.Storage.Endpoint == "" {
		problems = append(problems, "storage.endpoint is required when storage is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
