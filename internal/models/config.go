package models

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	Auth        AuthConfig        `yaml:"auth"`
	OCR         OCRConfig         `yaml:"ocr"`
	Translation TranslationConfig `yaml:"translation"`
	Bluetooth   BluetoothConfig   `yaml:"bluetooth"`
	Storage     StorageConfig     `yaml:"storage"`
	Database    DatabaseConfig    `yaml:"database"`
	Events      EventsConfig      `yaml:"events"`
}

// AuthConfig configures JWT issuance and the local user list
type AuthConfig struct {
	Enabled       bool         `yaml:"enabled"`
	JWTSecret     string       `yaml:"jwt_secret"`
	TokenTTLHours int          `yaml:"token_ttl_hours"` // Default: 24
	Users         []UserConfig `yaml:"users"`
}

// UserConfig is one account allowed to log in
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// OCRConfig represents OCR-specific configuration
type OCRConfig struct {
	Engine       string `yaml:"engine"`        // "tesseract"
	Language     string `yaml:"language"`      // OCR language (default: "eng")
	MaxDimension int    `yaml:"max_dimension"` // Longest side before recognition, 0 = unlimited
	Grayscale    bool   `yaml:"grayscale"`
}

// TranslationConfig selects and configures the translation provider
type TranslationConfig struct {
	Provider       string `yaml:"provider"`        // "openai", "gemini", "ollama"
	SourceLanguage string `yaml:"source_language"` // BCP 47, default "en"
	TargetLanguage string `yaml:"target_language"` // BCP 47, default "zh"
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
	Ollama OllamaConfig `yaml:"ollama"`
}

// OpenAIConfig for OpenAI/Azure OpenAI
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"` // For custom endpoints
	Model   string `yaml:"model"`              // Default: "gpt-4o-mini"
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: "gemini-1.5-flash"
}

// OllamaConfig for local Ollama
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"` // Default: "http://localhost:11434"
	Model   string `yaml:"model"`    // e.g., "mistral", "llama3"
}

// BluetoothConfig selects the radio adapter and the service identifiers
type BluetoothConfig struct {
	Adapter            string       `yaml:"adapter"` // "bluez", "tcp" or "none"
	ServiceUUID        string       `yaml:"service_uuid"`
	ServiceName        string       `yaml:"service_name"`
	DialTimeoutSeconds int          `yaml:"dial_timeout_seconds"`
	TCPListen          string       `yaml:"tcp_listen"` // tcp adapter only
	Peers              []PeerConfig `yaml:"peers"`      // tcp adapter only
}

// PeerConfig is a statically paired device for the tcp adapter
type PeerConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// StorageConfig for MinIO/S3 image storage
type StorageConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// DatabaseConfig for the PostgreSQL history store
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// EventsConfig for Redis state fan-out
type EventsConfig struct {
	RedisURL string `yaml:"redis_url"`
	Channel  string `yaml:"channel"`
}
