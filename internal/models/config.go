package models

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// SAT registry validation
	Registry RegistryConfig `yaml:"registry"`

	// External text-recognition service
	Recognizer RecognizerConfig `yaml:"recognizer"`
}

// RegistryConfig configures the SAT registry validation client
type RegistryConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"` // bounded, <= 10
	CacheTTLSecs   int    `yaml:"cache_ttl_seconds"`
}

// RecognizerConfig points at the external OCR collaborator
type RecognizerConfig struct {
	BaseURL        string `yaml:"base_url"`
	Language       string `yaml:"language"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}
