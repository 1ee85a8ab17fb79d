package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/facturaIA/cfdi-normalizer-service/api"
	"github.com/facturaIA/cfdi-normalizer-service/internal/db"
	"github.com/facturaIA/cfdi-normalizer-service/internal/models"
	"github.com/facturaIA/cfdi-normalizer-service/internal/recognize"
	"github.com/facturaIA/cfdi-normalizer-service/internal/sat"
	"github.com/facturaIA/cfdi-normalizer-service/internal/storage"
)

func main() {
	// Initialize database connection pool
	if err := db.Init(); err != nil {
		log.Printf("Warning: Database not available: %v", err)
		log.Println("Running in parse-only mode (no persistence)")
	} else {
		defer db.Close()
		log.Println("Database connection pool initialized")
	}

	// Initialize MinIO storage
	if err := storage.Init(); err != nil {
		log.Printf("Warning: MinIO storage not available: %v", err)
		log.Println("Source documents will not be stored")
	} else {
		log.Println("MinIO storage initialized")
	}

	// Load configuration
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Registry validation client with its own injected cache
	var validator *sat.Client
	if config.Registry.BaseURL != "" {
		cache := sat.NewCache(time.Duration(config.Registry.CacheTTLSecs) * time.Second)
		validator = sat.NewClient(
			config.Registry.BaseURL,
			time.Duration(config.Registry.TimeoutSeconds)*time.Second,
			cache,
		)
		log.Println("SAT registry validation enabled")
	} else {
		log.Println("Warning: SAT registry validation not configured")
	}

	// External text-recognition collaborator
	var recognizer recognize.Recognizer
	if config.Recognizer.BaseURL != "" {
		recognizer = recognize.NewHTTPRecognizer(
			config.Recognizer.BaseURL,
			config.Recognizer.Language,
			time.Duration(config.Recognizer.TimeoutSeconds)*time.Second,
		)
		log.Println("Text-recognition service configured")
	} else {
		log.Println("Warning: text-recognition service not configured, ticket uploads limited to plain text")
	}

	// Create API handler
	handler := api.NewHandler(config, validator, recognizer)
	router := handler.SetupRoutes()

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Printf("Starting CFDI Normalizer Service v%s on %s", api.Version, addr)
	log.Printf("Registry: %v", validator != nil)
	log.Printf("Recognizer: %v", recognizer != nil)
	log.Printf("Database: %v", db.Pool != nil)
	log.Printf("Storage: %v", storage.Client != nil)
	log.Printf("Endpoints:")
	log.Printf("  POST http://%s/api/process-cfdi     - Normalize a CFDI XML", addr)
	log.Printf("  POST http://%s/api/process-ticket   - Normalize a scanned ticket", addr)
	log.Printf("  POST http://%s/api/validate-cfdi    - Check a UUID against the SAT registry", addr)
	log.Printf("  GET  http://%s/api/transactions     - List transactions", addr)
	log.Printf("  GET  http://%s/api/stats            - Monthly stats", addr)
	log.Printf("  GET  http://%s/health               - Health check", addr)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadConfig(path string) (*models.Config, error) {
	// Read config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var config models.Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables if present
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if url := os.Getenv("REGISTRY_URL"); url != "" {
		config.Registry.BaseURL = url
	}
	if ttl := os.Getenv("REGISTRY_CACHE_TTL"); ttl != "" {
		if n, err := strconv.Atoi(ttl); err == nil {
			config.Registry.CacheTTLSecs = n
		}
	}
	if url := os.Getenv("RECOGNIZER_URL"); url != "" {
		config.Recognizer.BaseURL = url
	}
	if lang := os.Getenv("RECOGNIZER_LANGUAGE"); lang != "" {
		config.Recognizer.Language = lang
	}

	return &config, nil
}
