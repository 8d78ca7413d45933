package app

import (
	"os"
	"strings"

	"github.com/complyra/complyra-backend/internal/platform/logger"
)

type Config struct {
	ServerAddr     string
	VectorProvider string
}

func LoadConfig(log *logger.Logger) Config {
	addr := strings.TrimSpace(os.Getenv("SERVER_ADDR"))
	if addr == "" {
		port := strings.TrimSpace(os.Getenv("PORT"))
		if port == "" {
			port = "8080"
		}
		addr = ":" + port
	}

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("VECTOR_PROVIDER")))
	if provider == "" {
		provider = "qdrant"
	}

	log.Info("Loaded config", "server_addr", addr, "vector_provider", provider)
	return Config{
		ServerAddr:     addr,
		VectorProvider: provider,
	}
}
