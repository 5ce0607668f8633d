package params

import (
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Storage struct {
	DataDir string
}

type API struct {
	ListenAddr     string
	AllowedOrigins []string
	AdminSecret    string // HS256 key for admin JWTs; admin routes are disabled when empty
}

type Fees struct {
	GlAccount  common.Address // first fee sink, also takes the split remainder
	SigAccount common.Address // second fee sink
}

type Feed struct {
	KafkaBrokers []string
	KafkaTopic   string
}

type Config struct {
	Storage Storage
	API     API
	Fees    Fees
	Feed    Feed
	LogFile string
}

func Default() Config {
	return Config{
		Storage: Storage{DataDir: "data"},
		API: API{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Fees: Fees{
			GlAccount:  common.HexToAddress("0x0000000000000000000000000000000000000001"),
			SigAccount: common.HexToAddress("0x0000000000000000000000000000000000000002"),
		},
		Feed: Feed{KafkaTopic: "dex.trades"},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Storage.DataDir = getEnv("DEX_DATA_DIR", cfg.Storage.DataDir)
	cfg.API.ListenAddr = getEnv("DEX_API_ADDR", cfg.API.ListenAddr)
	cfg.API.AdminSecret = getEnv("DEX_ADMIN_SECRET", cfg.API.AdminSecret)
	cfg.LogFile = getEnv("DEX_LOG_FILE", cfg.LogFile)

	if origins := os.Getenv("DEX_API_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = splitList(origins)
	}
	if gl := os.Getenv("DEX_GL_ACCOUNT"); common.IsHexAddress(gl) {
		cfg.Fees.GlAccount = common.HexToAddress(gl)
	}
	if sig := os.Getenv("DEX_SIG_ACCOUNT"); common.IsHexAddress(sig) {
		cfg.Fees.SigAccount = common.HexToAddress(sig)
	}
	if brokers := os.Getenv("DEX_KAFKA_BROKERS"); brokers != "" {
		cfg.Feed.KafkaBrokers = splitList(brokers)
	}
	cfg.Feed.KafkaTopic = getEnv("DEX_KAFKA_TOPIC", cfg.Feed.KafkaTopic)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
