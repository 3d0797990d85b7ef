package config

import (
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// Config holds the kerneld control-plane configuration. Every kernel
// construction parameter has a sensible default so a bare `kerneld` with
// no environment produces a usable single-instance region.
type Config struct {
	// Environment
	Environment string
	Port        string
	InstanceID  string

	// Observability
	SentryDSN string

	// Persistence (internal/store brain-snapshot table)
	DatabaseURL string

	// Auth mode for destructive admin routes:
	//   - "none": no auth (self-hosted, local dev)
	//   - "token": bearer-JWT session minted from AdminTokenHash
	AuthMode       string
	AdminTokenHash string // bcrypt hash of the bootstrap admin token
	AdminJWTSecret string // HMAC secret signing short-lived admin session JWTs

	// Kernel construction parameters (region.Config)
	KernelNodeCapacity        uint32
	KernelCommandRingCapacity uint32
	KernelSynapseCapacity     uint32
	KernelPPQ                 uint32
	KernelTempoBPM            uint32
	KernelSafeZoneTicks       uint32
	KernelQuantumTicks        uint64
}

func Load() *Config {
	return &Config{
		Environment:               getEnv("ENVIRONMENT", "development"),
		Port:                      getEnv("PORT", "8080"),
		InstanceID:                getEnv("INSTANCE_ID", ""),
		SentryDSN:                 getEnv("SENTRY_DSN", ""),
		DatabaseURL:               getEnv("DATABASE_URL", ""),
		AuthMode:                  getEnv("AUTH_MODE", "none"),
		AdminTokenHash:            getEnv("ADMIN_TOKEN_HASH", ""),
		AdminJWTSecret:            getEnv("ADMIN_JWT_SECRET", ""),
		KernelNodeCapacity:        getEnvUint32("KERNEL_NODE_CAPACITY", 16384),
		KernelCommandRingCapacity: getEnvUint32("KERNEL_COMMAND_RING_CAPACITY", 4096),
		KernelSynapseCapacity:     getEnvUint32("KERNEL_SYNAPSE_CAPACITY", 65536),
		KernelPPQ:                 getEnvUint32("KERNEL_PPQ", 480),
		KernelTempoBPM:            getEnvUint32("KERNEL_TEMPO_BPM", 120),
		KernelSafeZoneTicks:       getEnvUint32("KERNEL_SAFE_ZONE_TICKS", 240),
		KernelQuantumTicks:        getEnvUint64("KERNEL_QUANTUM_TICKS", 120),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return defaultValue
	}
	return uint32(parsed)
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// RequiresAdminAuth reports whether destructive admin routes should demand
// a valid admin session JWT.
func (c *Config) RequiresAdminAuth() bool {
	return c.AuthMode == "token"
}

// HashToken bcrypt-hashes a bootstrap admin token for storage in
// ADMIN_TOKEN_HASH. Exposed so operators can mint one offline.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAdminToken reports whether token matches the configured bootstrap
// admin token hash.
func (c *Config) VerifyAdminToken(token string) bool {
	if c.AdminTokenHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.AdminTokenHash), []byte(token)) == nil
}
