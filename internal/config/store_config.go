package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Credential store backends
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type StoreConfig interface {
	GetCredentialStore() string
	GetCredentialsFile() string
	GetCredentialsKey() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetCredentialStore() string {
	switch backend := strings.ToLower(GetEnv("CREDENTIAL_STORE", StoreFile)); backend {
	case StoreRedis, StoreMemory:
		return backend
	default:
		return StoreFile
	}
}

func (Store) GetCredentialsFile() string {
	if path := GetEnv("CREDENTIALS_FILE", ""); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "credentials.json")
	}
	return filepath.Join(dir, "authclient", "credentials.json")
}

// GetCredentialsKey returns the passphrase used to encrypt the credentials file.
// Empty means the file is written in plain JSON.
func (Store) GetCredentialsKey() string {
	return GetEnv("CREDENTIALS_KEY", "")
}

func (Store) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Store) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Store) GetRedisDB() int {
	db, err := strconv.Atoi(GetEnv("REDIS_DB", "0"))
	if err != nil || db < 0 {
		return 0
	}
	return db
}

func (Store) GetRedisPrefix() string {
	return GetEnv("REDIS_PREFIX", "authclient")
}
