package models

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Permission names understood by the admin API.
const (
	PermissionRead  = "read"
	PermissionAdmin = "admin"
)

// APIKey is a resolved admin credential. The raw key value is never kept;
// only its SHA-256 hex hash.
type APIKey struct {
	Name        string   `json:"name"`
	KeyHash     string   `json:"-"`
	Permissions []string `json:"permissions"`
	Enabled     bool     `json:"enabled"`
}

// NewAPIKey resolves a configured key, hashing the raw value when present.
func NewAPIKey(cfg APIKeyConfig) *APIKey {
	hash := cfg.KeyHash
	if cfg.Key != "" {
		hash = HashAPIKey(cfg.Key)
	}
	return &APIKey{
		Name:        cfg.Name,
		KeyHash:     hash,
		Permissions: cfg.Permissions,
		Enabled:     cfg.Enabled,
	}
}

// HashAPIKey computes the SHA-256 hex digest of a raw API key.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether rawKey hashes to this key, in constant time.
func (ak *APIKey) Matches(rawKey string) bool {
	return subtle.ConstantTimeCompare([]byte(HashAPIKey(rawKey)), []byte(ak.KeyHash)) == 1
}

// HasPermission returns true when the key is enabled and possesses the required permission.
func (ak *APIKey) HasPermission(required string) bool {
	if !ak.Enabled {
		return false
	}
	for _, p := range ak.Permissions {
		switch p {
		case "*", PermissionAdmin:
			return true
		case required:
			return true
		}
	}
	return false
}
