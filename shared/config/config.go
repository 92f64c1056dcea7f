// Package config defines the QAuth/QuantumShield service configuration
// schema, consumable by github.com/zeromicro/go-zero/core/conf, so a
// CLI or service wrapper can load it without this package knowing
// anything about flags or files.
package config

import (
	"github.com/zeromicro/go-zero/rest"

	"github.com/qauthteam/qshield/third_party/cache"
	"github.com/qauthteam/qshield/third_party/database"
)

// Config is the top-level service configuration.
type Config struct {
	rest.RestConf
	Issuer     IssuerConfig
	Policy     PolicyConfig
	Revocation RevocationConfig
	PoP        PoPConfig
}

// IssuerConfig locates the issuer's key material on disk. Reading and
// writing the file is the CLI's job; see pkg/qauth/keyfile for the
// schema.
type IssuerConfig struct {
	KeyFilePath string `json:",env=QAUTH_KEY_FILE"`
}

// PolicyConfig locates the policy store.
type PolicyConfig struct {
	StorePath string `json:",env=QAUTH_POLICY_PATH"`
}

// RevocationConfig selects and configures the revocation backend.
type RevocationConfig struct {
	// Backend is one of "memory", "redis", "postgres".
	Backend         string                  `json:",default=memory,options=memory|redis|postgres"`
	Database        database.PostgresConfig `json:",optional"`
	Redis           cache.RedisConfig       `json:",optional"`
	CacheTTLSeconds int                     `json:",default=300"`
	BloomFPR        float64                 `json:",default=0.01"`
}

// PoPConfig tunes the proof-of-possession freshness window.
type PoPConfig struct {
	MaxAgeSeconds int `json:",default=60"`
}
