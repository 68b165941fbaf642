package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"privaudit/pkg/errors"
)

// minRootSecretBytes is the minimum decoded length of the protocol root
// secret. 32 bytes matches the HMAC-SHA512 derivation input size.
const minRootSecretBytes = 32

// knownWeakSecrets are values that have appeared in docs, examples, or
// scaffolding and must never reach production.
var knownWeakSecrets = []string{
	strings.Repeat("00", minRootSecretBytes),
	strings.Repeat("ff", minRootSecretBytes),
	strings.Repeat("0123456789abcdef", 4),
	strings.Repeat("deadbeef", 8),
}

// Validate checks the parts of the configuration the compliance service
// cannot run without. A missing or weak root secret aborts startup; there
// is deliberately no warn-and-continue path.
func (c *Config) Validate() error {
	if _, err := c.RootSecret(); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MultiSig.Threshold < 3 {
		return fmt.Errorf("MULTISIG_THRESHOLD must be at least 3, got %d", c.MultiSig.Threshold)
	}
	if c.Rotation.DefaultGraceDays < 0 {
		return fmt.Errorf("ROTATION_GRACE_DAYS must not be negative")
	}
	return nil
}

// RootSecret decodes and validates the protocol root secret.
func (c *Config) RootSecret() ([]byte, error) {
	raw := strings.TrimSpace(c.Protocol.RootSecretHex)
	if raw == "" {
		return nil, errors.ErrRootSecretMissing
	}

	secret, err := hex.DecodeString(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRootSecretWeak, "root secret is not valid hex")
	}
	if len(secret) < minRootSecretBytes {
		return nil, errors.Wrap(errors.ErrRootSecretWeak,
			fmt.Sprintf("root secret must be at least %d bytes, got %d", minRootSecretBytes, len(secret)))
	}

	lowered := strings.ToLower(raw)
	for _, weak := range knownWeakSecrets {
		if lowered == weak {
			return nil, errors.Wrap(errors.ErrRootSecretWeak, "root secret matches a known placeholder value")
		}
	}

	// Reject secrets with trivially low entropy (a single repeated byte).
	first := secret[0]
	uniform := true
	for _, b := range secret[1:] {
		if b != first {
			uniform = false
			break
		}
	}
	if uniform {
		return nil, errors.Wrap(errors.ErrRootSecretWeak, "root secret is a single repeated byte")
	}

	return secret, nil
}
