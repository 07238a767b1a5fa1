package hipaa

import (
	"fmt"

	"github.com/rs/zerolog"
)

// EncryptionService owns the PHI encryptor for the process. With no key it
// runs disabled and hands repositories a nil FieldEncryptor.
type EncryptionService struct {
	encryptor FieldEncryptor
	enabled   bool
}

// NewEncryptionService builds the service from a decoded 32-byte key. An
// empty key disables encryption and logs a warning.
func NewEncryptionService(key []byte, logger zerolog.Logger) (*EncryptionService, error) {
	if len(key) == 0 {
		logger.Warn().Msg("PHI encryption disabled: PHI_ENCRYPTION_KEY is not set")
		return &EncryptionService{}, nil
	}

	enc, err := NewPHIEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("create PHI encryptor: %w", err)
	}

	logger.Info().Msg("PHI field-level encryption enabled")
	return &EncryptionService{
		encryptor: enc,
		enabled:   true,
	}, nil
}

// Encryptor returns the FieldEncryptor, or nil when encryption is disabled.
func (s *EncryptionService) Encryptor() FieldEncryptor {
	return s.encryptor
}

// IsEnabled returns true if encryption is active.
func (s *EncryptionService) IsEnabled() bool {
	return s.enabled
}
