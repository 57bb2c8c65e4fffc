package crypto

import (
	"context"
	"encoding/json"
	"fmt"
)

// envelopeVersion is the only storage format this build understands. Bump it
// together with a migration path; DecryptFromStorage rejects anything else.
const envelopeVersion = 1

// storageEnvelope is the JSON wrapper persisted to the database. Field names
// are deliberately short: the envelope is stored once per encrypted column.
type storageEnvelope struct {
	Version    int    `json:"v"`
	Algorithm  string `json:"a"`
	Ciphertext string `json:"d"`
	IV         string `json:"i"`
	Salt       string `json:"s"`
}

// EncryptForStorage marshals data to JSON, seals it under masterKey and
// returns a versioned envelope string safe to store in any text column.
func (s *Service) EncryptForStorage(ctx context.Context, data any, masterKey string) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", opError("encrypt_for_storage", err)
	}

	result, err := s.Encrypt(ctx, string(payload), masterKey)
	if err != nil {
		return "", err
	}

	envelope, err := json.Marshal(storageEnvelope{
		Version:    envelopeVersion,
		Algorithm:  result.Algorithm,
		Ciphertext: result.Ciphertext,
		IV:         result.IV,
		Salt:       result.Salt,
	})
	if err != nil {
		return "", opError("encrypt_for_storage", err)
	}

	return string(envelope), nil
}

// DecryptFromStorage opens an envelope produced by EncryptForStorage and
// unmarshals the plaintext into out. Unsupported versions fail before any
// key derivation happens.
func (s *Service) DecryptFromStorage(ctx context.Context, envelope, masterKey string, out any) error {
	var env storageEnvelope
	if err := json.Unmarshal([]byte(envelope), &env); err != nil {
		return opError("decrypt_from_storage", err)
	}
	if env.Version != envelopeVersion {
		return opError("decrypt_from_storage", fmt.Errorf("unsupported envelope version %d", env.Version))
	}

	plaintext, err := s.Decrypt(ctx, env.Ciphertext, masterKey, env.IV, env.Salt)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(plaintext), out); err != nil {
		return opError("decrypt_from_storage", err)
	}
	return nil
}
