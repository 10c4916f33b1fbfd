package vaultapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// CategoryPassword is the entry category used for spoken credential records.
const CategoryPassword = "password"

// Placeholder cipher metadata. Real client-side authenticated encryption is
// the vault boundary's concern; this subsystem treats the payload shape as
// opaque transport format.
var (
	placeholderIV  = base64.StdEncoding.EncodeToString([]byte("placeholder-iv"))
	placeholderTag = base64.StdEncoding.EncodeToString([]byte("placeholder-tag"))
)

// Credential is the decoded payload of a password-category entry. Username
// stays nil when the user never spoke one.
type Credential struct {
	Service  string  `json:"service"`
	Username *string `json:"username"`
	Password string  `json:"password"`
}

// EncodeCredential packs a credential into the write shape the vault service
// accepts.
func EncodeCredential(credential Credential, category string) (NewEntry, error) {
	payload, err := json.Marshal(credential)
	if err != nil {
		return NewEntry{}, fmt.Errorf("failed to marshal credential payload: %w", err)
	}
	return NewEntry{
		EncryptedData: base64.StdEncoding.EncodeToString(payload),
		IV:            placeholderIV,
		Tag:           placeholderTag,
		Category:      category,
	}, nil
}

// DecodeCredential unpacks an entry's payload. Entries written by other
// clients may not decode; callers skip those rather than failing the whole
// operation.
func DecodeCredential(entry Entry) (Credential, error) {
	payload, err := base64.StdEncoding.DecodeString(entry.EncryptedData)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to decode entry %s payload: %w", entry.ID, err)
	}
	var credential Credential
	if err := json.Unmarshal(payload, &credential); err != nil {
		return Credential{}, fmt.Errorf("failed to unmarshal entry %s payload: %w", entry.ID, err)
	}
	return credential, nil
}
