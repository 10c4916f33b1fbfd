package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/voxvault/voxvault-core/vaultapi"
	"go.opentelemetry.io/otel/attribute"
)

// Tool names the remote agent is configured with.
const (
	toolSavePassword   = "save_password"
	toolGetPassword    = "get_password"
	toolUpdatePassword = "update_password"
	toolDeletePassword = "delete_password"
	toolListPasswords  = "list_passwords"
)

// executeVaultTool runs one agent-issued command and renders the outcome as
// a natural-language result string. It never fails past its own boundary:
// every failure becomes a result string, not a protocol error.
func (e *ConversationEngine) executeVaultTool(ctx context.Context, toolName string, params map[string]any) string {
	ctx, span := tracer.Start(ctx, "execute vault tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", toolName))

	if e.vault == nil {
		return "Error: no vault service configured"
	}

	result, err := e.dispatchVaultTool(ctx, toolName, params)
	if err != nil {
		span.RecordError(err)
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

func (e *ConversationEngine) dispatchVaultTool(ctx context.Context, toolName string, params map[string]any) (string, error) {
	switch toolName {
	case toolSavePassword:
		return e.savePassword(ctx, params)
	case toolGetPassword:
		return e.getPassword(ctx, params)
	case toolUpdatePassword:
		return e.updatePassword(ctx, params)
	case toolDeletePassword:
		return e.deletePassword(ctx, params)
	case toolListPasswords:
		return e.listPasswords(ctx)
	}
	return fmt.Sprintf("Unknown tool: %s", toolName), nil
}

func (e *ConversationEngine) savePassword(ctx context.Context, params map[string]any) (string, error) {
	service, password := stringParam(params, "service"), stringParam(params, "password")
	if service == "" || password == "" {
		return "Missing service or password parameter", nil
	}

	credential := vaultapi.Credential{Service: service, Password: password}
	if username := stringParam(params, "username"); username != "" {
		credential.Username = &username
	}

	entry, err := vaultapi.EncodeCredential(credential, vaultapi.CategoryPassword)
	if err != nil {
		return "", err
	}
	if _, err := e.vault.CreateEntry(ctx, entry); err != nil {
		return "", err
	}
	e.notifyVaultChanged()

	confirmation := fmt.Sprintf("Saved. Service: %s, password: %s", service, password)
	if credential.Username != nil {
		confirmation += fmt.Sprintf(", username: %s", *credential.Username)
	}
	return confirmation + ".", nil
}

func (e *ConversationEngine) getPassword(ctx context.Context, params map[string]any) (string, error) {
	service := stringParam(params, "service")
	if service == "" {
		return "Missing service parameter", nil
	}

	entries, err := e.vault.ListEntries(ctx)
	if err != nil {
		return "Failed to fetch vault entries", nil
	}

	for _, entry := range entries {
		credential, err := vaultapi.DecodeCredential(entry)
		if err != nil {
			logger.Debug("skipping undecodable entry", "entry_id", entry.ID)
			continue
		}
		if !serviceMatches(credential.Service, service) {
			continue
		}

		if credential.Password == "" {
			return fmt.Sprintf("Found %s but no password is stored for it.", credential.Service), nil
		}
		result := fmt.Sprintf("The password for %s is %s", credential.Service, credential.Password)
		if credential.Username != nil {
			result += fmt.Sprintf(". The username is %s", *credential.Username)
		}
		return result + ".", nil
	}
	return fmt.Sprintf("No saved password found for %s.", service), nil
}

func (e *ConversationEngine) updatePassword(ctx context.Context, params map[string]any) (string, error) {
	service, password := stringParam(params, "service"), stringParam(params, "password")
	if service == "" || password == "" {
		return "Missing service or password parameter", nil
	}

	entries, err := e.vault.ListEntries(ctx)
	if err != nil {
		return "Failed to fetch vault entries", nil
	}

	for _, entry := range entries {
		credential, err := vaultapi.DecodeCredential(entry)
		if err != nil {
			logger.Debug("skipping undecodable entry", "entry_id", entry.ID)
			continue
		}
		if !serviceMatches(credential.Service, service) {
			continue
		}

		// Preserve the stored service spelling and username untouched.
		var next vaultapi.Credential
		if err := copier.Copy(&next, &credential); err != nil {
			return "", fmt.Errorf("failed to copy credential: %w", err)
		}
		next.Password = password

		updated, err := vaultapi.EncodeCredential(next, entry.Category)
		if err != nil {
			return "", err
		}
		if _, err := e.vault.UpdateEntry(ctx, entry.ID, updated); err != nil {
			return "", err
		}
		e.notifyVaultChanged()
		return fmt.Sprintf("Updated. The new password for %s is %s.", credential.Service, password), nil
	}
	return fmt.Sprintf("No saved entry found for %s.", service), nil
}

func (e *ConversationEngine) deletePassword(ctx context.Context, params map[string]any) (string, error) {
	service := stringParam(params, "service")
	if service == "" {
		return "Missing service parameter", nil
	}

	entries, err := e.vault.ListEntries(ctx)
	if err != nil {
		return "Failed to fetch vault entries", nil
	}

	for _, entry := range entries {
		credential, err := vaultapi.DecodeCredential(entry)
		if err != nil {
			logger.Debug("skipping undecodable entry", "entry_id", entry.ID)
			continue
		}
		if !serviceMatches(credential.Service, service) {
			continue
		}

		if err := e.vault.DeleteEntry(ctx, entry.ID); err != nil {
			return "", err
		}
		e.notifyVaultChanged()
		return fmt.Sprintf("Deleted the password for %s.", credential.Service), nil
	}
	return fmt.Sprintf("No saved entry found for %s.", service), nil
}

func (e *ConversationEngine) listPasswords(ctx context.Context) (string, error) {
	entries, err := e.vault.ListEntries(ctx)
	if err != nil {
		return "Failed to fetch vault entries", nil
	}
	if len(entries) == 0 {
		return "No passwords saved yet.", nil
	}

	var services []string
	for _, entry := range entries {
		credential, err := vaultapi.DecodeCredential(entry)
		if err != nil {
			logger.Debug("skipping undecodable entry", "entry_id", entry.ID)
			continue
		}
		if credential.Service != "" {
			services = append(services, credential.Service)
		}
	}
	if len(services) == 0 {
		return "No readable entries found.", nil
	}
	return fmt.Sprintf("You have passwords saved for: %s.", strings.Join(services, ", ")), nil
}

// serviceMatches is the fuzzy rule for finding an entry by spoken service
// name: case-insensitive, trim-normalized, and true when either string
// contains the other, allowing both abbreviation and elaboration.
func serviceMatches(stored, query string) bool {
	if stored == "" {
		return false
	}
	a := strings.ToLower(strings.TrimSpace(stored))
	b := strings.ToLower(strings.TrimSpace(query))
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}
