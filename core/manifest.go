package engine

import (
	"github.com/invopop/jsonschema"
)

// ToolDefinition describes one client tool for the remote agent's
// configuration: name, spoken-intent description, and a JSON Schema for the
// parameter mapping the agent must supply.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

type savePasswordParams struct {
	Service  string `json:"service" jsonschema:"description=Name of the service the password belongs to"`
	Username string `json:"username,omitempty" jsonschema:"description=Optional account username or email"`
	Password string `json:"password" jsonschema:"description=The password to store"`
}

type getPasswordParams struct {
	Service string `json:"service" jsonschema:"description=Spoken name of the service to look up"`
}

type updatePasswordParams struct {
	Service  string `json:"service" jsonschema:"description=Spoken name of the service to update"`
	Password string `json:"password" jsonschema:"description=The new password"`
}

type deletePasswordParams struct {
	Service string `json:"service" jsonschema:"description=Spoken name of the service to delete"`
}

type listPasswordsParams struct{}

// ToolManifest returns the client-tool definitions this engine dispatches,
// with parameter schemas reflected from the dispatcher's own types. Useful
// for generating or auditing the agent-side tool configuration.
func ToolManifest() []ToolDefinition {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return []ToolDefinition{
		{
			Name:        toolSavePassword,
			Description: "Save a new password for a service in the user's vault",
			Parameters:  reflector.Reflect(savePasswordParams{}),
		},
		{
			Name:        toolGetPassword,
			Description: "Retrieve the stored password for a service",
			Parameters:  reflector.Reflect(getPasswordParams{}),
		},
		{
			Name:        toolUpdatePassword,
			Description: "Replace the stored password for a service",
			Parameters:  reflector.Reflect(updatePasswordParams{}),
		},
		{
			Name:        toolDeletePassword,
			Description: "Delete the stored password for a service",
			Parameters:  reflector.Reflect(deletePasswordParams{}),
		},
		{
			Name:        toolListPasswords,
			Description: "List the services the user has passwords saved for",
			Parameters:  reflector.Reflect(listPasswordsParams{}),
		},
	}
}
