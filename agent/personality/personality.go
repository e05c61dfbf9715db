package personality

import (
	"strings"

	"github.com/BaSui01/roundtable/types"
)

// Role tags how a personality takes part in a conversation.
type Role string

const (
	// RoleMain participants take turns in ordinary rounds.
	RoleMain Role = "main"
	// RoleHelper personalities serve dedicated operations such as topic
	// generation and context detection.
	RoleHelper Role = "helper"
	// RoleModerator summarizes threads on demand.
	RoleModerator Role = "moderator"
)

// Personality is a configured conversational participant. Values are
// immutable once loaded into a Registry.
type Personality struct {
	ID                string `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	SystemInstruction string `json:"system_message" yaml:"system_message"`
	ProviderID        string `json:"ai_name" yaml:"ai_name"`
	Model             string `json:"model,omitempty" yaml:"model,omitempty"`
	Color             string `json:"color,omitempty" yaml:"color,omitempty"`
	Glyph             string `json:"character,omitempty" yaml:"character,omitempty"`
	Role              Role   `json:"role" yaml:"role"`
}

// IsMain reports whether the personality takes part in ordinary rounds.
func (p Personality) IsMain() bool {
	return p.Role == RoleMain
}

// Validate checks the fields every personality needs.
func (p Personality) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return types.NewError(types.ErrConfiguration, "personality id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return types.Errorf(types.ErrConfiguration, "personality %q: name is required", p.ID)
	}
	if strings.TrimSpace(p.ProviderID) == "" {
		return types.Errorf(types.ErrConfiguration, "personality %q: ai_name is required", p.ID)
	}
	switch p.Role {
	case RoleMain, RoleHelper, RoleModerator:
	default:
		return types.Errorf(types.ErrConfiguration, "personality %q: unknown role %q", p.ID, p.Role)
	}
	return nil
}

func (p Personality) normalized() Personality {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.ProviderID = strings.TrimSpace(p.ProviderID)
	p.SystemInstruction = strings.TrimSpace(p.SystemInstruction)
	if p.Role == "" {
		p.Role = RoleMain
	}
	p.Role = Role(strings.ToLower(string(p.Role)))
	return p
}
