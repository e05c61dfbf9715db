package personality

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/roundtable/types"
)

// File is the on-disk personality definition document.
type File struct {
	Personalities []Personality `yaml:"personalities"`
}

// Parse decodes a YAML personality document into a Registry.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, types.NewError(types.ErrConfiguration, "parse personalities").WithCause(err)
	}
	return NewRegistry(f.Personalities...)
}

// LoadFile reads and parses a personality file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personalities %s: %w", path, err)
	}
	return Parse(data)
}

// Defaults returns a small built-in cast bound to providerID: three main
// participants plus the moderator, topic generator and context detector.
func Defaults(providerID string) []Personality {
	return []Personality{
		{
			ID:   "vanessa",
			Name: "Vanessa",
			SystemInstruction: "You are Vanessa. Empathetic and passionate about human rights. " +
				"Share thoughts from a progressive perspective, backed by facts and examples, " +
				"and ask probing questions to deepen the discussion.",
			ProviderID: providerID,
			Color:      "magenta",
			Glyph:      "🎨",
			Role:       RoleMain,
		},
		{
			ID:   "nicole",
			Name: "Nicole",
			SystemInstruction: "You are Nicole. An optimistic problem-solver and creative thinker. " +
				"Offer out-of-the-box solutions and build on the ideas of others.",
			ProviderID: providerID,
			Color:      "cyan",
			Glyph:      "💡",
			Role:       RoleMain,
		},
		{
			ID:   "dyann",
			Name: "Dyann",
			SystemInstruction: "You are Dyann. Direct and concise, with a dry sense of humor. " +
				"Ground your arguments in history and real-world examples.",
			ProviderID: providerID,
			Color:      "blue",
			Glyph:      "𝍄",
			Role:       RoleMain,
		},
		{
			ID:   "moderator",
			Name: "Moderator",
			SystemInstruction: "You are the Moderator. Provide an objective analysis of the conversation. " +
				"If the context is CODE, gather the coding ideas into one complete implementation. " +
				"If the context is RESEARCH, compile the ideas into a short formal report without attributing them. " +
				"Otherwise give a concise summary of the main points and themes.",
			ProviderID: providerID,
			Color:      "yellow",
			Role:       RoleModerator,
		},
		{
			ID:   "topic_generator",
			Name: "TopicGenerator",
			SystemInstruction: "You are the TopicGenerator. Generate a concise topic (5-10 words) that captures " +
				"the essence of the conversation. Output only the topic, without explanation.",
			ProviderID: providerID,
			Color:      "cyan",
			Role:       RoleHelper,
		},
		{
			ID:   "context_detector",
			Name: "ContextDetector",
			SystemInstruction: "You are the ContextDetector. Categorize the conversation as CODE, RESEARCH or GENERAL. " +
				"Respond with the category only.",
			ProviderID: providerID,
			Color:      "yellow",
			Role:       RoleHelper,
		},
	}
}
