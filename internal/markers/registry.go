// Package markers loads the upstream marker strings (system-reminder tags,
// compact-continuation boilerplate, summarization prompt fragments) from an
// embedded YAML file.
package markers

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Load parses the embedded marker file and validates that every marker the
// correlation engine depends on is present.
func Load() (*Set, error) {
	data, err := configFiles.ReadFile("config/markers.yaml")
	if err != nil {
		return nil, fmt.Errorf("read markers config: %w", err)
	}

	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("unmarshal markers config: %w", err)
	}

	if err := set.validate(); err != nil {
		return nil, fmt.Errorf("invalid markers config: %w", err)
	}

	return &set, nil
}

func (s *Set) validate() error {
	if s.SystemReminderPrefix == "" {
		return fmt.Errorf("system_reminder_prefix is required")
	}
	if len(s.Compact.Prefixes) == 0 {
		return fmt.Errorf("compact.prefixes must not be empty")
	}
	if s.Compact.Delimiter == "" {
		return fmt.Errorf("compact.delimiter is required")
	}
	if s.SummarizationPromptMarker == "" {
		return fmt.Errorf("summarization_prompt_marker is required")
	}
	if s.TaskToolName == "" {
		return fmt.Errorf("task_tool_name is required")
	}
	return nil
}
