package markers

// CompactMarkers holds the boilerplate surrounding a compact-continuation
// summary: the recognizable prefix, the delimiter that introduces the summary
// body, and the section headers / trailing instructions stripped before
// matching the summary against prior responses.
type CompactMarkers struct {
	Prefixes      []string `yaml:"prefixes" json:"prefixes"`
	Delimiter     string   `yaml:"delimiter" json:"delimiter"`
	StripLeading  []string `yaml:"strip_leading" json:"strip_leading"`
	StripTrailing []string `yaml:"strip_trailing" json:"strip_trailing"`
}

// Set is the full marker configuration loaded from the embedded YAML file.
type Set struct {
	SystemReminderPrefix      string         `yaml:"system_reminder_prefix" json:"system_reminder_prefix"`
	Compact                   CompactMarkers `yaml:"compact" json:"compact"`
	SummarizationPromptMarker string         `yaml:"summarization_prompt_marker" json:"summarization_prompt_marker"`
	TaskToolName              string         `yaml:"task_tool_name" json:"task_tool_name"`
}
