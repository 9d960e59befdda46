package config

import (
	"fmt"
	"time"
)

// Config holds the deploy run configuration.
type Config struct {
	Profile      string
	Region       string
	StackName    string
	TemplatePath string
	DataFiles    []string
	OutputFormat string
	PollInterval time.Duration

	// AssumeRole configuration
	AssumeRole *AssumeRoleConfig
}

// AssumeRoleConfig holds AssumeRole-specific configuration.
type AssumeRoleConfig struct {
	RoleARN     string `json:"roleArn"`
	SessionName string `json:"sessionName"`
	Duration    int32  `json:"duration"`

	ExternalID string `json:"externalId,omitempty"`
}

// ValidateOutputFormat checks if the output format is supported.
func ValidateOutputFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// Validate checks the run configuration before any AWS call is made.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.StackName == "" {
		return fmt.Errorf("stack name is required")
	}
	if c.TemplatePath == "" {
		return fmt.Errorf("template path is required")
	}
	if !ValidateOutputFormat(c.OutputFormat) {
		return fmt.Errorf("invalid output format %q. Supported formats: text, json", c.OutputFormat)
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("poll interval must be at least 1s, got %s", c.PollInterval)
	}
	if c.AssumeRole != nil {
		if err := c.AssumeRole.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the AssumeRole configuration.
func (arc *AssumeRoleConfig) Validate() error {
	if arc.RoleARN == "" {
		return fmt.Errorf("role ARN cannot be empty when using AssumeRole")
	}

	if arc.Duration < 900 || arc.Duration > 43200 {
		return fmt.Errorf("session duration must be between 900 and 43200 seconds, got %d", arc.Duration)
	}

	if arc.SessionName == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	return nil
}
