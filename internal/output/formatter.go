package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stacktide/stacktide/internal/tailer"
)

// Formatter renders one feed item as a single output line.
type Formatter interface {
	FormatItem(item tailer.Item) (string, error)
}

// TextFormatter renders console-style columns, one event per line.
type TextFormatter struct{}

// FormatItem implements the Formatter interface for text output.
func (f *TextFormatter) FormatItem(item tailer.Item) (string, error) {
	switch {
	case item.Event != nil:
		e := item.Event
		fields := []string{
			f.formatTime(e.Timestamp),
			e.ResourceStatus,
			e.ResourceType,
			e.LogicalResourceID,
		}
		if e.ResourceStatusReason != "" {
			fields = append(fields, e.ResourceStatusReason)
		}
		return strings.Join(fields, "  "), nil
	case item.Outcome != nil:
		return fmt.Sprintf("%s (%s)", item.Outcome.StackStatus, item.Outcome.State), nil
	default:
		return "", fmt.Errorf("empty feed item")
	}
}

func (f *TextFormatter) formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// JSONFormatter renders each item as one JSON object per line.
type JSONFormatter struct{}

// FormatItem implements the Formatter interface for JSON output.
func (f *JSONFormatter) FormatItem(item tailer.Item) (string, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// FormatterFactory creates a formatter based on the specified format.
func FormatterFactory(format string) (Formatter, error) {
	switch format {
	case "text":
		return &TextFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported formats: text, json)", format)
	}
}
