package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError describes one invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the config for values the pipeline cannot run with.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if c.Fetch.MaxRetries < 0 {
		add("fetch.max_retries", "max_retries must not be negative")
	}
	if c.Fetch.MaxFastWorkers < 1 {
		add("fetch.max_fast_workers", "max_fast_workers must be positive")
	}
	if c.Fetch.FastRetryDelay < 0 || c.Fetch.GroupedRetryDelay < 0 {
		add("fetch.retry_delay", "retry delays must not be negative")
	}
	if c.Sources.RequestTimeout <= 0 {
		add("sources.request_timeout", "request_timeout must be positive")
	}
	if c.Sources.GroupedRatePerSecond < 0 {
		add("sources.grouped_rate_per_second", "grouped_rate_per_second must not be negative")
	}

	if c.Processing.Workers < 1 {
		add("processing.workers", "workers must be positive")
	}
	if c.Processing.MaxSuggestions < 1 {
		add("processing.max_suggestions", "max_suggestions must be positive")
	}
	if c.Processing.OCR.Enabled && c.Processing.OCR.Endpoint == "" {
		add("processing.ocr.endpoint", "endpoint is required when OCR is enabled")
	}

	switch strings.ToLower(c.Summarization.Provider) {
	case "gemini", "openai", "ollama":
	default:
		add("summarization.provider", fmt.Sprintf("unknown provider %q", c.Summarization.Provider))
	}
	if c.Summarization.Temperature < 0 || c.Summarization.Temperature > 2 {
		add("summarization.temperature", "temperature must be between 0 and 2")
	}

	if c.Distribution.Workers < 1 {
		add("distribution.workers", "workers must be positive")
	}
	if c.Distribution.SMTP.Host == "" || c.Distribution.SMTP.Port <= 0 {
		add("distribution.smtp", "host and port are required")
	}

	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		add("storage.driver", fmt.Sprintf("unknown driver %q", c.Storage.Driver))
	}

	if _, err := time.Parse("15:04", c.Schedule.Time); err != nil {
		add("schedule.time", "time must be HH:MM")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		add("schedule.timezone", fmt.Sprintf("unknown timezone %q", c.Schedule.Timezone))
	}

	return errs
}
