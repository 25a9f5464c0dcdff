package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// DeviceIDRegex validates device ID format
	DeviceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

	// SessionIDRegex validates session ID format
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateDeviceID validates a device identifier (serial or generated id)
func ValidateDeviceID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("device id is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("device id is too long (max 100 characters)")
	}
	if !DeviceIDRegex.MatchString(id) {
		return fmt.Errorf("device id contains invalid characters")
	}
	return nil
}

// ValidateSessionID validates a session identifier
func ValidateSessionID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("session id is too long (max 100 characters)")
	}
	if !SessionIDRegex.MatchString(id) {
		return fmt.Errorf("session id contains invalid characters")
	}
	return nil
}

// ValidateScenario validates a scenario/game label
func ValidateScenario(label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return fmt.Errorf("scenario is required")
	}
	if utf8.RuneCountInString(label) > 200 {
		return fmt.Errorf("scenario is too long (max 200 characters)")
	}
	return nil
}

// ValidateLabel validates a device display label (may be empty)
func ValidateLabel(label string) error {
	if utf8.RuneCountInString(label) > 200 {
		return fmt.Errorf("label is too long (max 200 characters)")
	}
	return nil
}
