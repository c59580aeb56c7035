package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// AccountNameRegex matches platform account names: letters, digits and
	// underscores, not starting with an underscore.
	AccountNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_]*$`)

	// CommandIDRegex matches chat command identifiers.
	CommandIDRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

// ValidateAccountName validates a platform account name (channels and users
// share the same namespace).
func ValidateAccountName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("account name is required")
	}
	if len(name) < 3 {
		return fmt.Errorf("account name must be at least 3 characters")
	}
	if len(name) > 25 {
		return fmt.Errorf("account name is too long (max 25 characters)")
	}
	if !AccountNameRegex.MatchString(name) {
		return fmt.Errorf("account name contains invalid characters (only letters, numbers, _ allowed)")
	}
	return nil
}

// ValidateCommandID validates a command identifier.
func ValidateCommandID(id string) error {
	if id == "" {
		return fmt.Errorf("command is required")
	}
	if len(id) > 50 {
		return fmt.Errorf("command is too long (max 50 characters)")
	}
	if !CommandIDRegex.MatchString(id) {
		return fmt.Errorf("invalid command format")
	}
	return nil
}

// ValidatePassword validates an admin panel password
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	if len(password) > 128 {
		return fmt.Errorf("password is too long (max 128 characters)")
	}
	return nil
}

// ValidateCooldownSeconds validates a cooldown duration in whole seconds.
func ValidateCooldownSeconds(seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("cooldown must be >= 0 seconds")
	}
	if seconds > 86400 {
		return fmt.Errorf("cooldown is too long (max 86400 seconds)")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
