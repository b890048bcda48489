package authhandler

import (
	"fmt"
	"net/url"
	"path"
	"time"
	"unicode"
)

const resetTTL = 2 * time.Hour

const defaultBaseURL = "http://localhost:8080"

func validateResetPassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return fmt.Errorf("password must mix upper case, lower case and digits")
	}
	return nil
}

func buildResetLink(baseURL, token string) string {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		parsed, _ = url.Parse(defaultBaseURL)
	}
	parsed.Path = path.Join(parsed.Path, "reset")
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func buildResetEmailMessage(link string, ttl time.Duration) string {
	return fmt.Sprintf(
		"A password reset was requested for your account.\n\nOpen this link to choose a new password:\n%s\n\nThe link expires in %d hour(s). If you did not ask for a reset you can ignore this message.",
		link, int(ttl.Hours()))
}
