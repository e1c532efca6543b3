package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	maxURLLength   = 2048
	regexMetachars = `.^$*+?()[]{}|\`
)

// caseSensitiveFlag finds inline flag groups such as (?-i) or (?s-i:...)
// that switch off case-insensitive matching
var caseSensitiveFlag = regexp.MustCompile(`(^|[^\\])\(\?[A-Za-z]*-[A-Za-z]*i[A-Za-z]*[:)]`)

// InputValidator implements rule and URL validation
type InputValidator struct {
	structs        *validator.Validate
	allowedSchemes []string
}

// NewInputValidator creates a new input validator with default settings
func NewInputValidator() *InputValidator {
	return &InputValidator{
		structs:        validator.New(),
		allowedSchemes: []string{"http", "https"},
	}
}

// NewValidator creates a new input validator instance
func NewValidator() Validator {
	return NewInputValidator()
}

// ValidateRule validates a normalized rule before it is persisted.
// Loop detection across other rules is not done here.
func (v *InputValidator) ValidateRule(rule *RedirectRule) error {
	if rule == nil {
		return NewAppError(ErrValidationFailed, "Rule cannot be nil", 422, nil)
	}

	if err := v.structs.Struct(rule); err != nil {
		return formatStructError(err)
	}

	if err := v.validateSource(rule); err != nil {
		return err
	}

	if rule.StatusCode != StatusGone && rule.Destination == "" {
		return NewAppError(ErrValidationFailed, "Destination is required", 422, map[string]any{"field": "destination"})
	}

	if strings.Contains(rule.Destination, "://") && !IsAbsoluteURL(rule.Destination) {
		return NewAppError(ErrValidationFailed, "Destination must use http or https", 422, map[string]any{
			"field": "destination",
			"value": rule.Destination,
		})
	}

	if rule.Destination != "" && SameURL(rule.SourceNormalized, rule.Destination) {
		return NewLoopError(rule.SourceNormalized, rule.Destination)
	}

	return nil
}

// ValidateURL validates a URL or path submitted for resolution
func (v *InputValidator) ValidateURL(urlStr string) error {
	if urlStr == "" {
		return NewAppError(ErrValidationFailed, "URL is required", 422, map[string]any{"field": "url"})
	}

	if len(urlStr) > maxURLLength {
		return NewAppError(ErrValidationFailed, "URL too long (max 2048 characters)", 422, map[string]any{
			"field":      "url",
			"length":     len(urlStr),
			"max_length": maxURLLength,
		})
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return NewAppErrorWithCause(ErrValidationFailed, "Invalid URL format", 422, err, map[string]any{"field": "url"})
	}

	if parsedURL.Scheme == "" {
		if !strings.HasPrefix(urlStr, "/") {
			return NewAppError(ErrValidationFailed, "URL must be absolute or start with /", 422, map[string]any{"field": "url"})
		}
		return nil
	}

	if !slices.Contains(v.allowedSchemes, strings.ToLower(parsedURL.Scheme)) {
		return NewAppError(ErrValidationFailed, "Only HTTP and HTTPS URLs are allowed", 422, map[string]any{
			"field":           "url",
			"scheme":          parsedURL.Scheme,
			"allowed_schemes": v.allowedSchemes,
		})
	}

	if parsedURL.Host == "" {
		return NewAppError(ErrValidationFailed, "URL must have a valid host", 422, map[string]any{"field": "url"})
	}

	return nil
}

// validateSource checks that the source pattern agrees with its scope and strategy
func (v *InputValidator) validateSource(rule *RedirectRule) error {
	pattern := rule.SourceNormalized
	if pattern == "" {
		return NewAppError(ErrValidationFailed, "Source pattern is required", 422, map[string]any{"field": "source_pattern"})
	}

	details := map[string]any{
		"field":          "source_pattern",
		"pattern":        pattern,
		"scope":          rule.SourceScope,
		"match_strategy": rule.MatchStrategy,
	}

	if rule.MatchStrategy == MatchRegex {
		if !strings.ContainsAny(pattern, regexMetachars) {
			return NewAppError(ErrValidationFailed, "Regex pattern contains no regular expression syntax; use exact matching instead", 422, details)
		}
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return NewAppErrorWithCause(ErrValidationFailed, "Invalid regex pattern", 422, err, details)
		}
		if caseSensitiveFlag.MatchString(pattern) {
			return NewAppError(ErrValidationFailed, "Regex matching is case-insensitive; the -i flag is not allowed", 422, details)
		}
		switch rule.SourceScope {
		case ScopePathOnly:
			if !strings.Contains(pattern, "/") {
				return NewAppError(ErrValidationFailed, "Path-only regex must contain /", 422, details)
			}
		case ScopeFullURL:
			lower := strings.ToLower(pattern)
			if !strings.Contains(lower, "http") || !(strings.Contains(lower, "://") || strings.Contains(lower, `:\/\/`)) {
				return NewAppError(ErrValidationFailed, "Full-URL regex must contain http:// or https://", 422, details)
			}
		}
		return nil
	}

	switch rule.SourceScope {
	case ScopePathOnly:
		if !strings.HasPrefix(pattern, "/") {
			return NewAppError(ErrValidationFailed, "Path-only source must start with /", 422, details)
		}
	case ScopeFullURL:
		if !IsAbsoluteURL(pattern) {
			return NewAppError(ErrValidationFailed, "Full-URL source must start with http:// or https://", 422, details)
		}
	}

	hasStar := strings.Contains(pattern, "*")
	switch rule.MatchStrategy {
	case MatchWildcard:
		if !hasStar {
			return NewAppError(ErrValidationFailed, "Wildcard pattern must contain *", 422, details)
		}
	case MatchExact, MatchPrefix:
		if hasStar {
			return NewAppError(ErrValidationFailed, "* is only allowed with wildcard matching", 422, details)
		}
	}

	return nil
}

// formatStructError turns validator.ValidationErrors into a single AppError
func formatStructError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return NewAppErrorWithCause(ErrValidationFailed, "Invalid rule", 422, err, nil)
	}

	fields := make([]string, 0, len(validationErrors))
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		fields = append(fields, e.Field())
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", e.Field()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param()))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", e.Field(), e.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", e.Field(), e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", e.Field(), e.Tag()))
		}
	}

	return NewAppError(ErrValidationFailed, strings.Join(messages, "; "), 422, map[string]any{"fields": fields})
}
