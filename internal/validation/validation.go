package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits, counted in characters.
const (
	TaskTitleMax       = 200
	TaskDescriptionMax = 2000
	ThreadTitleMax     = 100
	MessageContentMax  = 5000
	UserIDMax          = 100
)

// Priority values accepted for tasks.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Thread statuses.
const (
	ThreadActive   = "active"
	ThreadArchived = "archived"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Fail builds a ValidationError for field.
func Fail(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func length(s string) int {
	return utf8.RuneCountInString(s)
}

// TaskTitle reports whether title is non-blank and at most TaskTitleMax characters.
func TaskTitle(title string) bool {
	return strings.TrimSpace(title) != "" && length(title) <= TaskTitleMax
}

// TaskDescription reports whether description fits TaskDescriptionMax. Empty is valid.
func TaskDescription(description string) bool {
	return length(description) <= TaskDescriptionMax
}

// Priority reports whether p is one of low, medium or high.
func Priority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// DueDate reports whether due lies strictly after now.
func DueDate(due, now time.Time) bool {
	return due.After(now)
}

// ThreadTitle reports whether title is non-blank and at most ThreadTitleMax characters.
func ThreadTitle(title string) bool {
	return strings.TrimSpace(title) != "" && length(title) <= ThreadTitleMax
}

// ThreadStatus reports whether status is active or archived.
func ThreadStatus(status string) bool {
	return status == ThreadActive || status == ThreadArchived
}

// MessageContent reports whether content is non-blank and at most MessageContentMax characters.
func MessageContent(content string) bool {
	return strings.TrimSpace(content) != "" && length(content) <= MessageContentMax
}

// MessageRole reports whether role is user or assistant.
func MessageRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

// Email does a loose shape check: something@something.tld with no spaces.
func Email(email string) bool {
	return emailPattern.MatchString(email)
}

// UserID reports whether id is non-empty and at most UserIDMax characters.
func UserID(id string) bool {
	return id != "" && length(id) <= UserIDMax
}

// Sanitize trims input and strips angle brackets.
func Sanitize(input string) string {
	return strings.NewReplacer("<", "", ">", "").Replace(strings.TrimSpace(input))
}

// ParseDueDate accepts RFC 3339 text, a plain YYYY-MM-DD date (UTC) or unix milliseconds.
func ParseDueDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
