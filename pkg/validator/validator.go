package validator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

// First returns the error for the alphabetically first field.
func (v ValidationErrors) First() (field, message string) {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], v[fields[0]]
}

const (
	MaxMessageLength = 4000
	MaxMarkReadIDs   = 500
)

var handleRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func ValidateMessage(content, kind string) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(content) == "" {
		errs.Add("content", "Message content is required")
	} else if utf8.RuneCountInString(content) > MaxMessageLength {
		errs.Add("content", fmt.Sprintf("Message must be at most %d characters", MaxMessageLength))
	}

	if kind != "text" {
		errs.Add("content_type", "Only text messages can be sent directly; upload files instead")
	}

	return errs
}

func ValidateRating(outcome string) ValidationErrors {
	errs := make(ValidationErrors)
	if outcome != "upvote" && outcome != "downvote" {
		errs.Add("rating", "Rating must be upvote or downvote")
	}
	return errs
}

func ValidateMarkRead(count int) ValidationErrors {
	errs := make(ValidationErrors)
	if count > MaxMarkReadIDs {
		errs.Add("message_ids", fmt.Sprintf("At most %d message ids per call", MaxMarkReadIDs))
	}
	return errs
}

func ValidateHandle(handle string) ValidationErrors {
	errs := make(ValidationErrors)

	handle = strings.TrimSpace(handle)
	if handle == "" {
		errs.Add("handle", "Handle is required")
	} else if len(handle) < 3 {
		errs.Add("handle", "Handle must be at least 3 characters")
	} else if len(handle) > 50 {
		errs.Add("handle", "Handle is too long")
	} else if !handleRegex.MatchString(handle) {
		errs.Add("handle", "Handle can only contain letters, numbers, _ and -")
	}

	return errs
}

// ValidateUpload checks a declared mime type and size against the policy.
func ValidateUpload(mimeType string, size, maxBytes int64, allowed []string) ValidationErrors {
	errs := make(ValidationErrors)

	if mimeType == "" {
		errs.Add("file", "File type is required")
	} else if !slices.Contains(allowed, mimeType) {
		errs.Add("file", fmt.Sprintf("File type %s is not allowed", mimeType))
	}

	if size <= 0 {
		errs.Add("size", "File is empty")
	} else if size > maxBytes {
		errs.Add("size", fmt.Sprintf("File must be at most %d bytes", maxBytes))
	}

	return errs
}
