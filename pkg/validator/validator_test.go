package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		kind    string
		fields  []string
	}{
		{"ok", "hello", "text", nil},
		{"empty", "   ", "text", []string{"content"}},
		{"too long", strings.Repeat("é", MaxMessageLength+1), "text", []string{"content"}},
		{"image kind", "x", "image", []string{"content_type"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateMessage(tt.content, tt.kind)
			assert.Len(t, errs, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, errs, f)
			}
		})
	}
}

func TestValidateUpload(t *testing.T) {
	allowed := []string{"image/png", "application/pdf"}

	assert.False(t, ValidateUpload("image/png", 10, 100, allowed).HasErrors())
	assert.Contains(t, ValidateUpload("text/html", 10, 100, allowed), "file")
	assert.Contains(t, ValidateUpload("image/png", 101, 100, allowed), "size")
	assert.Contains(t, ValidateUpload("image/png", 0, 100, allowed), "size")
}

func TestFirst(t *testing.T) {
	errs := make(ValidationErrors)
	errs.Add("size", "too big")
	errs.Add("file", "bad type")

	field, msg := errs.First()
	assert.Equal(t, "file", field)
	assert.Equal(t, "bad type", msg)
}

func TestValidateHandleAndRating(t *testing.T) {
	assert.False(t, ValidateHandle("wise-owl_7").HasErrors())
	assert.True(t, ValidateHandle("no spaces").HasErrors())
	assert.True(t, ValidateHandle("ab").HasErrors())

	assert.False(t, ValidateRating("upvote").HasErrors())
	assert.True(t, ValidateRating("meh").HasErrors())
	assert.True(t, ValidateMarkRead(MaxMarkReadIDs+1).HasErrors())
}
