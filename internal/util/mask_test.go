package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "********1234", MaskPhone("+15550001234"))
	assert.Equal(t, "1234", MaskPhone("1234"))
	assert.Equal(t, "", MaskPhone(""))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***e@example.com", MaskEmail("alice@example.com"))
	assert.Equal(t, "**@example.com", MaskEmail("ab@example.com"))
	assert.Equal(t, "not-an-email", MaskEmail("not-an-email"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+15550001234", NormalizePhone("+1 (555) 000-1234"))
	assert.Equal(t, "+15550001234", NormalizePhone("+15550001234"))
}
