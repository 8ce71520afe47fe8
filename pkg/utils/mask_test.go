package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "***", MaskSecret(""))
	assert.Equal(t, "***", MaskSecret("short"))
	assert.Equal(t, "su***et", MaskSecret("supersecret"))
	assert.NotContains(t, MaskSecret("a-very-long-client-secret"), "very-long")
}
