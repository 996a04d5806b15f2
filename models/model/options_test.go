package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadOptionsDevice(t *testing.T) {
	assert.Equal(t, "cpu", LoadOptions{}.Device())
	assert.Equal(t, "cuda", LoadOptions{GPU: true}.Device())
}
