package cmdutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestElide(t *testing.T) {
	assert.Equal(t, "https://cdn/a.png", Elide("https://cdn/a.png", 0))
	assert.Equal(t, "data:image/png;base64,…", Elide("data:image/png;base64,AAAAAAAA", 0))
	assert.Equal(t, "abc…", Elide("abcdef", 3))
}
