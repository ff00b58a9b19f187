package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.1,0.2,0.3]", VectorLiteral([]float32{0.1, 0.2, 0.3}))
	assert.Equal(t, "[1,-2,0]", VectorLiteral([]float32{1, -2, 0}))
	assert.Equal(t, "[]", VectorLiteral(nil))
}
