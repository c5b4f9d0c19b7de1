package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimator(t *testing.T) {
	var e Estimator
	assert.Equal(t, 0, e.Count(""))
	assert.Equal(t, 1, e.Count("abc"))
	assert.Equal(t, 1, e.Count("abcd"))
	assert.Equal(t, 2, e.Count("abcde"))
	assert.Equal(t, 1, e.Count("전자"))
}
