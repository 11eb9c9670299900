package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, "puntos:reminder:%", likePrefix("puntos:reminder:"))
	assert.Equal(t, `a\_b\%c\\%`, likePrefix(`a_b%c\`))
	assert.Equal(t, "%", likePrefix(""))
}
