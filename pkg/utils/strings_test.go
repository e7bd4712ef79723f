package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInt(t *testing.T) {
	assert.Equal(t, 5, ParseInt("5", 1))
	assert.Equal(t, 1, ParseInt("", 1))
	assert.Equal(t, 1, ParseInt("abc", 1))
}

func TestParsePage(t *testing.T) {
	page, perPage := ParsePage(url.Values{"page": {"3"}, "perPage": {"500"}}, 20, 100)
	assert.Equal(t, 3, page)
	assert.Equal(t, 100, perPage)

	page, perPage = ParsePage(url.Values{"page": {"-1"}, "perPage": {"0"}}, 20, 100)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, perPage)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SPRING10", NormalizeCode(" spring10 "))
}
