package utils

import (
	"net/url"
	"strconv"
	"strings"
)

// ParseInt parses a string to int with a fallback default value
func ParseInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return val
}

// ParsePage reads page/perPage query params, clamping perPage to maxPerPage.
func ParsePage(q url.Values, defaultPerPage, maxPerPage int) (page, perPage int) {
	page = ParseInt(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	perPage = ParseInt(q.Get("perPage"), defaultPerPage)
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// NormalizeCode upper-cases and trims a coupon code.
// e.g. " spring10 " -> "SPRING10"
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
