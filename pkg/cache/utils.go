package cache

import (
	"fmt"
	"strings"
)

// GenerateKey joins a namespace prefix and an identifier into a cache key.
func GenerateKey(prefix, id string) string {
	return prefix + ":" + id
}

// GenerateKeyWithParams builds a colon-delimited cache key from a prefix and
// an ordered list of parameters, e.g. forecast:<org>:<date>.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range params {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}

// BuildPattern turns a key prefix into a glob matching every key under it.
func BuildPattern(prefix string) string {
	return prefix + "*"
}
