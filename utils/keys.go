package utils

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

const maxParamStringLen = 100

// BuildCacheKey produces "<namespace>:<category>:<k1>=<v1>&<k2>=<v2>" with
// parameters in sorted order so equivalent requests share a key. Parameter
// strings longer than 100 characters collapse to an 8-hex-char FNV-1a hash.
func BuildCacheKey(namespace, category string, params map[string]string) string {
	if len(params) == 0 {
		return namespace + ":" + category
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}

	paramStr := sb.String()
	if len(paramStr) > maxParamStringLen {
		paramStr = HashShort(paramStr)
	}

	return namespace + ":" + category + ":" + paramStr
}

// HashShort returns an 8-hex-char FNV-1a digest of s.
func HashShort(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}
