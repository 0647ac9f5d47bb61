package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// writeField appends one field with a length prefix. A delimiter
// character inside a value can therefore never make two different
// requests serialize to the same bytes.
func writeField(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// Fingerprint derives the deterministic cache key component for one
// request. Only the identity tuple participates by default; context
// attributes are folded in when their keys are configured, in sorted
// order so map iteration never leaks into the key.
func Fingerprint(organizationID, principalID uuid.UUID, action, resourceType, resourceID string, contextKeys []string, reqContext map[string]string) string {
	var b strings.Builder
	writeField(&b, organizationID.String())
	writeField(&b, principalID.String())
	writeField(&b, action)
	writeField(&b, resourceType)
	writeField(&b, resourceID)

	if len(contextKeys) > 0 && len(reqContext) > 0 {
		keys := make([]string, 0, len(contextKeys))
		for _, k := range contextKeys {
			if _, ok := reqContext[k]; ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeField(&b, k)
			writeField(&b, reqContext[k])
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
