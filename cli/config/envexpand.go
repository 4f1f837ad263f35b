// Package config loads docbroker.yaml for the serve and spool commands.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches $${NAME...} (escaped), ${NAME} and ${NAME:-fallback}.
var envRef = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// ExpandEnv substitutes environment references in a config document
// before it is parsed:
//
//	engine:
//	  host: ${DOCBROKER_ENGINE_HOST:-localhost}
//	adapter:
//	  url: ${DOCBROKER_REDIS_URL}
//
// A reference whose variable is unset or empty takes its fallback, or
// becomes empty without one; a missing required value (an adapter URL, a
// mirror bucket) is then reported by Validate. $${NAME} is written out as
// the literal ${NAME}.
func ExpandEnv(doc string) string {
	var b strings.Builder
	last := 0
	for _, m := range envRef.FindAllStringSubmatchIndex(doc, -1) {
		start, end := m[0], m[1]
		b.WriteString(doc[last:start])
		last = end

		ref := doc[start:end]
		if strings.HasPrefix(ref, "$$") {
			b.WriteString(ref[1:])
			continue
		}

		if v := os.Getenv(doc[m[2]:m[3]]); v != "" {
			b.WriteString(v)
		} else if m[4] >= 0 {
			b.WriteString(doc[m[4]+len(":-") : m[5]])
		}
	}
	b.WriteString(doc[last:])
	return b.String()
}
