package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// ErrMissingEnv is returned when a ${VAR} reference names an unset variable.
var ErrMissingEnv = errors.New("config: missing required environment variables")

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict expands environment variables in s.
//
// `$VAR` and `${VAR}` expand as with os.ExpandEnv, except that a braced
// reference to an unset variable is an error. `$$` is a literal `$`.
func ExpandEnvStrict(s string) (string, error) {
	const dollar = "\x00SITECACHE_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollar)

	missing := make(map[string]struct{})
	for _, m := range envRefPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(m[1]); !ok {
			missing[m[1]] = struct{}{}
		}
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(keys, ", "))
	}

	s = os.ExpandEnv(s)
	return strings.ReplaceAll(s, dollar, "$"), nil
}
