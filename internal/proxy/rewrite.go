package proxy

import (
	"strings"

	"github.com/tradepulse/gateway/internal/config"
)

// rewriteRule maps an inbound path prefix to a target service, with an
// optional replacement prefix on the backend side.
type rewriteRule struct {
	pattern       string
	targetService string
	prefixRewrite string
}

// compileRewrites builds rewrite rules from configuration. Patterns are
// validated during config loading; compilation only normalizes them.
func compileRewrites(configs []config.PathRewriteConfig) []rewriteRule {
	rules := make([]rewriteRule, 0, len(configs))
	for _, rc := range configs {
		rules = append(rules, rewriteRule{
			pattern:       strings.TrimSuffix(rc.Pattern, "/"),
			targetService: rc.TargetService,
			prefixRewrite: strings.TrimSuffix(rc.PrefixRewrite, "/"),
		})
	}
	return rules
}

// rewritePath maps the request path suffix onto the backend path. The
// suffix is the part of the inbound path after the matched pattern,
// starting with / or empty.
func (r rewriteRule) rewritePath(suffix string) string {
	prefix := r.prefixRewrite
	if prefix == "" {
		prefix = r.pattern
	}
	if suffix == "" {
		return prefix
	}
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}
	return prefix + suffix
}
