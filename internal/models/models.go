package models

import "strings"

// ModelGroup represents a model and its allowed effort levels.
type ModelGroup struct {
	Base    string
	Efforts []string
}

// AllModelGroups returns the full catalog of models with their effort variants.
func AllModelGroups() []ModelGroup {
	return []ModelGroup{
		{Base: "gpt-5", Efforts: []string{"high", "medium", "low", "minimal"}},
		{Base: "gpt-5.1", Efforts: []string{"high", "medium", "low"}},
		{Base: "gpt-5.2", Efforts: []string{"xhigh", "high", "medium", "low"}},
		{Base: "gpt-5-codex", Efforts: []string{"high", "medium", "low"}},
		{Base: "gpt-5.1-codex", Efforts: []string{"high", "medium", "low"}},
		{Base: "gpt-5.1-codex-max", Efforts: []string{"xhigh", "high", "medium", "low"}},
		{Base: "gpt-5.1-codex-mini", Efforts: nil},
		{Base: "codex-mini", Efforts: nil},
	}
}

// ModelCatalog returns all model IDs. If exposeVariants is true, also includes effort-level variants.
func ModelCatalog(exposeVariants bool) []string {
	var ids []string
	for _, g := range AllModelGroups() {
		ids = append(ids, g.Base)
		if exposeVariants {
			for _, e := range g.Efforts {
				ids = append(ids, g.Base+"-"+e)
			}
		}
	}
	return ids
}

// vendorAliases maps client-side model family prefixes to upstream models.
// Checked in order against the cleaned, lower-cased name.
var vendorAliases = []struct {
	prefix string
	target string
}{
	{"claude-haiku", "gpt-5.1-codex-mini"},
	{"claude-sonnet", "gpt-5.1-codex"},
	{"claude-opus", "gpt-5.1"},
}

var modelMapping = map[string]string{
	"gpt5":               "gpt-5",
	"gpt-5-latest":       "gpt-5",
	"gpt-5":              "gpt-5",
	"gpt5.1":             "gpt-5.1",
	"gpt-5.1":            "gpt-5.1",
	"gpt5.2":             "gpt-5.2",
	"gpt-5.2":            "gpt-5.2",
	"gpt-5.2-latest":     "gpt-5.2",
	"gpt5-codex":         "gpt-5-codex",
	"gpt-5-codex":        "gpt-5-codex",
	"gpt-5-codex-latest": "gpt-5-codex",
	"gpt5.1-codex":       "gpt-5.1-codex",
	"gpt-5.1-codex":      "gpt-5.1-codex",
	"gpt-5.1-codex-max":  "gpt-5.1-codex-max",
	"codex":              "codex-mini-latest",
	"codex-mini":         "codex-mini-latest",
	"codex-mini-latest":  "codex-mini-latest",
	"gpt5.1-codex-mini":  "gpt-5.1-codex-mini",
	"gpt-5.1-codex-mini": "gpt-5.1-codex-mini",
}

var effortSuffixes = []string{"minimal", "low", "medium", "high", "xhigh"}

// NormalizeModelName maps a client model name to an upstream model.
// A non-empty debugModel always wins. A blank name yields "".
func NormalizeModelName(name, debugModel string) string {
	if d := strings.TrimSpace(debugModel); d != "" {
		return d
	}
	base := strings.TrimSpace(strings.SplitN(name, ":", 2)[0])
	if base == "" {
		return ""
	}

	lowered := strings.ToLower(base)
	for _, sep := range []string{"-", "_"} {
		for _, effort := range effortSuffixes {
			suffix := sep + effort
			if strings.HasSuffix(lowered, suffix) {
				base = base[:len(base)-len(suffix)]
				lowered = strings.ToLower(base)
				break
			}
		}
	}

	if target, ok := vendorAlias(lowered); ok {
		return target
	}
	if mapped, ok := modelMapping[lowered]; ok {
		return mapped
	}
	return base
}

// vendorAlias resolves claude-* names. Besides the family prefixes it also
// accepts dated ids such as "claude-3-5-sonnet-20241022".
func vendorAlias(lowered string) (string, bool) {
	lowered = strings.SplitN(lowered, "@", 2)[0]
	for _, a := range vendorAliases {
		if strings.HasPrefix(lowered, a.prefix) {
			return a.target, true
		}
	}
	if !strings.HasPrefix(lowered, "claude-") {
		return "", false
	}
	for _, a := range vendorAliases {
		family := strings.TrimPrefix(a.prefix, "claude-")
		if strings.Contains(lowered, family) {
			return a.target, true
		}
	}
	return "", false
}

// AllowedEfforts returns the set of valid reasoning effort levels for a model.
func AllowedEfforts(model string) map[string]bool {
	base := strings.ToLower(strings.TrimSpace(model))
	if base == "" {
		return defaultEfforts()
	}
	normalized := strings.SplitN(base, ":", 2)[0]
	if strings.HasPrefix(normalized, "gpt-5.2") {
		return map[string]bool{"low": true, "medium": true, "high": true, "xhigh": true}
	}
	if strings.HasPrefix(normalized, "gpt-5.1-codex-max") {
		return map[string]bool{"low": true, "medium": true, "high": true, "xhigh": true}
	}
	if strings.HasPrefix(normalized, "gpt-5.1") {
		return map[string]bool{"low": true, "medium": true, "high": true}
	}
	return defaultEfforts()
}

func defaultEfforts() map[string]bool {
	return map[string]bool{"minimal": true, "low": true, "medium": true, "high": true, "xhigh": true}
}
