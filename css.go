package bookimport

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

// CSSOptions tunes ScopeCSS.
type CSSOptions struct {
	// PreventSmallFonts raises em/rem sizes below 1 and % sizes below 100.
	PreventSmallFonts bool

	// IgnoreFontFamily turns font-family into inherit in ordinary rules.
	IgnoreFontFamily bool
}

type ruleKind int

const (
	ruleSet ruleKind = iota
	atRule
)

type cssDecl struct {
	property  string
	value     string
	important bool
}

// cssRule is either a ruleset (selectors + declarations) or an at-rule
// (name + prelude, with nested rules, declarations, or no block at all).
type cssRule struct {
	kind      ruleKind
	selectors []string
	decls     []cssDecl
	name      string
	prelude   string
	rules     []*cssRule
	statement bool
}

// statementAtRules end with ";" instead of a block.
var statementAtRules = map[string]bool{"import": true, "charset": true, "namespace": true}

var fontSizePattern = regexp.MustCompile(`(?i)^\+?(\d+\.?\d*|\.\d+)(em|rem|%)$`)

// ScopeCSS rewrites a stylesheet so that it only applies inside container,
// a selector such as "div.book-content". A selector that is exactly body or
// html becomes container; every other selector is prefixed with container.
// Each comma-separated selector is handled on its own. Rules inside @media
// and similar blocks are scoped too; @keyframes, @font-face and @page are
// left alone.
//
// A stylesheet that cannot be parsed yields ErrCSSParse. Scoping is not
// idempotent: scoping twice prefixes twice.
func ScopeCSS(src, container string, opts CSSOptions) (string, error) {
	if err := checkBalanced(src); err != nil {
		return "", err
	}
	sheet, err := parser.Parse(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCSSParse, err)
	}

	if err := checkBlocks(sheet.Rules); err != nil {
		return "", err
	}

	rules := convertRules(sheet.Rules)
	scopeRules(rules, container, opts)

	var b strings.Builder
	renderRules(&b, rules, "")
	return b.String(), nil
}

// checkBlocks rejects selectors that are not followed by a block, which the
// parser only produces for trailing text.
func checkBlocks(rules []*css.Rule) error {
	for _, r := range rules {
		if r.Kind == css.QualifiedRule && r.Declarations == nil {
			return fmt.Errorf("%w: selector %q has no block", ErrCSSParse, r.Prelude)
		}
		if err := checkBlocks(r.Rules); err != nil {
			return err
		}
	}
	return nil
}

func convertRules(in []*css.Rule) []*cssRule {
	out := make([]*cssRule, 0, len(in))
	for _, r := range in {
		if r.Kind == css.QualifiedRule {
			rule := &cssRule{kind: ruleSet, decls: convertDecls(r.Declarations)}
			for _, s := range splitSelectors(r.Prelude) {
				if s = strings.TrimSpace(s); s != "" {
					rule.selectors = append(rule.selectors, s)
				}
			}
			if len(rule.selectors) > 0 {
				out = append(out, rule)
			}
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(r.Name, "@"))
		out = append(out, &cssRule{
			kind:      atRule,
			name:      name,
			prelude:   strings.TrimSpace(r.Prelude),
			decls:     convertDecls(r.Declarations),
			rules:     convertRules(r.Rules),
			statement: statementAtRules[name],
		})
	}
	return out
}

// splitSelectors splits a selector list at the commas that are not inside
// brackets, parentheses or quoted strings.
func splitSelectors(prelude string) []string {
	var (
		out   []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(prelude); i++ {
		c := prelude[i]
		switch {
		case c == '\\':
			i++
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '(':
			depth++
		case (c == ']' || c == ')') && depth > 0:
			depth--
		case c == ',' && depth == 0:
			out = append(out, prelude[start:i])
			start = i + 1
		}
	}
	return append(out, prelude[start:])
}

func convertDecls(in []*css.Declaration) []cssDecl {
	out := make([]cssDecl, 0, len(in))
	for _, d := range in {
		value := strings.TrimSpace(d.Value)
		important := d.Important
		if v, ok := cutSuffixFold(value, "!important"); ok {
			value, important = strings.TrimSpace(v), true
		}
		out = append(out, cssDecl{
			property:  strings.TrimSpace(d.Property),
			value:     value,
			important: important,
		})
	}
	return out
}

func cutSuffixFold(s, suffix string) (string, bool) {
	if len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return s[:len(s)-len(suffix)], true
	}
	return s, false
}

func scopeRules(rules []*cssRule, container string, opts CSSOptions) {
	for _, r := range rules {
		if r.kind == ruleSet {
			for i, s := range r.selectors {
				r.selectors[i] = scopeSelector(s, container)
			}
			adjustDeclarations(r.decls, opts)
			continue
		}
		// Keyframe selectors are offsets, not elements.
		if strings.HasSuffix(r.name, "keyframes") {
			continue
		}
		scopeRules(r.rules, container, opts)
	}
}

func scopeSelector(sel, container string) string {
	switch strings.ToLower(sel) {
	case "body", "html":
		return container
	}
	return container + " " + sel
}

func adjustDeclarations(decls []cssDecl, opts CSSOptions) {
	for i := range decls {
		switch strings.ToLower(decls[i].property) {
		case "font-size":
			if opts.PreventSmallFonts {
				decls[i].value = minimumFontSize(decls[i].value)
			}
		case "font-family":
			if opts.IgnoreFontFamily {
				decls[i].value = "inherit"
			}
		}
	}
}

// minimumFontSize clamps relative sizes: em and rem to at least 1, percent
// to at least 100. Other values pass through.
func minimumFontSize(v string) string {
	m := fontSizePattern.FindStringSubmatch(v)
	if m == nil {
		return v
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return v
	}
	unit := strings.ToLower(m[2])
	switch {
	case unit == "%" && n < 100:
		return "100%"
	case unit != "%" && n < 1:
		return "1" + unit
	}
	return v
}

func renderRules(b *strings.Builder, rules []*cssRule, indent string) {
	for _, r := range rules {
		b.WriteString(indent)
		if r.kind == ruleSet {
			b.WriteString(strings.Join(r.selectors, ", "))
			b.WriteByte(' ')
			renderDecls(b, r.decls)
			b.WriteByte('\n')
			continue
		}

		b.WriteString("@" + r.name)
		if r.prelude != "" {
			b.WriteString(" " + r.prelude)
		}
		switch {
		case r.statement:
			b.WriteString(";\n")
		case len(r.rules) > 0:
			b.WriteString(" {\n")
			renderRules(b, r.rules, indent+"  ")
			b.WriteString(indent + "}\n")
		default:
			b.WriteByte(' ')
			renderDecls(b, r.decls)
			b.WriteByte('\n')
		}
	}
}

func renderDecls(b *strings.Builder, decls []cssDecl) {
	if len(decls) == 0 {
		b.WriteString("{}")
		return
	}
	b.WriteString("{ ")
	for _, d := range decls {
		b.WriteString(d.property + ": " + d.value)
		if d.important {
			b.WriteString(" !important")
		}
		b.WriteString("; ")
	}
	b.WriteByte('}')
}

// checkBalanced rejects stylesheets whose braces do not pair up, ignoring
// braces inside strings and comments.
func checkBalanced(src string) error {
	depth := 0
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '\\':
			i++
		case '"', '\'':
			end := i + 1
			for end < len(src) && src[end] != c && src[end] != '\n' {
				if src[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(src) || src[end] != c {
				return fmt.Errorf("%w: unterminated string at offset %d", ErrCSSParse, i)
			}
			i = end
		case '/':
			if i+1 < len(src) && src[i+1] == '*' {
				end := strings.Index(src[i+2:], "*/")
				if end < 0 {
					return fmt.Errorf("%w: unterminated comment at offset %d", ErrCSSParse, i)
				}
				i += end + 3
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unexpected '}' at offset %d", ErrCSSParse, i)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: %d unclosed block(s)", ErrCSSParse, depth)
	}
	return nil
}
