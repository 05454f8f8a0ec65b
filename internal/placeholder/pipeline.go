// Package placeholder derives custom article values through ordered
// transformation steps.
package placeholder

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"rss_relay/internal/model"
)

// ErrInvalidStep is returned for steps that cannot be applied.
var ErrInvalidStep = errors.New("invalid placeholder step")

// Key returns the article field name a placeholder is exposed under.
func Key(referenceName string) string {
	return model.CustomNamespace + referenceName
}

// Apply runs every placeholder against the article and returns the derived
// values keyed by their namespaced reference name. A failing placeholder
// yields an empty value and its error is joined into the returned error;
// the other placeholders are still computed.
func Apply(a model.Article, defs []model.CustomPlaceholder) (map[string]string, error) {
	out := make(map[string]string, len(defs))
	var errs []error
	for _, def := range defs {
		v, err := run(a.Value(def.SourceField), def.Steps)
		if err != nil {
			errs = append(errs, fmt.Errorf("placeholder %q: %w", def.ReferenceName, err))
			v = ""
		}
		out[Key(def.ReferenceName)] = v
	}
	return out, errors.Join(errs...)
}

// Inject returns a copy of the article carrying the placeholder values.
func Inject(a model.Article, defs []model.CustomPlaceholder) (model.Article, error) {
	if len(defs) == 0 {
		return a, nil
	}
	values, err := Apply(a, defs)
	return a.With(values), err
}

func run(value string, steps []model.PlaceholderStep) (string, error) {
	for i, step := range steps {
		next, err := applyStep(value, step)
		if err != nil {
			return "", fmt.Errorf("step %d: %w", i, err)
		}
		value = next
	}
	return value, nil
}

func applyStep(value string, step model.PlaceholderStep) (string, error) {
	switch step.Type {
	case model.StepRegex, "":
		re, err := compile(step.RegexSearch, step.RegexFlags)
		if err != nil {
			return "", err
		}
		return re.ReplaceAllString(value, expandTemplate(re, step.Replacement)), nil
	case model.StepUppercase:
		return strings.ToUpper(value), nil
	case model.StepLowercase:
		return strings.ToLower(value), nil
	case model.StepURLEncode:
		return url.QueryEscape(value), nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidStep, step.Type)
}

// expandTemplate converts a JavaScript style replacement string into the
// template syntax of Regexp.Expand. "$$" is a literal dollar, "$&" the whole
// match, "$<name>" a named group and "$n" or "$nn" a numbered group. A two
// digit reference falls back to one digit plus a literal when the pattern
// has fewer groups. Anything else that starts with "$" is kept as text.
func expandTemplate(re *regexp.Regexp, repl string) string {
	groups := re.NumSubexp()
	named := slices.ContainsFunc(re.SubexpNames(), func(n string) bool { return n != "" })

	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		if i+1 == len(repl) {
			b.WriteString("$$")
			continue
		}

		next := repl[i+1]
		switch {
		case next == '$':
			b.WriteString("$$")
			i++
		case next == '&':
			b.WriteString("${0}")
			i++
		case next == '<' && named:
			end := strings.IndexByte(repl[i+2:], '>')
			if end < 0 {
				b.WriteString("$$")
				continue
			}
			fmt.Fprintf(&b, "${%s}", repl[i+2:i+2+end])
			i += end + 2
		case isDigit(next):
			n := int(next - '0')
			if i+2 < len(repl) && isDigit(repl[i+2]) {
				if nn := n*10 + int(repl[i+2]-'0'); nn >= 1 && nn <= groups {
					fmt.Fprintf(&b, "${%d}", nn)
					i += 2
					continue
				}
			}
			if n >= 1 && n <= groups {
				fmt.Fprintf(&b, "${%d}", n)
				i++
				continue
			}
			b.WriteString("$$")
		default:
			b.WriteString("$$")
		}
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// compile builds a regular expression from a pattern and JavaScript style
// flags. Replacement is always global, so "g" is accepted and ignored.
func compile(pattern, flags string) (*regexp.Regexp, error) {
	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), f) {
				inline.WriteRune(f)
			}
		case 'g', 'u':
		default:
			return nil, fmt.Errorf("%w: unsupported flag %q", ErrInvalidStep, f)
		}
	}
	if inline.Len() > 0 {
		pattern = "(?" + inline.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStep, err)
	}
	return re, nil
}

// Validate reports the first step of a placeholder that cannot be applied.
func Validate(def model.CustomPlaceholder) error {
	if def.ReferenceName == "" {
		return fmt.Errorf("%w: empty reference name", ErrInvalidStep)
	}
	_, err := run("", def.Steps)
	return err
}
