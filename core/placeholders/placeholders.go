// Package placeholders lexes the {...} substitution syntax used by command
// exe, args and env values in lift manifests. Interpretation of the symbol
// between the braces is left to the evaluator.
package placeholders

import "fmt"

type Kind int

const (
	KindText Kind = iota
	KindLeftBrace
	KindPlaceholder
)

type Item struct {
	Kind   Kind
	Text   string
	Symbol string
}

// Parse splits text into literal runs, escaped left braces and placeholder
// symbols. {{ escapes a literal {. Braces nest within a placeholder so that
// symbols like scie.env.NAME={default} can carry placeholders of their own;
// the nested content is captured verbatim for the evaluator to recurse on.
func Parse(text string) ([]Item, error) {
	if text == "{" {
		return nil, fmt.Errorf("encountered text of '{'; if a literal '{' is intended, escape it like so: '{{'")
	}
	var items []Item
	var previous rune
	depth := 0
	start := 0
	for index, current := range text {
		switch {
		case current == '{' && depth == 0:
			if index-start > 0 {
				items = append(items, Item{Kind: KindText, Text: text[start:index]})
			}
			previous = '{'
			depth = 1
			start = index + 1
		case current == '{' && depth == 1 && previous == '{' && index == start:
			items = append(items, Item{Kind: KindLeftBrace})
			depth = 0
			start = index + 1
		case current == '{':
			previous = '{'
			depth++
		case current == '}' && depth > 1:
			previous = '}'
			depth--
		case current == '}' && depth == 1:
			symbol := text[start:index]
			if symbol == "" {
				return nil, fmt.Errorf("encountered placeholder '{}' at %d in %q; placeholders must have names", index-1, text)
			}
			items = append(items, Item{Kind: KindPlaceholder, Symbol: symbol})
			previous = '}'
			depth = 0
			start = index + 1
		default:
			previous = current
		}
	}
	if len(items) == 0 || len(text)-start > 0 {
		items = append(items, Item{Kind: KindText, Text: text[start:]})
	}
	return items, nil
}
