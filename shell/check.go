package shell

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

func parse(cmd string) (*syntax.File, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	return parser.Parse(strings.NewReader(cmd), "")
}

// Check reports whether cmd parses as bash. A failure is advisory only:
// the model may emit syntax for a different shell.
func Check(cmd string) error {
	if _, err := parse(cmd); err != nil {
		return fmt.Errorf("command does not parse as bash: %w", err)
	}
	return nil
}
