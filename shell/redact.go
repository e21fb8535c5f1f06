// Package shell is the boundary between generated commands and the user's
// shell: syntax checks, log redaction and execution.
package shell

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Placeholders written in place of sensitive text.
const (
	RedactedName  = "REDACTED"
	RedactedValue = "***"
)

// publicVars are environment variables whose values are not secret and are
// left readable in logs.
var publicVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "LOGNAME": true,
	"TMPDIR": true, "XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true,
	"XDG_RUNTIME_DIR": true, "SHLVL": true, "LC_ALL": true,
}

// specialParams are positional and special shell parameters.
var specialParams = map[string]bool{
	"?": true, "!": true, "#": true, "@": true, "*": true,
	"-": true, "$": true, "_": true,
	"0": true, "1": true, "2": true, "3": true, "4": true,
	"5": true, "6": true, "7": true, "8": true, "9": true,
}

func keepParam(name string) bool {
	return publicVars[name] || specialParams[name] || name == RedactedName
}

// Redact masks sensitive variable references and assignment values in cmd so
// the command can be written to the log. $SECRET becomes $REDACTED and
// TOKEN=abc becomes TOKEN=***. Commands bash cannot parse are handled by a
// regular-expression pass.
func Redact(cmd string) string {
	prog, err := parse(cmd)
	if err != nil {
		return regexRedact(cmd)
	}

	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			if n.Param != nil && !keepParam(n.Param.Value) {
				n.Param.Value = RedactedName
			}
		case *syntax.Assign:
			if n.Name != nil && !publicVars[n.Name.Value] && n.Value != nil {
				n.Value.Parts = []syntax.WordPart{&syntax.Lit{Value: RedactedValue}}
			}
		}
		return true
	})

	var buf bytes.Buffer
	if err := syntax.NewPrinter(syntax.Indent(0)).Print(&buf, prog); err != nil {
		return regexRedact(cmd)
	}
	return strings.TrimRight(buf.String(), "\n")
}

var (
	reBraceVar  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	reSimpleVar = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	reAssign    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)
)

func regexRedact(cmd string) string {
	cmd = reBraceVar.ReplaceAllStringFunc(cmd, func(m string) string {
		if keepParam(reBraceVar.FindStringSubmatch(m)[1]) {
			return m
		}
		return "${" + RedactedName + "}"
	})
	cmd = reSimpleVar.ReplaceAllStringFunc(cmd, func(m string) string {
		if keepParam(reSimpleVar.FindStringSubmatch(m)[1]) {
			return m
		}
		return "$" + RedactedName
	})
	return reAssign.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reAssign.FindStringSubmatch(m)[1]
		if publicVars[name] {
			return m
		}
		return name + "=" + RedactedValue
	})
}
