package plan

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// PlanLexer tokenizes transfer plans. Keywords are case-insensitive and
// statements are separated by whitespace, so one statement per line is a
// convention rather than a rule.
var PlanLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Shell style comments
	{Name: "Comment", Pattern: `#[^\n]*`},

	{Name: "Whitespace", Pattern: `[\s\t\n\r;]+`},

	// Statements
	{Name: "KwClear", Pattern: `(?i)\bCLEAR\b`},
	{Name: "KwLoad", Pattern: `(?i)\bLOAD\b`},
	{Name: "KwReset", Pattern: `(?i)\bRESET\b`},
	{Name: "KwWrite", Pattern: `(?i)\bWRITE\b`},
	{Name: "KwRead", Pattern: `(?i)\bREAD\b`},
	{Name: "KwResult", Pattern: `(?i)\bRESULT\b`},

	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},

	// Hex, octal, binary or decimal, with optional _ separators
	{Name: "Number", Pattern: `0[xX][0-9a-fA-F_]+|0[oO][0-7_]+|0[bB][01_]+|[0-9][0-9_]*`},

	// Words that are not keywords. No statement accepts them.
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
})
