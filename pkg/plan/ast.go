package plan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// Plan is a parsed transfer plan.
type Plan struct {
	Steps []*Step

	// Dir is the directory relative paths resolve against. ParseFile sets
	// it to the plan's own directory.
	Dir string
}

// script is the grammar root.
type script struct {
	Steps []*Step `@@*`
}

// Step is one statement. Exactly one field is set.
type Step struct {
	Pos lexer.Position

	Clear  *ClearStep  `  @@`
	Load   *LoadStep   `| @@`
	Reset  *ResetStep  `| @@`
	Write  *WriteStep  `| @@`
	Read   *ReadStep   `| @@`
	Result *ResultStep `| @@`
}

// ClearStep zeroes the result page.
// Example: clear
type ClearStep struct {
	Keyword string `@KwClear`
}

// LoadStep loads a program image and resets the core.
// Example: load "bbl.bin"
type LoadStep struct {
	Image string `KwLoad @String`
}

// ResetStep resets the core, reloading an image first when one is named.
// Example: reset
type ResetStep struct {
	Keyword string  `@KwReset`
	Image   *string `@String?`
}

// WriteStep copies a file to a card address.
// Example: write 0x80001000 "patch.bin"
type WriteStep struct {
	Address Number `KwWrite @Number`
	Source  string `@String`
}

// ReadStep copies bytes from a card address. Without a destination the
// region is treated as a result page.
// Example: read 0xD0000000 4096 "page.bin"
type ReadStep struct {
	Address     Number  `KwRead @Number`
	Size        Number  `@Number`
	Destination *string `@String?`
}

// ResultStep reads the result page.
// Example: result "out.txt"
type ResultStep struct {
	Keyword     string  `@KwResult`
	Destination *string `@String?`
}

// Number is an unsigned integer literal in any Go base prefix.
type Number uint64

// Capture implements participle.Capture.
func (n *Number) Capture(values []string) error {
	v, err := strconv.ParseUint(values[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", values[0], err)
	}
	*n = Number(v)
	return nil
}

// String renders the step back in plan syntax.
func (s *Step) String() string {
	switch {
	case s.Clear != nil:
		return "clear"
	case s.Load != nil:
		return "load " + strconv.Quote(s.Load.Image)
	case s.Reset != nil:
		return joinOptional("reset", s.Reset.Image)
	case s.Write != nil:
		return fmt.Sprintf("write 0x%X %s", uint64(s.Write.Address), strconv.Quote(s.Write.Source))
	case s.Read != nil:
		return joinOptional(fmt.Sprintf("read 0x%X %d", uint64(s.Read.Address), uint64(s.Read.Size)), s.Read.Destination)
	case s.Result != nil:
		return joinOptional("result", s.Result.Destination)
	}
	return "<empty>"
}

// String renders the whole plan, one step per line.
func (p *Plan) String() string {
	var b strings.Builder
	for _, s := range p.Steps {
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func joinOptional(head string, arg *string) string {
	if arg == nil {
		return head
	}
	return head + " " + strconv.Quote(*arg)
}
