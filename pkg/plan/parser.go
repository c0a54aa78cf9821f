package plan

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/participle/v2"
)

// ErrInvalidPlan marks plans that parse but cannot run.
var ErrInvalidPlan = errors.New("plan: invalid step")

var parser = participle.MustBuild[script](
	participle.Lexer(PlanLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
)

// Parse parses a plan from a reader. Relative paths resolve against the
// working directory.
func Parse(r io.Reader) (*Plan, error) {
	return parse("", r)
}

// ParseString parses a plan from a string.
func ParseString(input string) (*Plan, error) {
	return parse("", strings.NewReader(input))
}

// ParseFile parses a plan file. Relative paths in the plan resolve against
// the file's directory.
func ParseFile(filename string) (*Plan, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan: %w", err)
	}
	defer file.Close()

	p, err := parse(filename, file)
	if err != nil {
		return nil, err
	}
	p.Dir = filepath.Dir(filename)
	return p, nil
}

func parse(name string, r io.Reader) (*Plan, error) {
	s, err := parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	p := &Plan{Steps: s.Steps}
	if err := p.check(); err != nil {
		return nil, err
	}
	return p, nil
}

// check rejects values the grammar accepts but a transfer cannot use.
func (p *Plan) check() error {
	for _, s := range p.Steps {
		switch {
		case s.Read != nil:
			if s.Read.Size == 0 || uint64(s.Read.Size) > math.MaxInt32 {
				return fmt.Errorf("%s: %w: read size %d out of range", s.Pos, ErrInvalidPlan, uint64(s.Read.Size))
			}
			if err := checkAddress(s, s.Read.Address); err != nil {
				return err
			}
			if s.Read.Destination != nil && *s.Read.Destination == "" {
				return fmt.Errorf("%s: %w: empty destination", s.Pos, ErrInvalidPlan)
			}
		case s.Write != nil:
			if err := checkAddress(s, s.Write.Address); err != nil {
				return err
			}
			if s.Write.Source == "" {
				return fmt.Errorf("%s: %w: empty source", s.Pos, ErrInvalidPlan)
			}
		case s.Load != nil:
			if s.Load.Image == "" {
				return fmt.Errorf("%s: %w: empty image", s.Pos, ErrInvalidPlan)
			}
		case s.Reset != nil:
			if s.Reset.Image != nil && *s.Reset.Image == "" {
				return fmt.Errorf("%s: %w: empty image", s.Pos, ErrInvalidPlan)
			}
		case s.Result != nil:
			if s.Result.Destination != nil && *s.Result.Destination == "" {
				return fmt.Errorf("%s: %w: empty destination", s.Pos, ErrInvalidPlan)
			}
		}
	}
	return nil
}

func checkAddress(s *Step, addr Number) error {
	if uint64(addr) > math.MaxInt64 {
		return fmt.Errorf("%s: %w: address 0x%X is not seekable", s.Pos, ErrInvalidPlan, uint64(addr))
	}
	return nil
}
