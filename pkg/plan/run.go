package plan

import (
	"fmt"
	"path/filepath"

	"github.com/OpenTraceLab/rocketdma/internal/logger"
	"github.com/OpenTraceLab/rocketdma/pkg/xdma"
)

// Target runs the operations a plan can name. *rocket.Rocket satisfies it.
type Target interface {
	InitResultPage() (xdma.Outcome, error)
	Load(path string) ([]xdma.Outcome, error)
	Reload(path string) ([]xdma.Outcome, error)
	ReadResult(path string) (xdma.Outcome, error)
	Write(addr uint64, path string) (xdma.Outcome, error)
	Read(addr uint64, size int, path string) (xdma.Outcome, error)
}

// Run executes the steps in order and stops at the first failure. The
// outcomes of every completed transfer are returned either way.
func (p *Plan) Run(target Target) ([]xdma.Outcome, error) {
	var outcomes []xdma.Outcome
	for i, s := range p.Steps {
		logger.Info("Step %d/%d: %s", i+1, len(p.Steps), s)
		outs, err := p.runStep(target, s)
		outcomes = append(outcomes, outs...)
		if err != nil {
			return outcomes, fmt.Errorf("%s: %s: %w", s.Pos, s, err)
		}
	}
	return outcomes, nil
}

func (p *Plan) runStep(target Target, s *Step) ([]xdma.Outcome, error) {
	switch {
	case s.Clear != nil:
		return single(target.InitResultPage())
	case s.Load != nil:
		return target.Load(p.resolve(s.Load.Image))
	case s.Reset != nil:
		return target.Reload(p.resolveOptional(s.Reset.Image))
	case s.Write != nil:
		return single(target.Write(uint64(s.Write.Address), p.resolve(s.Write.Source)))
	case s.Read != nil:
		return single(target.Read(uint64(s.Read.Address), int(s.Read.Size), p.resolveOptional(s.Read.Destination)))
	case s.Result != nil:
		return single(target.ReadResult(p.resolveOptional(s.Result.Destination)))
	}
	return nil, fmt.Errorf("%w: empty step", ErrInvalidPlan)
}

func single(out xdma.Outcome, err error) ([]xdma.Outcome, error) {
	if err != nil {
		return nil, err
	}
	return []xdma.Outcome{out}, nil
}

func (p *Plan) resolve(path string) string {
	if p.Dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Dir, path)
}

func (p *Plan) resolveOptional(path *string) string {
	if path == nil {
		return ""
	}
	return p.resolve(*path)
}
