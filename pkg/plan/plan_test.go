package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/rocketdma/pkg/rocket"
	"github.com/OpenTraceLab/rocketdma/pkg/xdma"
)

const samplePlan = `
# boot the bbl and collect its answer
clear
load "bbl.bin"
reset
RESET "bbl.bin"
write 0x80001000 "patch.bin"
read 0xD000_0000 4096 "page.bin"
read 3489660928 16; result
result "out.txt"
`

func TestParseSample(t *testing.T) {
	p, err := ParseString(samplePlan)
	require.NoError(t, err)
	require.Len(t, p.Steps, 9)

	assert.NotNil(t, p.Steps[0].Clear)
	assert.Equal(t, "bbl.bin", p.Steps[1].Load.Image)
	assert.Nil(t, p.Steps[2].Reset.Image)
	require.NotNil(t, p.Steps[3].Reset.Image)
	assert.Equal(t, "bbl.bin", *p.Steps[3].Reset.Image)

	assert.Equal(t, Number(0x80001000), p.Steps[4].Write.Address)
	assert.Equal(t, "patch.bin", p.Steps[4].Write.Source)

	assert.Equal(t, Number(0xD0000000), p.Steps[5].Read.Address)
	assert.Equal(t, Number(4096), p.Steps[5].Read.Size)
	assert.Equal(t, "page.bin", *p.Steps[5].Read.Destination)

	assert.Equal(t, Number(0xD0000000), p.Steps[6].Read.Address)
	assert.Nil(t, p.Steps[6].Read.Destination)

	assert.Nil(t, p.Steps[7].Result.Destination)
	assert.Equal(t, "out.txt", *p.Steps[8].Result.Destination)

	assert.Equal(t, 3, p.Steps[0].Pos.Line)
	assert.Equal(t, 9, p.Steps[6].Pos.Line)
}

func TestParseEmptyPlan(t *testing.T) {
	p, err := ParseString("# nothing to do\n\n")
	require.NoError(t, err)
	assert.Empty(t, p.Steps)
}

func TestStepString(t *testing.T) {
	p, err := ParseString(samplePlan)
	require.NoError(t, err)

	want := `clear
load "bbl.bin"
reset
reset "bbl.bin"
write 0x80001000 "patch.bin"
read 0xD0000000 4096 "page.bin"
read 0xD0000000 16
result
result "out.txt"
`
	assert.Equal(t, want, p.String())

	again, err := ParseString(p.String())
	require.NoError(t, err)
	assert.Equal(t, p.String(), again.String())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
		invalid bool
	}{
		{name: "unknown statement", input: "clear\nerase\n", wantMsg: "2:1"},
		{name: "load without image", input: "load\n", wantMsg: "parse error"},
		{name: "unquoted path", input: "load bbl.bin\n", wantMsg: "parse error"},
		{name: "write missing source", input: "write 0x10\n", wantMsg: "parse error"},
		{name: "read missing size", input: "read 0x10 \"x\"\n", wantMsg: "parse error"},
		{name: "number overflow", input: "read 0x1FFFFFFFFFFFFFFFF 1\n", wantMsg: "invalid number"},
		{name: "zero read size", input: "read 0x10 0\n", wantMsg: "read size", invalid: true},
		{name: "unseekable address", input: "write 0x8000000000000000 \"a\"\n", wantMsg: "not seekable", invalid: true},
		{name: "empty image", input: "load \"\"\n", wantMsg: "empty image", invalid: true},
		{name: "empty destination", input: "result \"\"\n", wantMsg: "empty destination", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, tt.invalid, errors.Is(err, ErrInvalidPlan))
		})
	}
}

func TestParseFileResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	planPath := filepath.Join(dir, "boot.plan")
	require.NoError(t, os.WriteFile(planPath, []byte("load \"bbl.bin\"\nresult \"/abs/out.txt\"\n"), 0o644))

	p, err := ParseFile(planPath)
	require.NoError(t, err)
	assert.Equal(t, dir, p.Dir)
	assert.Equal(t, filepath.Join(dir, "bbl.bin"), p.resolve("bbl.bin"))
	assert.Equal(t, "/abs/out.txt", p.resolve("/abs/out.txt"))

	_, err = ParseFile(filepath.Join(dir, "missing.plan"))
	assert.Error(t, err)
}

func TestParseFileErrorNamesFile(t *testing.T) {
	planPath := filepath.Join(t.TempDir(), "bad.plan")
	require.NoError(t, os.WriteFile(planPath, []byte("clear\nclear\nbogus\n"), 0o644))

	_, err := ParseFile(planPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.plan:3:1")
}

func TestRunAgainstSimulatedCard(t *testing.T) {
	dir := t.TempDir()
	image := []byte("rocket program image")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bbl.bin"), image, 0o644))

	sim := xdma.NewSimCard()
	target := rocket.New(xdma.NewEngine(sim), rocket.DefaultAddressMap)

	// The accelerator's answer, already sitting in the result region.
	answer := filepath.Join(dir, "answer.txt")
	page, err := xdma.EncodeResultPage(answer, []byte("42"))
	require.NoError(t, err)

	planPath := filepath.Join(dir, "boot.plan")
	require.NoError(t, os.WriteFile(planPath, []byte(`
load "bbl.bin"
read 0x80000000 20 "echo.bin"
`), 0o644))

	p, err := ParseFile(planPath)
	require.NoError(t, err)

	outs, err := p.Run(target)
	require.NoError(t, err)
	require.Len(t, outs, 3)
	assert.Equal(t, image, sim.Peek(rocket.DefaultProgramBase, len(image)))
	assert.Equal(t, []byte{rocket.ResetTrigger}, sim.Peek(rocket.DefaultResetBase, 1))

	echo, err := os.ReadFile(filepath.Join(dir, "echo.bin"))
	require.NoError(t, err)
	assert.Equal(t, image, echo)

	sim.Poke(rocket.DefaultResultBase, page)
	p, err = ParseString("result")
	require.NoError(t, err)
	outs, err = p.Run(target)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, answer, outs[0].Destination)
}

// fakeTarget records calls and fails the named operation.
type fakeTarget struct {
	calls  []string
	failOn string
}

var errBoom = errors.New("boom")

func (f *fakeTarget) call(name string) error {
	f.calls = append(f.calls, name)
	if name == f.failOn {
		return errBoom
	}
	return nil
}

func (f *fakeTarget) InitResultPage() (xdma.Outcome, error) {
	return xdma.Outcome{}, f.call("clear")
}

func (f *fakeTarget) Load(path string) ([]xdma.Outcome, error) {
	if err := f.call("load " + path); err != nil {
		return nil, err
	}
	return []xdma.Outcome{{}, {}}, nil
}

func (f *fakeTarget) Reload(path string) ([]xdma.Outcome, error) {
	if err := f.call("reload " + path); err != nil {
		return nil, err
	}
	return []xdma.Outcome{{}}, nil
}

func (f *fakeTarget) ReadResult(path string) (xdma.Outcome, error) {
	return xdma.Outcome{}, f.call("result " + path)
}

func (f *fakeTarget) Write(addr uint64, path string) (xdma.Outcome, error) {
	return xdma.Outcome{}, f.call("write " + path)
}

func (f *fakeTarget) Read(addr uint64, size int, path string) (xdma.Outcome, error) {
	return xdma.Outcome{}, f.call("read " + path)
}

func TestRunDispatchesEveryStep(t *testing.T) {
	p, err := ParseString(samplePlan)
	require.NoError(t, err)

	f := &fakeTarget{}
	outs, err := p.Run(f)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"clear",
		"load bbl.bin",
		"reload ",
		"reload bbl.bin",
		"write patch.bin",
		"read page.bin",
		"read ",
		"result ",
		"result out.txt",
	}, f.calls)
	assert.Len(t, outs, 10)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	p, err := ParseString("clear\nload \"a.bin\"\nresult\n")
	require.NoError(t, err)

	f := &fakeTarget{failOn: "load a.bin"}
	outs, err := p.Run(f)
	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "2:1")
	assert.Contains(t, err.Error(), `load "a.bin"`)
	assert.Equal(t, []string{"clear", "load a.bin"}, f.calls)
	assert.Len(t, outs, 1)
}
