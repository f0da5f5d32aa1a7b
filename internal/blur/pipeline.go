package blur

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/clblur/internal/compute"
)

// Axis selects the direction of a 1D pass.
type Axis int32

const (
	AxisHorizontal Axis = 0
	AxisVertical   Axis = 1
)

// Pass identifies one of the two dispatches.
type Pass int

const (
	Pass1 Pass = 1
	Pass2 Pass = 2
)

func (p Pass) String() string {
	switch p {
	case Pass1:
		return "pass 1 (horizontal)"
	case Pass2:
		return "pass 2 (vertical)"
	default:
		return fmt.Sprintf("pass %d", int(p))
	}
}

func (p Pass) axis() Axis {
	if p == Pass2 {
		return AxisVertical
	}
	return AxisHorizontal
}

// State is a step of the dispatch protocol.
type State int

const (
	StateUninitialized State = iota
	StateCompiled
	StatePass1Dispatched
	StatePass1Complete
	StatePass2Dispatched
	StatePass2Complete
	StateReadBack
)

var stateNames = [...]string{
	StateUninitialized:   "Uninitialized",
	StateCompiled:        "Compiled",
	StatePass1Dispatched: "Pass1Dispatched",
	StatePass1Complete:   "Pass1Complete",
	StatePass2Dispatched: "Pass2Dispatched",
	StatePass2Complete:   "Pass2Complete",
	StateReadBack:        "ReadBack",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Transition records one state change.
type Transition struct {
	From    State
	To      State
	At      time.Time
	Elapsed time.Duration
}

// Pipeline drives the two-pass dispatch protocol over one BufferSet:
// horizontal pass into the intermediate buffer, full barrier, vertical pass
// into the output buffer, full barrier, read-back.
type Pipeline struct {
	cc       *ComputeContext
	kernel   *Kernel
	bufs     *BufferSet
	local    [2]int
	global   [2]int
	state    State
	last     time.Time
	observer func(Transition)
}

// NewPipeline builds source on cc and returns a pipeline in StateCompiled.
func NewPipeline(cc *ComputeContext, source string, bufs *BufferSet, local [2]int, observer func(Transition)) (*Pipeline, error) {
	p := &Pipeline{
		cc:       cc,
		bufs:     bufs,
		local:    local,
		global:   [2]int{roundUp(bufs.width, local[0]), roundUp(bufs.height, local[1])},
		last:     time.Now(),
		observer: observer,
	}

	k, err := BuildKernel(cc, source, KernelEntry, kernelParams)
	if err != nil {
		return nil, err
	}
	p.kernel = k
	p.transition(StateCompiled)
	return p, nil
}

// State returns the current protocol state.
func (p *Pipeline) State() State { return p.state }

func (p *Pipeline) transition(to State) {
	now := time.Now()
	t := Transition{From: p.state, To: to, At: now, Elapsed: now.Sub(p.last)}
	p.state = to
	p.last = now
	slog.Debug("Pipeline transition", "from", t.From, "to", t.To, "elapsed", t.Elapsed)
	if p.observer != nil {
		p.observer(t)
	}
}

func (p *Pipeline) expect(want State, step string) error {
	if p.state != want {
		return stageError(ErrInvalidState, step, fmt.Errorf("in state %s, want %s", p.state, want))
	}
	return nil
}

// dispatch binds the pass's arguments and submits it over the full image.
func (p *Pipeline) dispatch(pass Pass) error {
	from, to := StateCompiled, StatePass1Dispatched
	src, dst := p.bufs.Input, p.bufs.Intermediate
	if pass == Pass2 {
		from, to = StatePass1Complete, StatePass2Dispatched
		src, dst = p.bufs.Intermediate, p.bufs.Output
	}
	if err := p.expect(from, "dispatch"); err != nil {
		return err
	}

	err := p.kernel.SetArgs(
		src,
		dst,
		p.bufs.Weights,
		int32(p.bufs.width),
		int32(p.bufs.height),
		int32(pass.axis()),
	)
	if err != nil {
		return &Error{Kind: ErrDispatch, Stage: "bind arguments", Pass: pass, Err: err}
	}

	if err := p.cc.Queue().EnqueueNDRange(p.kernel.k, p.global[:], p.local[:]); err != nil {
		return &Error{Kind: ErrDispatch, Stage: "enqueue", Pass: pass, Err: err}
	}
	slog.Debug("Enqueued kernel", "kernel", p.kernel.Name(), "pass", int(pass), "global", p.global, "local", p.local)
	p.transition(to)
	return nil
}

// barrier waits for every queued command. Pass 2 reads what pass 1 wrote,
// so nothing may be dispatched after pass 1 until this returns.
func (p *Pipeline) barrier(pass Pass) error {
	from, to := StatePass1Dispatched, StatePass1Complete
	if pass == Pass2 {
		from, to = StatePass2Dispatched, StatePass2Complete
	}
	if err := p.expect(from, "barrier"); err != nil {
		return err
	}
	if err := p.cc.Queue().Finish(); err != nil {
		return &Error{Kind: ErrDispatch, Stage: "execute", Pass: pass, Err: err}
	}
	p.transition(to)
	return nil
}

func (p *Pipeline) readBack(dst []byte) error {
	if err := p.expect(StatePass2Complete, "read back"); err != nil {
		return err
	}
	if err := p.bufs.ReadOutput(dst); err != nil {
		return err
	}
	p.transition(StateReadBack)
	return nil
}

// Execute runs both passes and reads the output into dst.
func (p *Pipeline) Execute(dst []byte) error {
	for _, pass := range []Pass{Pass1, Pass2} {
		if err := p.dispatch(pass); err != nil {
			return err
		}
		if err := p.barrier(pass); err != nil {
			return err
		}
	}
	return p.readBack(dst)
}

// GlobalSize returns the dispatched index space.
func (p *Pipeline) GlobalSize() [2]int { return p.global }

func roundUp(n, multiple int) int {
	return (n + multiple - 1) / multiple * multiple
}

// Result is the output of Run.
type Result struct {
	Image       Image
	Device      compute.DeviceInfo
	Platform    compute.PlatformInfo
	Transitions []Transition
}

// Run blurs img on the selected device. All device resources are released
// before it returns, on success and on every failure path.
func Run(img Image, cfg Config) (*Result, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Pick a device and open its context; everything below is released by Close
	sel, err := SelectDevice(cfg.Device, cfg.drivers()...)
	if err != nil {
		return nil, err
	}

	cc, err := NewComputeContext(sel.Device)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := cc.Close(); cerr != nil {
			slog.Warn("Releasing compute context", "err", cerr)
		}
	}()

	// Render the program text
	source, err := KernelSource(cfg.Radius)
	if err != nil {
		return nil, stageError(ErrCompile, "generate source", err)
	}
	if cfg.KernelDump != nil {
		if err := cfg.KernelDump(source); err != nil {
			slog.Warn("Could not save kernel source", "err", err)
		}
	}

	res := &Result{Device: cc.Device(), Platform: sel.Platform}
	observer := func(t Transition) {
		res.Transitions = append(res.Transitions, t)
		if cfg.Observer != nil {
			cfg.Observer(t)
		}
	}

	// Buffers and kernel exist before the upload
	taps := Taps(cfg.Radius)
	bufs, err := NewBufferSet(cc, img.Width, img.Height, taps)
	if err != nil {
		return nil, err
	}

	p, err := NewPipeline(cc, source, bufs, cfg.LocalSize, observer)
	if err != nil {
		return nil, err
	}

	if err := bufs.Upload(Weights(cfg.Radius, cfg.Sigma), img.Pix); err != nil {
		return nil, err
	}

	// Both passes, then read-back
	out := NewImage(img.Width, img.Height)
	if err := p.Execute(out.Pix); err != nil {
		return nil, err
	}
	res.Image = out
	return res, nil
}

// RunBlur blurs an RGBA8 buffer with a Gaussian of the given radius and
// sigma using default device selection. The result has the input's shape.
func RunBlur(pixels []byte, width, height, radius int, sigma float64) ([]byte, error) {
	cfg := DefaultConfig()
	cfg.Radius = radius
	cfg.Sigma = sigma

	res, err := Run(Image{Pix: pixels, Width: width, Height: height}, cfg)
	if err != nil {
		return nil, err
	}
	return res.Image.Pix, nil
}
