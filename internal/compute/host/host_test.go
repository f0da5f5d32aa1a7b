package host

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cwbudde/clblur/internal/compute"
)

const fillSource = `#define FILL_SCALE 3

// writes value*FILL_SCALE to every element of a 1D buffer
__kernel void fill(__global int* out, int value) {
    out[get_global_id(0)] = value * FILL_SCALE;
}
`

// fillKernel writes value*FILL_SCALE into every byte of out.
func fillKernel(calls *atomic.Int64) KernelDef {
	return KernelDef{
		Name:   "fill",
		Params: []Param{{Name: "out", Kind: ParamBufferOut}, {Name: "value", Kind: ParamInt}},
		Bind: func(defines Defines, args []Arg) (WorkItem, error) {
			scale, err := defines.Int("FILL_SCALE")
			if err != nil {
				return nil, err
			}
			out, v := args[0].Mem, byte(args[1].Int)*byte(scale)
			return func(x, _ int) {
				if calls != nil {
					calls.Add(1)
				}
				out[x] = v
			}, nil
		},
	}
}

func newTestContext(t *testing.T, opts ...Option) (compute.Context, *Driver) {
	t.Helper()

	drv := NewDriver([]KernelDef{fillKernel(nil)}, opts...)
	platforms, err := drv.Platforms()
	if err != nil {
		t.Fatalf("Platforms failed: %v", err)
	}
	if len(platforms) != 1 || len(platforms[0].Devices()) != 1 {
		t.Fatalf("expected one platform with one device")
	}
	ctx, err := platforms[0].Devices()[0].NewContext()
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	t.Cleanup(ctx.Release)
	return ctx, drv
}

func TestDeviceInfo(t *testing.T) {
	drv := NewDriver(nil, WithWorkers(2), WithMemoryLimit(1<<20))
	platforms, _ := drv.Platforms()
	info := platforms[0].Devices()[0].Info()

	if info.Type != compute.DeviceTypeCPU {
		t.Errorf("Type = %s, want CPU", info.Type)
	}
	if info.MaxComputeUnits != 2 {
		t.Errorf("MaxComputeUnits = %d, want 2", info.MaxComputeUnits)
	}
	if info.GlobalMemSize != 1<<20 {
		t.Errorf("GlobalMemSize = %d, want %d", info.GlobalMemSize, 1<<20)
	}

	all, err := compute.EnumeratePlatforms(drv)
	if err != nil {
		t.Fatalf("EnumeratePlatforms failed: %v", err)
	}
	if len(all) != 1 || all[0].Driver != DriverName || len(all[0].Devices) != 1 {
		t.Fatalf("unexpected enumeration %+v", all)
	}
}

func TestDispatchRunsEveryWorkItem(t *testing.T) {
	var calls atomic.Int64
	drv := NewDriver([]KernelDef{fillKernel(&calls)}, WithWorkers(4))
	platforms, _ := drv.Platforms()
	ctx, err := platforms[0].Devices()[0].NewContext()
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	defer ctx.Release()

	buf, err := ctx.CreateBuffer(compute.MemWriteOnly, 64)
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	prog, err := ctx.CreateProgram(fillSource)
	if err != nil {
		t.Fatalf("CreateProgram failed: %v", err)
	}
	k, err := prog.CreateKernel("fill")
	if err != nil {
		t.Fatalf("CreateKernel failed: %v", err)
	}
	if err := k.SetArg(0, buf); err != nil {
		t.Fatalf("SetArg 0: %v", err)
	}
	if err := k.SetArg(1, int32(5)); err != nil {
		t.Fatalf("SetArg 1: %v", err)
	}

	q := ctx.Queue()
	if err := q.EnqueueNDRange(k, []int{64}, []int{16}); err != nil {
		t.Fatalf("EnqueueNDRange failed: %v", err)
	}
	if err := q.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	out := make([]byte, 64)
	if err := q.ReadBuffer(buf, out); err != nil {
		t.Fatalf("ReadBuffer failed: %v", err)
	}
	for i, v := range out {
		if v != 15 {
			t.Fatalf("out[%d] = %d, want 15", i, v)
		}
	}
	if calls.Load() != 64 {
		t.Fatalf("ran %d work-items, want 64", calls.Load())
	}
}

func TestArgumentsSnapshotAtEnqueue(t *testing.T) {
	ctx, _ := newTestContext(t)
	a, _ := ctx.CreateBuffer(compute.MemReadWrite, 8)
	b, _ := ctx.CreateBuffer(compute.MemReadWrite, 8)
	prog, err := ctx.CreateProgram(fillSource)
	if err != nil {
		t.Fatalf("CreateProgram failed: %v", err)
	}
	k, _ := prog.CreateKernel("fill")

	q := ctx.Queue()
	_ = k.SetArg(0, a)
	_ = k.SetArg(1, int32(1))
	if err := q.EnqueueNDRange(k, []int{8}, nil); err != nil {
		t.Fatalf("EnqueueNDRange a: %v", err)
	}
	_ = k.SetArg(0, b)
	_ = k.SetArg(1, int32(2))
	if err := q.EnqueueNDRange(k, []int{8}, nil); err != nil {
		t.Fatalf("EnqueueNDRange b: %v", err)
	}
	if err := q.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got := make([]byte, 8)
	_ = q.ReadBuffer(a, got)
	if got[0] != 3 {
		t.Errorf("a[0] = %d, want 3", got[0])
	}
	_ = q.ReadBuffer(b, got)
	if got[0] != 6 {
		t.Errorf("b[0] = %d, want 6", got[0])
	}
}

func TestGridValidation(t *testing.T) {
	tests := []struct {
		name   string
		global []int
		local  []int
		ok     bool
	}{
		{"1D no local", []int{10}, nil, true},
		{"2D exact", []int{16, 8}, []int{8, 4}, true},
		{"not a multiple", []int{13, 8}, []int{8, 4}, false},
		{"dimension mismatch", []int{16, 8}, []int{8}, false},
		{"zero global", []int{0}, nil, false},
		{"three dimensions", []int{2, 2, 2}, nil, false},
		{"group too large", []int{64, 64}, []int{64, 64}, false},
	}

	for _, tt := range tests {
		_, err := newGrid(tt.global, tt.local)
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, compute.ErrInvalidWorkGroup) {
			t.Errorf("%s: err = %v, want ErrInvalidWorkGroup", tt.name, err)
		}
	}
}

func TestSetArgValidation(t *testing.T) {
	ctx, _ := newTestContext(t)
	other, _ := newTestContext(t)

	ro, _ := ctx.CreateBuffer(compute.MemReadOnly, 8)
	rw, _ := ctx.CreateBuffer(compute.MemReadWrite, 8)
	foreign, _ := other.CreateBuffer(compute.MemReadWrite, 8)

	prog, err := ctx.CreateProgram(fillSource)
	if err != nil {
		t.Fatalf("CreateProgram failed: %v", err)
	}
	k, _ := prog.CreateKernel("fill")

	tests := []struct {
		name  string
		index int
		value any
		ok    bool
	}{
		{"read-write output", 0, rw, true},
		{"read-only output", 0, ro, false},
		{"foreign buffer", 0, foreign, false},
		{"scalar for buffer", 0, int32(1), false},
		{"int scalar", 1, int32(1), true},
		{"float for int", 1, float32(1), false},
		{"unsupported type", 1, "x", false},
		{"index out of range", 2, int32(1), false},
	}

	for _, tt := range tests {
		err := k.SetArg(tt.index, tt.value)
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, compute.ErrInvalidArg) {
			t.Errorf("%s: err = %v, want ErrInvalidArg", tt.name, err)
		}
	}
}

func TestUnsetArgumentRejected(t *testing.T) {
	ctx, _ := newTestContext(t)
	prog, _ := ctx.CreateProgram(fillSource)
	k, _ := prog.CreateKernel("fill")

	err := ctx.Queue().EnqueueNDRange(k, []int{4}, nil)
	if !errors.Is(err, compute.ErrInvalidArg) {
		t.Fatalf("err = %v, want ErrInvalidArg", err)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"unknown entry", "__kernel void other(__global int* out) {}", "no host implementation"},
		{"wrong arity", "__kernel void fill(__global int* out) {}", "declares 1 parameters"},
		{"scalar for buffer", "__kernel void fill(int out, int value) {}", "does not match"},
		{"unbalanced", "__kernel void fill(__global int* out, int value) {\n", "unbalanced"},
		{"empty", "// nothing here\n", "no __kernel entry points"},
	}

	ctx, _ := newTestContext(t)
	for _, tt := range tests {
		_, err := ctx.CreateProgram(tt.source)
		var buildErr *compute.BuildError
		if !errors.As(err, &buildErr) {
			t.Errorf("%s: err = %v, want *BuildError", tt.name, err)
			continue
		}
		if !strings.Contains(buildErr.Log, tt.want) || !strings.HasPrefix(buildErr.Log, "<source>:") {
			t.Errorf("%s: log %q, want it to mention %q", tt.name, buildErr.Log, tt.want)
		}
	}
}

func TestBodyFingerprint(t *testing.T) {
	base := BodyFingerprint("out[get_global_id(0)] = value * FILL_SCALE;")
	if got := BodyFingerprint("\n  out[get_global_id(0)]   =\tvalue * FILL_SCALE; // scaled\n/* done */"); got != base {
		t.Errorf("layout and comments changed the fingerprint: %s != %s", got, base)
	}
	if got := BodyFingerprint("out[get_global_id(0)] = value + FILL_SCALE;"); got == base {
		t.Error("different statements share a fingerprint")
	}
}

func TestBuildChecksKernelBody(t *testing.T) {
	def := fillKernel(nil)
	def.Body = BodyFingerprint("\n    out[get_global_id(0)] = value * FILL_SCALE;\n")
	drv := NewDriver([]KernelDef{def})
	platforms, _ := drv.Platforms()
	ctx, err := platforms[0].Devices()[0].NewContext()
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	defer ctx.Release()

	if _, err := ctx.CreateProgram(fillSource); err != nil {
		t.Fatalf("matching body rejected: %v", err)
	}

	edited := strings.Replace(fillSource, "value * FILL_SCALE", "value * FILL_SCALE + missing", 1)
	_, err = ctx.CreateProgram(edited)
	var buildErr *compute.BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("edited body: err = %v, want *BuildError", err)
	}
	if !strings.HasPrefix(buildErr.Log, "<source>:4:") || !strings.Contains(buildErr.Log, "body of kernel 'fill'") {
		t.Errorf("log = %q", buildErr.Log)
	}

	// Braces inside comments do not end the body.
	commented := strings.Replace(fillSource, "value * FILL_SCALE;", "value * FILL_SCALE; // }", 1)
	if _, err := ctx.CreateProgram(commented); err != nil {
		t.Errorf("commented brace rejected: %v", err)
	}
}

func TestMemoryLimit(t *testing.T) {
	ctx, drv := newTestContext(t, WithMemoryLimit(100))

	a, err := ctx.CreateBuffer(compute.MemReadWrite, 60)
	if err != nil {
		t.Fatalf("first buffer: %v", err)
	}
	if _, err := ctx.CreateBuffer(compute.MemReadWrite, 60); !errors.Is(err, compute.ErrOutOfMemory) {
		t.Fatalf("second buffer: err = %v, want ErrOutOfMemory", err)
	}

	a.Release()
	a.Release()
	if _, err := ctx.CreateBuffer(compute.MemReadWrite, 60); err != nil {
		t.Fatalf("buffer after release: %v", err)
	}
	if _, buffers := drv.Live(); buffers != 1 {
		t.Fatalf("live buffers = %d, want 1", buffers)
	}
}

func TestTransfers(t *testing.T) {
	ctx, _ := newTestContext(t)
	buf, _ := ctx.CreateBuffer(compute.MemReadOnly, 4)
	q := ctx.Queue()

	if err := q.WriteBuffer(buf, []byte{1, 2, 3, 4, 5}); !errors.Is(err, compute.ErrSizeMismatch) {
		t.Fatalf("oversized write: err = %v, want ErrSizeMismatch", err)
	}
	if err := q.WriteBuffer(buf, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	got := make([]byte, 4)
	if err := q.ReadBuffer(buf, got); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if string(got) != "\x01\x02\x03\x04" {
		t.Fatalf("read back %v", got)
	}

	buf.Release()
	if err := q.ReadBuffer(buf, got); !errors.Is(err, compute.ErrReleased) {
		t.Fatalf("read after release: err = %v, want ErrReleased", err)
	}
}

func TestWorkItemPanicIsReported(t *testing.T) {
	boom := KernelDef{
		Name:   "fill",
		Params: []Param{{Name: "out", Kind: ParamBufferOut}, {Name: "value", Kind: ParamInt}},
		Bind: func(_ Defines, args []Arg) (WorkItem, error) {
			out := args[0].Mem
			return func(x, _ int) { out[x+1000] = 1 }, nil
		},
	}
	drv := NewDriver([]KernelDef{boom})
	platforms, _ := drv.Platforms()
	ctx, _ := platforms[0].Devices()[0].NewContext()
	defer ctx.Release()

	buf, _ := ctx.CreateBuffer(compute.MemReadWrite, 4)
	prog, err := ctx.CreateProgram(fillSource)
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}
	k, _ := prog.CreateKernel("fill")
	_ = k.SetArg(0, buf)
	_ = k.SetArg(1, int32(0))

	q := ctx.Queue()
	if err := q.EnqueueNDRange(k, []int{4}, nil); err != nil {
		t.Fatalf("EnqueueNDRange: %v", err)
	}
	if err := q.Finish(); !errors.Is(err, errWorkItemFault) {
		t.Fatalf("Finish: err = %v, want work-item fault", err)
	}
	if err := q.Finish(); err != nil {
		t.Fatalf("second Finish: err = %v, want nil", err)
	}
}

func TestReleasedContext(t *testing.T) {
	drv := NewDriver([]KernelDef{fillKernel(nil)})
	platforms, _ := drv.Platforms()
	ctx, _ := platforms[0].Devices()[0].NewContext()
	ctx.Release()
	ctx.Release()

	if _, err := ctx.CreateBuffer(compute.MemReadWrite, 4); !errors.Is(err, compute.ErrReleased) {
		t.Fatalf("CreateBuffer: err = %v, want ErrReleased", err)
	}
	if contexts, _ := drv.Live(); contexts != 0 {
		t.Fatalf("live contexts = %d, want 0", contexts)
	}
}
