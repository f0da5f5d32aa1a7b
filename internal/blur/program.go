package blur

import (
	"fmt"

	"github.com/cwbudde/clblur/internal/compute"
)

// Kernel is a compiled entry point with arguments addressable by name or
// position.
type Kernel struct {
	k      compute.Kernel
	params []string
	index  map[string]int
}

// BuildKernel compiles source on cc and instantiates entry, whose
// parameters must be exactly params. Program and kernel are owned by cc.
func BuildKernel(cc *ComputeContext, source, entry string, params []string) (*Kernel, error) {
	prog, err := cc.Build(source)
	if err != nil {
		return nil, err
	}

	k, err := cc.CreateKernel(prog, entry)
	if err != nil {
		return nil, err
	}

	if n := k.NumArgs(); n != len(params) {
		return nil, stageError(ErrCompile, "create kernel",
			fmt.Errorf("entry %s takes %d arguments, expected %d", entry, n, len(params)))
	}

	index := make(map[string]int, len(params))
	for i, p := range params {
		index[p] = i
	}
	return &Kernel{k: k, params: params, index: index}, nil
}

// Name returns the entry point name.
func (k *Kernel) Name() string { return k.k.Name() }

// Set binds the named parameter.
func (k *Kernel) Set(name string, value any) error {
	i, ok := k.index[name]
	if !ok {
		return fmt.Errorf("%w: kernel %s has no parameter %q", compute.ErrInvalidArg, k.k.Name(), name)
	}
	if err := k.k.SetArg(i, value); err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	return nil
}

// SetArgs binds all parameters positionally.
func (k *Kernel) SetArgs(values ...any) error {
	if len(values) != len(k.params) {
		return fmt.Errorf("%w: %d values for %d parameters", compute.ErrInvalidArg, len(values), len(k.params))
	}
	for i, v := range values {
		if err := k.Set(k.params[i], v); err != nil {
			return err
		}
	}
	return nil
}
