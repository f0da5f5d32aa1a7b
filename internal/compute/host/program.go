package host

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cwbudde/clblur/internal/compute"
)

// ParamKind describes how a kernel parameter is bound.
type ParamKind int

const (
	// ParamBufferIn is a buffer the kernel only reads.
	ParamBufferIn ParamKind = iota
	// ParamBufferOut is a buffer the kernel only writes.
	ParamBufferOut
	// ParamInt is a 32-bit signed scalar.
	ParamInt
	// ParamFloat is a 32-bit float scalar.
	ParamFloat
)

func (k ParamKind) isBuffer() bool { return k == ParamBufferIn || k == ParamBufferOut }

// Param is one declared kernel parameter.
type Param struct {
	Name string
	Kind ParamKind
}

// Arg is one bound kernel argument as seen by a KernelDef at dispatch time.
type Arg struct {
	Mem   []byte
	Int   int32
	Float float32
}

// WorkItem executes one work-item at global index (x, y).
type WorkItem func(x, y int)

// KernelDef is the Go implementation of a program entry point.
type KernelDef struct {
	Name   string
	Params []Param

	// Body is the BodyFingerprint of the entry point's source body that the
	// Go implementation mirrors. A program whose body differs fails to
	// build. Empty disables the check.
	Body string

	// Bind resolves the arguments of one dispatch and returns the work-item
	// body. Defines holds the program's preprocessor definitions.
	Bind func(defines Defines, args []Arg) (WorkItem, error)
}

// BodyFingerprint identifies a kernel body regardless of comments and
// whitespace layout.
func BodyFingerprint(body string) string {
	normalized := strings.Join(strings.Fields(stripComments(body)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}

// Defines are the object-like macros of a program source.
type Defines map[string]string

// Int parses the named macro as an integer.
func (d Defines) Int(name string) (int, error) {
	raw, ok := d[name]
	if !ok {
		return 0, fmt.Errorf("macro %s is not defined", name)
	}
	v, err := strconv.Atoi(strings.Trim(raw, "()"))
	if err != nil {
		return 0, fmt.Errorf("macro %s=%q is not an integer", name, raw)
	}
	return v, nil
}

var (
	defineRe = regexp.MustCompile(`^\s*#define\s+([A-Za-z_]\w*)\s+(.+?)\s*$`)
	entryRe  = regexp.MustCompile(`__kernel\s+void\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)
)

type program struct {
	ctx     *hostContext
	defines Defines
	entries map[string]KernelDef
}

// compile checks source and binds its entry points to registered kernels.
// Diagnostics use the "<source>:line: error: msg" shape of OpenCL build logs.
func compile(ctx *hostContext, source string) (*program, error) {
	var diags []string
	errorf := func(line int, format string, args ...any) {
		diags = append(diags, fmt.Sprintf("<source>:%d: error: %s", line, fmt.Sprintf(format, args...)))
	}

	defines := Defines{}
	lines := strings.Split(source, "\n")
	for _, line := range lines {
		if m := defineRe.FindStringSubmatch(line); m != nil {
			defines[m[1]] = m[2]
		}
	}

	if line, ok := checkBalanced(source); !ok {
		errorf(line, "unbalanced braces or parentheses")
	}

	code := stripComments(source)
	entries := make(map[string]KernelDef)
	for _, loc := range entryRe.FindAllStringSubmatchIndex(code, -1) {
		line := strings.Count(source[:loc[0]], "\n") + 1
		name := source[loc[2]:loc[3]]
		params := splitParams(source[loc[4]:loc[5]])

		def, ok := ctx.dev.drv.kernels[name]
		if !ok {
			errorf(line, "kernel '%s' has no host implementation", name)
			continue
		}
		if len(params) != len(def.Params) {
			errorf(line, "kernel '%s' declares %d parameters, host implementation takes %d", name, len(params), len(def.Params))
			continue
		}
		for i, p := range params {
			isPtr := strings.Contains(p, "*")
			if def.Params[i].Kind.isBuffer() != isPtr {
				errorf(line, "parameter %d of kernel '%s' (%s) does not match host parameter '%s'", i, name, p, def.Params[i].Name)
			}
		}
		if def.Body != "" {
			// An unterminated body is already reported as unbalanced.
			if body, ok := entryBody(code, loc[1]); ok {
				if got := BodyFingerprint(body); got != def.Body {
					errorf(line, "body of kernel '%s' does not match its host implementation (fingerprint %s, want %s)", name, got, def.Body)
					continue
				}
			}
		}
		entries[name] = def
	}

	if len(entries) == 0 && len(diags) == 0 {
		errorf(1, "no __kernel entry points found")
	}
	if len(diags) > 0 {
		return nil, &compute.BuildError{Log: strings.Join(diags, "\n")}
	}

	return &program{ctx: ctx, defines: defines, entries: entries}, nil
}

// checkBalanced reports the line of the first unbalanced brace or paren.
// Comments are skipped.
func checkBalanced(source string) (int, bool) {
	var stack []byte
	line := 1
	for i := 0; i < len(source); i++ {
		c := source[i]
		switch {
		case c == '\n':
			line++
		case c == '/' && i+1 < len(source) && source[i+1] == '/':
			for i < len(source) && source[i] != '\n' {
				i++
			}
			line++
		case c == '/' && i+1 < len(source) && source[i+1] == '*':
			end := strings.Index(source[i+2:], "*/")
			if end < 0 {
				return line, false
			}
			line += strings.Count(source[i:i+2+end], "\n")
			i += end + 3
		case c == '{' || c == '(':
			stack = append(stack, c)
		case c == '}' || c == ')':
			open := byte('{')
			if c == ')' {
				open = '('
			}
			if len(stack) == 0 || stack[len(stack)-1] != open {
				return line, false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 0 {
		return line, false
	}
	return 0, true
}

// stripComments blanks out comments, keeping every newline so offsets and
// line numbers still refer to the original source.
func stripComments(source string) string {
	b := []byte(source)
	for i := 0; i < len(b); i++ {
		if b[i] != '/' || i+1 >= len(b) {
			continue
		}
		switch b[i+1] {
		case '/':
			for ; i < len(b) && b[i] != '\n'; i++ {
				b[i] = ' '
			}
		case '*':
			end := strings.Index(source[i+2:], "*/")
			stop := len(b)
			if end >= 0 {
				stop = i + 2 + end + 2
			}
			for ; i < stop; i++ {
				if b[i] != '\n' {
					b[i] = ' '
				}
			}
			i--
		}
	}
	return string(b)
}

// entryBody returns the text between the braces of the entry point whose
// signature ends at from. code must be free of comments.
func entryBody(code string, from int) (string, bool) {
	open := strings.IndexByte(code[from:], '{')
	if open < 0 {
		return "", false
	}
	start := from + open
	depth := 0
	for i := start; i < len(code); i++ {
		switch code[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return code[start+1 : i], true
			}
		}
	}
	return "", false
}

func splitParams(list string) []string {
	list = strings.TrimSpace(list)
	if list == "" || list == "void" {
		return nil
	}
	parts := strings.Split(list, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	def, ok := p.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: no kernel named %q in program", compute.ErrInvalidArg, name)
	}
	return &kernel{prog: p, def: def, args: make([]any, len(def.Params))}, nil
}

func (p *program) Release() {}

type kernel struct {
	prog *program
	def  KernelDef
	args []any
}

func (k *kernel) Name() string { return k.def.Name }

func (k *kernel) NumArgs() int { return len(k.def.Params) }

func (k *kernel) SetArg(index int, value any) error {
	if index < 0 || index >= len(k.def.Params) {
		return fmt.Errorf("%w: index %d out of range for %s", compute.ErrInvalidArg, index, k.def.Name)
	}
	param := k.def.Params[index]

	switch v := value.(type) {
	case *buffer:
		if !param.Kind.isBuffer() {
			return fmt.Errorf("%w: %s expects a scalar", compute.ErrInvalidArg, param.Name)
		}
		if v.ctx != k.prog.ctx {
			return fmt.Errorf("%w: %s bound to a buffer from another context", compute.ErrInvalidArg, param.Name)
		}
		if param.Kind == ParamBufferOut && v.flags == compute.MemReadOnly {
			return fmt.Errorf("%w: %s is written but buffer is %s", compute.ErrInvalidArg, param.Name, v.flags)
		}
		if param.Kind == ParamBufferIn && v.flags == compute.MemWriteOnly {
			return fmt.Errorf("%w: %s is read but buffer is %s", compute.ErrInvalidArg, param.Name, v.flags)
		}
	case int32:
		if param.Kind != ParamInt {
			return fmt.Errorf("%w: %s does not take an int", compute.ErrInvalidArg, param.Name)
		}
	case float32:
		if param.Kind != ParamFloat {
			return fmt.Errorf("%w: %s does not take a float", compute.ErrInvalidArg, param.Name)
		}
	default:
		return fmt.Errorf("%w: unsupported type %T for %s", compute.ErrInvalidArg, value, param.Name)
	}

	k.args[index] = value
	return nil
}

func (k *kernel) Release() {}

// snapshot captures the current arguments; dispatches see the values bound
// at enqueue time.
func (k *kernel) snapshot() ([]any, error) {
	args := make([]any, len(k.args))
	for i, a := range k.args {
		if a == nil {
			return nil, fmt.Errorf("%w: argument %d (%s) of %s is not set", compute.ErrInvalidArg, i, k.def.Params[i].Name, k.def.Name)
		}
		args[i] = a
	}
	return args, nil
}
