// Package sandbox evaluates caller-supplied custom merge logic.
//
// Merge logic is a Go function literal taking the ordered successful outputs,
// for example:
//
//	func(results []string) string { return strings.Join(results, "-") }
//
// The function may return a single value or (value, error). It is
// interpreted with yaegi; only the allow-listed standard library packages are
// visible to it, so it cannot reach the filesystem, network or process.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Evaluator runs custom merge logic against outputs.
type Evaluator interface {
	Evaluate(ctx context.Context, source string, outputs []string) (interface{}, error)
}

// DefaultPackages are the packages visible to merge functions by default.
var DefaultPackages = []string{"strings", "strconv", "sort", "unicode", "unicode/utf8", "math", "errors", "fmt"}

var ErrTimeout = errors.New("sandbox: evaluation timed out")

// Config controls the interpreter sandbox.
type Config struct {
	Timeout         time.Duration
	AllowedPackages []string
}

// DefaultConfig returns the default sandbox configuration.
func DefaultConfig() Config {
	return Config{Timeout: 2 * time.Second, AllowedPackages: DefaultPackages}
}

// Interpreter is a yaegi backed Evaluator. Each evaluation gets a fresh
// interpreter so merge functions cannot share state.
type Interpreter struct {
	config  Config
	exports interp.Exports
	names   map[string]string
}

// New creates an Interpreter restricted to config.AllowedPackages.
func New(config Config) *Interpreter {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	allowed := map[string]bool{}
	for _, pkg := range config.AllowedPackages {
		allowed[strings.TrimSpace(pkg)] = true
	}
	exports := interp.Exports{}
	names := map[string]string{}
	for key, symbols := range stdlib.Symbols {
		idx := strings.LastIndex(key, "/")
		if idx <= 0 {
			continue
		}
		path := key[:idx]
		if !allowed[path] {
			continue
		}
		exports[key] = symbols
		names[path] = key[idx+1:]
	}
	return &Interpreter{config: config, exports: exports, names: names}
}

// Packages returns the import paths visible to merge functions.
func (i *Interpreter) Packages() []string {
	ret := make([]string, 0, len(i.names))
	for path := range i.names {
		ret = append(ret, path)
	}
	sort.Strings(ret)
	return ret
}

// Evaluate compiles source and calls it with outputs.
func (i *Interpreter) Evaluate(ctx context.Context, source string, outputs []string) (interface{}, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("sandbox: empty merge function")
	}
	ctx, cancel := context.WithTimeout(ctx, i.config.Timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("sandbox: merge function panicked: %v", r)}
			}
		}()
		value, err := i.run(ctx, source, outputs)
		ch <- outcome{value: value, err: err}
	}()
	select {
	case ret := <-ch:
		if ret.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return ret.value, ret.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// run compiles source as a named function and calls it inside the
// interpreter, so cancelling ctx stops a running merge function as well.
func (i *Interpreter) run(ctx context.Context, source string, outputs []string) (interface{}, error) {
	vm := interp.New(interp.Options{})
	if err := vm.Use(i.exports); err != nil {
		return nil, fmt.Errorf("sandbox: failed to load symbols: %w", err)
	}
	for _, path := range i.referenced(source) {
		if _, err := vm.EvalWithContext(ctx, fmt.Sprintf("import %q", path)); err != nil {
			return nil, fmt.Errorf("sandbox: failed to import %v: %w", path, err)
		}
	}
	if _, err := vm.EvalWithContext(ctx, "var mergeFn = "+source); err != nil {
		return nil, fmt.Errorf("sandbox: failed to compile merge function: %w", err)
	}
	fn, err := vm.EvalWithContext(ctx, "mergeFn")
	if err != nil {
		return nil, fmt.Errorf("sandbox: failed to load merge function: %w", err)
	}
	signature, err := inspect(unwrap(fn))
	if err != nil {
		return nil, err
	}
	if _, err = vm.EvalWithContext(ctx, "var mergeInput = "+literal(signature.elem, outputs)); err != nil {
		return nil, fmt.Errorf("sandbox: failed to bind merge input: %w", err)
	}
	if !signature.withError {
		if _, err = vm.EvalWithContext(ctx, "var mergeOut = mergeFn(mergeInput)"); err != nil {
			return nil, err
		}
		return load(ctx, vm, "mergeOut")
	}
	if _, err = vm.EvalWithContext(ctx, "var mergeOut, mergeErr = mergeFn(mergeInput)"); err != nil {
		return nil, err
	}
	failure, err := load(ctx, vm, "mergeErr")
	if err != nil {
		return nil, err
	}
	if failure != nil {
		if e, ok := failure.(error); ok {
			return nil, e
		}
		return nil, fmt.Errorf("%v", failure)
	}
	return load(ctx, vm, "mergeOut")
}

func load(ctx context.Context, vm *interp.Interpreter, name string) (interface{}, error) {
	v, err := vm.EvalWithContext(ctx, name)
	if err != nil {
		return nil, err
	}
	v = unwrap(v)
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

// unwrap strips the interface boxing yaegi applies to evaluated values.
func unwrap(v reflect.Value) reflect.Value {
	for v.IsValid() {
		switch {
		case v.Kind() == reflect.Interface:
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		case v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.Interface:
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		default:
			return v
		}
	}
	return v
}

var selector = regexp.MustCompile(`\b([a-z][a-z0-9]*)\.`)

// referenced returns allowed import paths whose package name is used as a
// selector in source.
func (i *Interpreter) referenced(source string) []string {
	used := map[string]bool{}
	for _, m := range selector.FindAllStringSubmatch(source, -1) {
		used[m[1]] = true
	}
	var ret []string
	for path, name := range i.names {
		if used[name] {
			ret = append(ret, path)
		}
	}
	sort.Strings(ret)
	return ret
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type signature struct {
	elem      reflect.Kind
	withError bool
}

// inspect validates fn as func([]string|[]interface{}) T or (T, error).
func inspect(fn reflect.Value) (*signature, error) {
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, errors.New("sandbox: merge source must be a function literal")
	}
	fnType := fn.Type()
	if fnType.NumIn() != 1 {
		return nil, fmt.Errorf("sandbox: merge function must take one argument, got %d", fnType.NumIn())
	}
	in := fnType.In(0)
	if in.Kind() != reflect.Slice || (in.Elem().Kind() != reflect.String && in.Elem().Kind() != reflect.Interface) {
		return nil, fmt.Errorf("sandbox: unsupported merge argument type %v", in)
	}
	ret := &signature{elem: in.Elem().Kind()}
	switch fnType.NumOut() {
	case 1:
	case 2:
		if !fnType.Out(1).Implements(errorType) {
			return nil, errors.New("sandbox: second merge function result must be an error")
		}
		ret.withError = true
	default:
		return nil, errors.New("sandbox: merge function must return value or (value, error)")
	}
	return ret, nil
}

// literal renders outputs as a Go slice literal of the argument type.
func literal(elem reflect.Kind, outputs []string) string {
	var out strings.Builder
	if elem == reflect.String {
		out.WriteString("[]string{")
	} else {
		out.WriteString("[]interface{}{")
	}
	for idx, output := range outputs {
		if idx > 0 {
			out.WriteString(", ")
		}
		out.WriteString(strconv.Quote(output))
	}
	out.WriteString("}")
	return out.String()
}

var _ Evaluator = (*Interpreter)(nil)
