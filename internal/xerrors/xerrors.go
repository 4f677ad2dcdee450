// Package xerrors attaches call-site positions to errors without changing
// their messages. Wrap records the single frame that added context; New,
// Newf, WithStack and EnsureTrace record a full stack. The logger reads both
// back through Stack and the PC/StackPCs methods.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxDepth = 64

// stacked carries a full stack and leaves the message untouched.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

// annotated prefixes msg and remembers the frame that added it.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string     { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error     { return a.err }
func (a *annotated) PC() uintptr       { return a.pc }
func (a *annotated) IsXerrorsWrapper() {}

// pcsFrom collects up to n program counters, skipping runtime.Callers,
// pcsFrom, its direct caller and then skip more frames.
func pcsFrom(skip int, n int) []uintptr {
	pcs := make([]uintptr, n)
	return pcs[:runtime.Callers(3+skip, pcs)]
}

func stack(err error) error {
	return &stacked{err: err, pcs: pcsFrom(1, maxDepth)}
}

func annotate(err error, msg string) error {
	a := &annotated{err: err, msg: msg}
	if pcs := pcsFrom(1, 1); len(pcs) == 1 {
		a.pc = pcs[0]
	}
	return a
}

// New returns an error with message msg and the caller's stack.
func New(msg string) error { return stack(errors.New(msg)) }

// Newf is New with fmt formatting; %w is honoured.
func Newf(format string, args ...any) error { return stack(fmt.Errorf(format, args...)) }

// WithStack records the caller's stack on err. Nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return stack(err)
}

// EnsureTrace is WithStack unless some error in the chain already has a
// stack.
func EnsureTrace(err error) error {
	if err == nil || len(Stack(err)) > 0 {
		return err
	}
	return stack(err)
}

// Wrap returns "msg: err" and records the caller. Nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return annotate(err, msg)
}

// Wrapf is Wrap with fmt formatting of the message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return annotate(err, fmt.Sprintf(format, args...))
}

// Stack returns the outermost stack recorded in err's chain, or nil.
func Stack(err error) []uintptr {
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && hs != nil {
		return hs.StackPCs()
	}
	return nil
}

// IsWrapper reports whether err is one of this package's wrappers, which add
// position or context but no type information of their own.
func IsWrapper(err error) bool {
	_, ok := err.(interface{ IsXerrorsWrapper() })
	return ok
}
