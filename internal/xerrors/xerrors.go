// Package xerrors wraps errors with the call site that created them so the
// logger can report where a failure entered the chain.
//
// Wrap and Wrapf record a single program counter. New, Newf and EnsureTrace
// capture a full stack. Both kinds unwrap to the original error, so
// errors.Is and errors.As keep working across them.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }

// skip counts frames above the caller of captureStack.
func captureStack(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func stacked(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &withStack{err: err, pcs: captureStack(skip + 1)}
}

// EnsureTrace attaches a stack unless something in the chain already has one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return stacked(err, 1)
}

type wrap struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrap) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrap) Unwrap() error { return w.err }
func (w *wrap) PC() uintptr   { return w.pc }

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(2+skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// Wrap prefixes err with msg. A nil err stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: msg, pc: callerPC(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

func New(msg string) error             { return stacked(errors.New(msg), 1) }
func Newf(f string, args ...any) error { return stacked(fmt.Errorf(f, args...), 1) }
