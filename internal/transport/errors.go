package transport

import (
	"errors"
	"net"
	"syscall"

	zmq "github.com/pebbe/zmq4"
)

var (
	// ErrClosed is returned once an endpoint or its context has been closed.
	ErrClosed = errors.New("transport: endpoint closed")

	// ErrNoMessage means a receive found nothing to read. It is not a failure.
	ErrNoMessage = errors.New("transport: no message available")

	// ErrNoRequest is returned when replying on an endpoint with no received request.
	ErrNoRequest = errors.New("transport: reply without pending request")
)

// Category groups bind and socket creation failures by cause.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryInvalidEndpoint
	CategoryUnsupportedProtocol
	CategoryIncompatibleProtocol
	CategoryAddrInUse
	CategoryAddrNotLocal
	CategoryNoDevice
	CategoryContextTerminated
	CategoryNotSocket
	CategoryNoIOThread
)

var categoryReasons = map[Category]string{
	CategoryUnknown:              "Endpoint could not be bound",
	CategoryInvalidEndpoint:      "Invalid endpoint",
	CategoryUnsupportedProtocol:  "Invalid protocol",
	CategoryIncompatibleProtocol: "Transport protocol incompatible with socket type",
	CategoryAddrInUse:            "Address is already in use",
	CategoryAddrNotLocal:         "Requested address is not local",
	CategoryNoDevice:             "Address specifies a nonexistent interface",
	CategoryContextTerminated:    "Context already terminated",
	CategoryNotSocket:            "The provided socket is invalid",
	CategoryNoIOThread:           "No I/O thread is available to accomplish the task",
}

// Reason is the operator-facing description of the category.
func (c Category) Reason() string {
	if r, ok := categoryReasons[c]; ok {
		return r
	}
	return categoryReasons[CategoryUnknown]
}

func (c Category) String() string { return c.Reason() }

// categoryError carries a category decided by this package rather than by
// the operating system or libzmq.
type categoryError struct {
	cat Category
	msg string
	err error
}

func (e *categoryError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *categoryError) Unwrap() error { return e.err }

// Classify maps an error from endpoint creation or bind to its Category.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var cerr *categoryError
	if errors.As(err, &cerr) {
		return cerr.cat
	}
	if errors.Is(err, ErrClosed) {
		return CategoryContextTerminated
	}

	var zerr zmq.Errno
	if errors.As(err, &zerr) {
		return classifyErrno(zerr)
	}
	var serr syscall.Errno
	if errors.As(err, &serr) {
		return classifyErrno(zmq.Errno(serr))
	}

	var aerr *net.AddrError
	if errors.As(err, &aerr) {
		return CategoryInvalidEndpoint
	}
	var derr *net.DNSError
	if errors.As(err, &derr) {
		return CategoryInvalidEndpoint
	}
	return CategoryUnknown
}

func classifyErrno(n zmq.Errno) Category {
	switch n {
	case zmq.Errno(syscall.EINVAL):
		return CategoryInvalidEndpoint
	case zmq.Errno(syscall.EPROTONOSUPPORT):
		return CategoryUnsupportedProtocol
	case zmq.ENOCOMPATPROTO:
		return CategoryIncompatibleProtocol
	case zmq.Errno(syscall.EADDRINUSE):
		return CategoryAddrInUse
	case zmq.Errno(syscall.EADDRNOTAVAIL):
		return CategoryAddrNotLocal
	case zmq.Errno(syscall.ENODEV):
		return CategoryNoDevice
	case zmq.ETERM:
		return CategoryContextTerminated
	case zmq.Errno(syscall.ENOTSOCK):
		return CategoryNotSocket
	case zmq.EMTHREAD:
		return CategoryNoIOThread
	}
	return CategoryUnknown
}
