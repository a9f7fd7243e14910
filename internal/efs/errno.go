// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package efs gives every public entry point of the storage engine a single
// error shape: either nil, or an *Errno that carries a POSIX-style errno
// value. The engine's contract (see the storage engine core) is to return
// either 0 or a negative errno-shaped integer, never a Go error value, so
// this package is also where that translation happens at the boundary.
package efs

import (
	"errors"
	"fmt"
	"syscall"
)

// Class buckets an Errno into the taxonomy used to decide retry policy.
type Class int

const (
	ClassArgument Class = iota
	ClassCapacity
	ClassTransientRemote
	ClassRemoteFault
	ClassMetadataFault
	ClassIO
	ClassPersistence
)

func (c Class) String() string {
	switch c {
	case ClassArgument:
		return "argument"
	case ClassCapacity:
		return "capacity"
	case ClassTransientRemote:
		return "transient_remote"
	case ClassRemoteFault:
		return "remote_fault"
	case ClassMetadataFault:
		return "metadata_fault"
	case ClassIO:
		return "io"
	case ClassPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Errno is a POSIX errno value tagged with the class that produced it and,
// optionally, the error that caused it.
type Errno struct {
	Errno syscall.Errno
	Class Class
	Op    string
	Err   error
}

func (e *Errno) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Errno, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Errno)
}

func (e *Errno) Unwrap() error { return e.Err }

// Negate returns the engine's over-the-wire shape for this error: a
// negative integer equal to -errno.
func (e *Errno) Negate() int32 { return -int32(e.Errno) }

func new_(op string, class Class, errno syscall.Errno, err error) *Errno {
	return &Errno{Errno: errno, Class: class, Op: op, Err: err}
}

func Argument(op string, err error) *Errno {
	return new_(op, ClassArgument, syscall.EINVAL, err)
}

func EMFILE(op string) *Errno {
	return new_(op, ClassCapacity, syscall.EMFILE, nil)
}

func ENOSPC(op string, err error) *Errno {
	return new_(op, ClassCapacity, syscall.ENOSPC, err)
}

func ENOMEM(op string) *Errno {
	return new_(op, ClassCapacity, syscall.ENOMEM, nil)
}

func ETIMEDOUT(op string, err error) *Errno {
	return new_(op, ClassTransientRemote, syscall.ETIMEDOUT, err)
}

func RemoteFault(op string, errno syscall.Errno, err error) *Errno {
	return new_(op, ClassRemoteFault, errno, err)
}

func MetadataFault(op string, err error) *Errno {
	return new_(op, ClassMetadataFault, syscall.EAGAIN, err)
}

func IO(op string, err error) *Errno {
	return new_(op, ClassIO, syscall.EIO, err)
}

func ENOENT(op string, err error) *Errno {
	return new_(op, ClassIO, syscall.ENOENT, err)
}

func Persistence(op string, err error) *Errno {
	return new_(op, ClassPersistence, syscall.EIO, err)
}

func EPERM(op string) *Errno {
	return new_(op, ClassArgument, syscall.EPERM, nil)
}

func EBADF(op string) *Errno {
	return new_(op, ClassArgument, syscall.EBADF, nil)
}

func EOPNOTSUPP(op string) *Errno {
	return new_(op, ClassArgument, syscall.EOPNOTSUPP, nil)
}

// FromTransport folds a peer RPC transport-level failure into the errno
// shape described for the peer RPC client (G): NO_SERVICE/NO_METHOD ->
// EOPNOTSUPP, BAD_REQUEST -> EINVAL, AUTH -> EPERM, TIMED_OUT -> ETIMEDOUT,
// SOCKET_FAILED -> EIO, anything else -> EFAULT.
func FromTransport(op string, code TransportCode, err error) *Errno {
	switch code {
	case TransportNoService, TransportNoMethod:
		return new_(op, ClassRemoteFault, syscall.EOPNOTSUPP, err)
	case TransportBadRequest:
		return new_(op, ClassArgument, syscall.EINVAL, err)
	case TransportAuth:
		return new_(op, ClassArgument, syscall.EPERM, err)
	case TransportTimedOut:
		return new_(op, ClassTransientRemote, syscall.ETIMEDOUT, err)
	case TransportSocketFailed:
		return new_(op, ClassRemoteFault, syscall.EIO, err)
	default:
		return new_(op, ClassRemoteFault, syscall.EFAULT, err)
	}
}

// TransportCode is the transport-level outcome of a peer or metadata RPC,
// independent of the application-level payload.
type TransportCode int

const (
	TransportOK TransportCode = iota
	TransportNoService
	TransportNoMethod
	TransportBadRequest
	TransportAuth
	TransportTimedOut
	TransportSocketFailed
	TransportServerFault
	TransportOther
)

// As is a thin convenience wrapper around errors.As for *Errno.
func As(err error) (*Errno, bool) {
	var e *Errno
	ok := errors.As(err, &e)
	return e, ok
}

// IsTimeout reports whether err is (or wraps) a transient-remote timeout,
// the only class that peer RPC retries in place (§5 Ordering).
func IsTimeout(err error) bool {
	e, ok := As(err)
	return ok && e.Class == ClassTransientRemote
}
