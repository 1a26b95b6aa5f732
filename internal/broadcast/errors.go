/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownListener is wrapped by SignalingError for ids not in the registry.
	ErrUnknownListener = errors.New("unknown listener")

	// ErrListenerClosed is wrapped by SignalingError for listeners being torn down.
	ErrListenerClosed = errors.New("listener closed")

	// ErrCoordinatorStopped is returned by every operation after Stop.
	ErrCoordinatorStopped = errors.New("coordinator stopped")
)

// CompileError reports that a broadcast could not start because its
// playlist could not be compiled or opened. The coordinator stays silent.
type CompileError struct {
	ConcertID int64
	Err       error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile playlist for concert %d: %v", e.ConcertID, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// SignalingError reports a rejected signaling message. It affects only the
// listener that sent it.
type SignalingError struct {
	ListenerID string
	Type       string
	Err        error
}

func (e *SignalingError) Error() string {
	return fmt.Sprintf("signaling %s from listener %s: %v", e.Type, e.ListenerID, e.Err)
}

func (e *SignalingError) Unwrap() error { return e.Err }
