// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"errors"

	"github.com/teradata-labs/crucible/pkg/progress"
	"github.com/teradata-labs/crucible/pkg/types"
)

const (
	exitOK        = 0
	exitInvalid   = 1
	exitCancelled = 2
	exitPartial   = 3
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if types.IsCancelled(err) || errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	return exitInvalid
}

// statusError maps the final status of a run to a command error.
func statusError(status progress.RunStatus) error {
	switch status {
	case progress.RunCompleted:
		return nil
	case progress.RunCompletedWithErrors:
		return withCode(exitPartial, errors.New("run completed with errors"))
	case progress.RunCancelled:
		return withCode(exitCancelled, errors.New("run cancelled"))
	default:
		return withCode(exitInvalid, errors.New("run failed"))
	}
}
