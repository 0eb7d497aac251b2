// Copyright 2025 Tom Barlow
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

package errors

import (
	"errors"
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Wrap annotates err with a message and a stack trace.
// If err is nil, returns nil.
//
// Usage:
//
//	if err := conn.Open(ctx); err != nil {
//	    return errors.Wrap(err, "opening tool server")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return crdb.Wrap(err, message)
}

// Wrapf is Wrap with a formatted message.
// If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return crdb.Wrapf(err, format, args...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error wrapping every non-nil error in errs.
// Used for best-effort teardown paths that must not stop at the first failure.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// New creates a new error carrying a stack trace.
func New(message string) error {
	return crdb.New(message)
}

// Newf creates a new formatted error carrying a stack trace.
func Newf(format string, args ...interface{}) error {
	return crdb.Newf(format, args...)
}

// StackTrace renders err with its recorded stack, for debug logging.
func StackTrace(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%+v", err)
}
