// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package errwrap contains error helpers for infrastructure code.
package errwrap

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Wrapf annotates err with a message. A nil err stays nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Append combines two errors, either of which may be nil. It is safe to use
// as reterr = Append(reterr, err) on close paths.
func Append(reterr, err error) error {
	if reterr == nil {
		return err
	}
	if err == nil {
		return reterr
	}
	return multierror.Append(reterr, err)
}

// Cause returns the innermost error of a Wrapf chain.
func Cause(err error) error {
	return errors.Cause(err)
}

// String returns the message of err, or "" for nil.
func String(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
