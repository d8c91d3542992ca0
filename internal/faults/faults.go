// Package faults classifies run failures.
//
// A run can fail because of bad configuration, because the source could not
// be acquired, or because state could not be read or written. Callers wrap the
// underlying error with one of the constructors below and the orchestrator
// uses the Is* predicates to decide what to log and which exit path to take.
//
// Example:
//
//	return faults.Persistence(fmt.Errorf("save baseline: %w", err))
package faults

import (
	"errors"
	"fmt"
)

// Kind is the failure class of a wrapped error.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindAcquisition   Kind = "acquisition"
	KindPersistence   Kind = "persistence"
)

type classified struct {
	kind Kind
	err  error
}

func (e classified) Error() string { return fmt.Sprintf("%s: %v", e.kind, e.err) }
func (e classified) Unwrap() error { return e.err }

func wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	// Keep the innermost classification; re-wrapping would only stack prefixes.
	var c classified
	if errors.As(err, &c) && c.kind == kind {
		return err
	}
	return classified{kind: kind, err: err}
}

// Configuration marks err as a configuration failure (fatal before any I/O).
func Configuration(err error) error { return wrap(KindConfiguration, err) }

// Acquisition marks err as a failure of the snapshot source.
func Acquisition(err error) error { return wrap(KindAcquisition, err) }

// Persistence marks err as a failure reading or writing durable state.
func Persistence(err error) error { return wrap(KindPersistence, err) }

// KindOf returns the outermost classification of err, or "" when unclassified.
func KindOf(err error) Kind {
	var c classified
	if errors.As(err, &c) {
		return c.kind
	}
	return ""
}

func IsConfiguration(err error) bool { return hasKind(err, KindConfiguration) }
func IsAcquisition(err error) bool   { return hasKind(err, KindAcquisition) }
func IsPersistence(err error) bool   { return hasKind(err, KindPersistence) }

func hasKind(err error, kind Kind) bool {
	for err != nil {
		if c, ok := err.(classified); ok && c.kind == kind {
			return true
		}
		if j, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range j.Unwrap() {
				if hasKind(e, kind) {
					return true
				}
			}
			return false
		}
		err = errors.Unwrap(err)
	}
	return false
}
