package sectioncache

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt is returned by Read when an entry exists but cannot be
	// decoded: bad magic, unknown version, checksum mismatch, truncation.
	ErrCorrupt = errors.New("sectioncache: corrupt entry")

	// ErrInvalidName is returned for cache names or fingerprints that cannot
	// be used as file names.
	//
	// Implementations return an [InvalidNameError] wrapping ErrInvalidName.
	ErrInvalidName = errors.New("sectioncache: invalid name")
)

// InvalidNameError provides details about why a name is invalid.
//
// Use errors.Is(err, ErrInvalidName) to match this error.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e InvalidNameError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s %q", ErrInvalidName.Error(), e.Name)
	}

	return fmt.Sprintf("%s %q: %s", ErrInvalidName.Error(), e.Name, e.Reason)
}

func (InvalidNameError) Unwrap() error { return ErrInvalidName }

const maxNameLen = 128

// validateName checks a cache name: one path element, no leading dot.
func validateName(name string) error {
	switch {
	case name == "":
		return InvalidNameError{Name: name, Reason: "empty"}
	case len(name) > maxNameLen:
		return InvalidNameError{Name: name, Reason: fmt.Sprintf("longer than %d bytes", maxNameLen)}
	case name[0] == '.':
		return InvalidNameError{Name: name, Reason: "starts with a dot"}
	}

	for i := range len(name) {
		switch c := name[i]; {
		case c == '/' || c == '\\':
			return InvalidNameError{Name: name, Reason: "contains a path separator"}
		case c < 0x20 || c == 0x7f:
			return InvalidNameError{Name: name, Reason: "contains a control character"}
		}
	}

	return nil
}

// validateFingerprint accepts lowercase hex only.
func validateFingerprint(fp string) error {
	if fp == "" || len(fp) > 64 {
		return InvalidNameError{Name: fp, Reason: "fingerprint must be 1-64 hex digits"}
	}

	for i := range len(fp) {
		c := fp[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return InvalidNameError{Name: fp, Reason: "fingerprint must be lowercase hex"}
		}
	}

	return nil
}
