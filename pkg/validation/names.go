// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for values that end up in
// container engine arguments.
//
// Names and tags are passed to the engine as separate arguments, never
// through a shell, but a malformed value still produces confusing engine
// errors or a reference to the wrong image. Validate before building
// arguments.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// containerNamePattern is the engine's rule for container and volume names.
var containerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// imageTagPattern is the OCI distribution rule for tags.
var imageTagPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)

// MaxNameLength bounds container names. Volume names append "_data".
const MaxNameLength = 128

// ValidateContainerName validates a container name.
//
// Valid names:
//   - 1-128 characters
//   - Start with a letter or digit
//   - Continue with letters, digits, underscores, dots or hyphens
//
// Example:
//
//	if err := validation.ValidateContainerName(name); err != nil {
//	    return apperr.Configuration("%v", err)
//	}
func ValidateContainerName(name string) error {
	if name == "" {
		return fmt.Errorf("container name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("container name %q is longer than %d characters", name, MaxNameLength)
	}
	if !containerNamePattern.MatchString(name) {
		return fmt.Errorf("invalid container name: %q (letters, digits, '_', '.' and '-', starting with a letter or digit)", name)
	}
	return nil
}

// ValidateImageTag validates the tag half of an image reference, e.g. the
// "16" of "postgres:16".
func ValidateImageTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("image tag cannot be empty")
	}
	if !imageTagPattern.MatchString(tag) {
		return fmt.Errorf("invalid image tag: %q", tag)
	}
	return nil
}

// SanitizeContainerName trims surrounding whitespace and validates.
//
//	safeName, err := validation.SanitizeContainerName(userInput)
//	if err != nil {
//	    return err
//	}
func SanitizeContainerName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateContainerName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
