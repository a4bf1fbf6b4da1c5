// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by parsers. Callers classify with errors.Is.
var (
	// ErrFileTooLarge is returned when content exceeds the parser's size cap.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidContent is returned for content that is not valid UTF-8.
	ErrInvalidContent = errors.New("content is not valid UTF-8")

	// ErrBinaryFile is returned for content that looks like binary data.
	// Binary files are expected in real trees and are skipped without a
	// warning upstream.
	ErrBinaryFile = errors.New("binary content rejected")

	// ErrUnsupportedLanguage is returned by the registry for a language tag
	// no parser handles. This is a hard error for the requesting caller.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrSyntax marks source the grammar could not fully parse.
	ErrSyntax = errors.New("source contains syntax errors")
)

// ParseError reports that a file could not be normalized.
//
// Description:
//
//	Wraps the underlying cause (ErrSyntax, ErrInvalidContent, a structural
//	validation failure) with the file context needed for the per-file
//	warning the analysis attaches. A ParseError excludes exactly one file;
//	the rest of the project still analyzes.
type ParseError struct {
	Path     string
	Language string
	Detail   string
	Err      error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("parse %s (%s): %s: %v", e.Path, e.Language, e.Detail, e.Err)
	}
	return fmt.Sprintf("parse %s (%s): %v", e.Path, e.Language, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Warning renders the one-line warning attached to analysis responses when
// this file is excluded.
func (e *ParseError) Warning() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s skipped: %s", e.Path, e.Detail)
	}
	return fmt.Sprintf("%s skipped: %v", e.Path, e.Err)
}
