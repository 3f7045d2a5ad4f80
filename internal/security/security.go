/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidPageID is returned when a page ID cannot be used as a subject token
	ErrInvalidPageID = errors.New("invalid page ID")

	// ErrInvalidSubjectPrefix is returned for prefixes containing wildcards or empty tokens
	ErrInvalidSubjectPrefix = errors.New("invalid subject prefix")

	tokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// MaxLogTextLength caps transcript text written to logs
const MaxLogTextLength = 120

// SanitizeLogInput strips line breaks from recognized or user-supplied
// text and truncates it to MaxLogTextLength runes.
func SanitizeLogInput(input string) string {
	sanitized := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(input)
	if utf8.RuneCountInString(sanitized) <= MaxLogTextLength {
		return sanitized
	}
	runes := []rune(sanitized)
	return string(runes[:MaxLogTextLength]) + "…"
}

// ValidatePageID checks that a page ID is a single safe subject token
func ValidatePageID(pageID string) error {
	if !tokenPattern.MatchString(pageID) {
		return fmt.Errorf("%w: %q", ErrInvalidPageID, pageID)
	}
	return nil
}

// ValidateSubjectPrefix checks a dotted subject prefix such as "loqa.captions"
func ValidateSubjectPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSubjectPrefix)
	}
	for _, token := range strings.Split(prefix, ".") {
		if !tokenPattern.MatchString(token) {
			return fmt.Errorf("%w: %q", ErrInvalidSubjectPrefix, prefix)
		}
	}
	return nil
}
