// Copyright 2025 Poiesic Systems
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

package core

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateSource validates a hydration entry.
//
// Validation rules:
//   - URL must not be empty
//   - URL must parse and use the http or https scheme
//
// Code is not validated; an empty code is carried through as-is.
func ValidateSource(src Source) error {
	raw := strings.TrimSpace(src.URL)
	if raw == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSource, ErrEmptyURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %w: %q", ErrInvalidSource, ErrUnsupportedScheme, raw)
	}
	return nil
}

// ValidateTransition checks that a transition targets a status a claimed job may move to.
// PROCESSING is never a valid target; claims are the only way into it.
func ValidateTransition(t Transition) error {
	if !t.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if t.Status == StatusProcessing {
		return fmt.Errorf("%w: job %d cannot move to %s", ErrInvalidTransitionTarget, t.ID, t.Status)
	}
	return nil
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
