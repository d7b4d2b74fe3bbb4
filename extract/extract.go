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

package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/docingest/core"
)

// Default limits applied to extracted text.
const (
	MinTextLen  = 50
	MaxTextLen  = 10000
	MaxErrorLen = 100
)

// Limits bounds extracted text and recorded error messages. Lengths count runes.
type Limits struct {
	MinTextLen  int // trimmed text shorter than this is SKIPPED_EMPTY
	MaxTextLen  int // longer text is truncated
	MaxErrorLen int // longer error messages are truncated
}

// DefaultLimits returns the standard limits.
func DefaultLimits() Limits {
	return Limits{
		MinTextLen:  MinTextLen,
		MaxTextLen:  MaxTextLen,
		MaxErrorLen: MaxErrorLen,
	}
}

// Validate checks the limits for consistency.
func (l Limits) Validate() error {
	if l.MinTextLen < 0 || l.MaxTextLen <= 0 || l.MaxErrorLen <= 0 {
		return ErrInvalidLimits
	}
	if l.MinTextLen > l.MaxTextLen {
		return ErrInvalidLimits
	}
	return nil
}

// Text extracts the plain text of every page of a PDF document.
// Pages are separated by a newline and the result is trimmed.
// Pages that fail to decode are skipped; if no page yields text the first page
// error is returned instead.
func Text(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %v", ErrMalformedDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}

	var (
		sb      strings.Builder
		pageErr error
	)
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			if pageErr == nil {
				pageErr = fmt.Errorf("page %d: %w", i, err)
			}
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	text = strings.TrimSpace(sb.String())
	if text == "" && pageErr != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedDocument, pageErr)
	}
	return text, nil
}

// Classify turns downloaded document bytes into an outcome for job.
//
//   - extraction error: FAILED with the error message truncated to MaxErrorLen
//   - fewer than MinTextLen runes of text: SKIPPED_EMPTY
//   - otherwise: text truncated to MaxTextLen, ready for embedding
func Classify(job core.Job, data []byte, limits Limits) core.Outcome {
	out := core.Outcome{Job: job}

	text, err := Text(data)
	if err != nil {
		out.Status = core.StatusFailed
		out.Error = core.Truncate(err.Error(), limits.MaxErrorLen)
		return out
	}

	if utf8.RuneCountInString(text) < limits.MinTextLen {
		out.Status = core.StatusSkippedEmpty
		out.Error = core.ErrTagEmpty
		return out
	}

	out.Status = core.StatusCompleted
	out.Text = core.Truncate(text, limits.MaxTextLen)
	return out
}
