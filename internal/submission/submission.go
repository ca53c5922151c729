package submission

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinContentLength = 10
	MaxContentLength = 500

	honeypotField = "honeypot"
)

var (
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrSpam              = errors.New("spam detected")
	ErrContentRequired   = errors.New("joke content is required")
	ErrContentLength     = fmt.Errorf("joke must be between %d and %d characters", MinContentLength, MaxContentLength)
)

var publicReasons = map[error]string{
	ErrInvalidSubmission: "Invalid submission",
	ErrSpam:              "Invalid submission",
	ErrContentRequired:   "Joke content is required",
	ErrContentLength:     fmt.Sprintf("Joke must be between %d and %d characters", MinContentLength, MaxContentLength),
}

// Submission is a validated, normalised joke submission.
type Submission struct {
	Content string
	Author  string
	Tags    []string
}

// Validate checks an untyped payload (as decoded from JSON). Rules apply in
// order: object shape, honeypot, content presence, content length.
func Validate(payload any) error {
	obj, ok := payload.(map[string]any)
	if !ok || obj == nil {
		return ErrInvalidSubmission
	}

	if truthy(obj[honeypotField]) {
		return ErrSpam
	}

	content, ok := obj["content"].(string)
	if !ok || content == "" {
		return ErrContentRequired
	}

	if err := CheckLength(content); err != nil {
		return err
	}

	return nil
}

// CheckLength applies the content length bounds in characters.
func CheckLength(content string) error {
	n := utf8.RuneCountInString(content)
	if n < MinContentLength || n > MaxContentLength {
		return ErrContentLength
	}
	return nil
}

// Parse validates the payload and extracts the submission fields.
func Parse(payload any) (Submission, error) {
	if err := Validate(payload); err != nil {
		return Submission{}, err
	}
	obj := payload.(map[string]any)

	s := Submission{Content: obj["content"].(string)}
	if author, ok := obj["author"].(string); ok {
		s.Author = author
	}
	if raw, ok := obj["tags"].([]any); ok {
		tags := make([]string, 0, len(raw))
		for _, v := range raw {
			if str, ok := v.(string); ok {
				tags = append(tags, str)
			}
		}
		s.Tags = NormalizeTags(tags)
	} else {
		s.Tags = []string{}
	}

	return s, nil
}

// NormalizeTags trims and lowercases tags, dropping blanks and duplicates
// while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// PublicReason returns the message safe to show the submitter. Spam trips are
// reported exactly like a malformed payload.
func PublicReason(err error) string {
	for target, reason := range publicReasons {
		if errors.Is(err, target) {
			return reason
		}
	}
	return publicReasons[ErrInvalidSubmission]
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	default:
		return true
	}
}
