package paper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/papergen/internal/model"
)

var (
	// ErrInvalidConfiguration is matched by every configuration validation failure.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrEmptyResult marks a paper with no questions or fewer marks than requested.
	// It is a warning, generation still succeeded.
	ErrEmptyResult = errors.New("generated paper is empty or under target")
)

// ValidationError carries the violated constraints of a rejected config.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfiguration, strings.Join(msgs, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// ShortfallError describes an EmptyResult condition.
type ShortfallError struct {
	Requested int
	Achieved  int
	Questions int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("%s: %d of %d marks with %d questions", ErrEmptyResult, e.Achieved, e.Requested, e.Questions)
}

func (e *ShortfallError) Is(target error) bool {
	return target == ErrEmptyResult
}

// CheckResult reports whether p came out empty or below the requested marks.
// A nil return means the paper meets its target.
func CheckResult(p *model.GeneratedPaper) error {
	if p == nil {
		return &ShortfallError{}
	}
	if len(p.Questions) == 0 || p.TotalMarks == 0 || p.Shortfall() > 0 {
		return &ShortfallError{
			Requested: p.Config.TotalMarks,
			Achieved:  p.TotalMarks,
			Questions: len(p.Questions),
		}
	}
	return nil
}
