package paper

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/pavelanni/papergen/internal/model"
)

// SumTolerance is how far a distribution may stray from 100 percent to absorb rounding.
const SumTolerance = 1.0

// Violation codes double as message ids in the locale catalogs.
const (
	CodeCourseMissing         = "CourseMissing"
	CodeTotalMarksNotPositive = "TotalMarksNotPositive"
	CodeUnitsEmpty            = "UnitsEmpty"
	CodeUnitWrongCourse       = "UnitWrongCourse"
	CodeDistributionNegative  = "DistributionNegative"
	CodeDistributionSum       = "DistributionSum"
	CodeUnknownDifficulty     = "UnknownDifficulty"
	CodeUnknownBloomLevel     = "UnknownBloomLevel"
	CodeFieldInvalid          = "FieldInvalid"
)

// Violation is a single failed constraint.
type Violation struct {
	Field   string         `json:"field"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Err returns a *ValidationError for an invalid result, or nil.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Violations: r.Violations}
}

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ = uni.GetTranslator("en")
	_ = entranslations.RegisterDefaultTranslations(validate, translator)

	// Report JSON names so messages match what API callers send.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks cfg without correcting anything. Every violated constraint is
// reported; the result is a pure function of cfg.
func Validate(cfg model.GenerationConfig) ValidationResult {
	var violations []Violation

	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			// Map entries are visited in random order.
			slices.SortStableFunc(fieldErrs, func(a, b validator.FieldError) int {
				return strings.Compare(a.Field(), b.Field())
			})
			for _, fe := range fieldErrs {
				violations = append(violations, fieldViolation(fe))
			}
		} else {
			violations = append(violations, Violation{Field: "config", Code: CodeFieldInvalid, Message: err.Error()})
		}
	}

	for i, u := range cfg.Units {
		if cfg.CourseID > 0 && u.CourseID != cfg.CourseID {
			violations = append(violations, Violation{
				Field:   fmt.Sprintf("units[%d]", i),
				Code:    CodeUnitWrongCourse,
				Message: fmt.Sprintf("unit %d belongs to course %d, not %d", u.ID, u.CourseID, cfg.CourseID),
				Params:  map[string]any{"Unit": u.ID, "UnitCourse": u.CourseID, "Course": cfg.CourseID},
			})
		}
	}

	diffKeys := make([]model.Difficulty, 0, len(cfg.DifficultyDistribution))
	for k := range cfg.DifficultyDistribution {
		diffKeys = append(diffKeys, k)
	}
	slices.Sort(diffKeys)
	var diffSum float64
	for _, k := range diffKeys {
		diffSum += cfg.DifficultyDistribution[k]
		if !k.Valid() {
			violations = append(violations, Violation{
				Field:   "difficulty_distribution",
				Code:    CodeUnknownDifficulty,
				Message: fmt.Sprintf("unknown difficulty %q", string(k)),
				Params:  map[string]any{"Key": string(k)},
			})
		}
	}
	if v, ok := sumViolation("difficulty_distribution", diffSum); !ok {
		violations = append(violations, v)
	}

	bloomKeys := make([]model.BloomLevel, 0, len(cfg.BloomDistribution))
	for k := range cfg.BloomDistribution {
		bloomKeys = append(bloomKeys, k)
	}
	slices.Sort(bloomKeys)
	var bloomSum float64
	for _, k := range bloomKeys {
		bloomSum += cfg.BloomDistribution[k]
		if !k.Valid() {
			violations = append(violations, Violation{
				Field:   "bloom_distribution",
				Code:    CodeUnknownBloomLevel,
				Message: fmt.Sprintf("unknown bloom level %d", int(k)),
				Params:  map[string]any{"Key": int(k)},
			})
		}
	}
	if v, ok := sumViolation("bloom_distribution", bloomSum); !ok {
		violations = append(violations, v)
	}

	return ValidationResult{Valid: len(violations) == 0, Violations: violations}
}

func sumViolation(field string, sum float64) (Violation, bool) {
	if math.Abs(sum-100) <= SumTolerance {
		return Violation{}, true
	}
	return Violation{
		Field:   field,
		Code:    CodeDistributionSum,
		Message: fmt.Sprintf("%s sums to %g, want 100", field, sum),
		Params:  map[string]any{"Distribution": field, "Sum": sum},
	}, false
}

func fieldViolation(fe validator.FieldError) Violation {
	v := Violation{
		Field:   fe.Field(),
		Code:    CodeFieldInvalid,
		Message: fe.Translate(translator),
		Params:  map[string]any{"Field": fe.Field(), "Tag": fe.Tag(), "Param": fe.Param()},
	}
	switch {
	case fe.Field() == "course_id":
		v.Code = CodeCourseMissing
	case fe.Field() == "total_marks":
		v.Code = CodeTotalMarksNotPositive
	case fe.Field() == "units":
		v.Code = CodeUnitsEmpty
	case fe.Tag() == "gte" && strings.Contains(fe.Field(), "distribution"):
		v.Code = CodeDistributionNegative
	}
	return v
}
