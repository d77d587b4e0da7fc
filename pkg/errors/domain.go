package errors

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// DataLoadError reports a missing or malformed input table.
// Path is always set; Column, Row and SampleID narrow the location when known.
type DataLoadError struct {
	Path     string
	Column   string
	Row      int // 1-based data row, 0 when not row specific
	SampleID string
	Reason   string
	Err      error
}

func (e *DataLoadError) Error() string {
	var b strings.Builder
	b.WriteString("soilspec: data load failed")
	if e.Path != "" {
		fmt.Fprintf(&b, " for %s", e.Path)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " at row %d", e.Row)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %q", e.Column)
	}
	if e.SampleID != "" {
		fmt.Fprintf(&b, " sample %q", e.SampleID)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DataLoadError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the structured fields to a zerolog event.
func (e *DataLoadError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("column", e.Column).
		Int("row", e.Row).
		Str("sample_id", e.SampleID).
		Str("reason", e.Reason).
		Str("type", "DataLoadError")
}

// NewDataLoadError creates a DataLoadError with a stack trace.
func NewDataLoadError(path, reason string, err error) error {
	return errors.WithStack(&DataLoadError{Path: path, Reason: reason, Err: err})
}

// NewDataLoadErrorAt creates a DataLoadError pointing at a row and column.
func NewDataLoadErrorAt(path string, row int, column, reason string) error {
	return errors.WithStack(&DataLoadError{Path: path, Row: row, Column: column, Reason: reason})
}

// PreprocessingError reports a preprocessing configuration that is invalid for the data shape.
type PreprocessingError struct {
	Param  string
	Reason string
	Value  interface{}
}

func (e *PreprocessingError) Error() string {
	return fmt.Sprintf("soilspec: preprocessing: %s: %s (got: %v)", e.Param, e.Reason, e.Value)
}

// MarshalZerologObject adds the structured fields to a zerolog event.
func (e *PreprocessingError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param", e.Param).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "PreprocessingError")
}

// NewPreprocessingError creates a PreprocessingError with a stack trace.
func NewPreprocessingError(param, reason string, value interface{}) error {
	return errors.WithStack(&PreprocessingError{Param: param, Reason: reason, Value: value})
}

// TrainingError reports a training run that could not produce a model.
type TrainingError struct {
	Target    string
	Algorithm string
	Reason    string
	Err       error
}

func (e *TrainingError) Error() string {
	msg := fmt.Sprintf("soilspec: training %s for target %q failed: %s", e.Algorithm, e.Target, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the structured fields to a zerolog event.
func (e *TrainingError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("target", e.Target).
		Str("algorithm", e.Algorithm).
		Str("reason", e.Reason).
		Str("type", "TrainingError")
}

// NewTrainingError creates a TrainingError with a stack trace.
func NewTrainingError(target, algorithm, reason string, err error) error {
	return errors.WithStack(&TrainingError{Target: target, Algorithm: algorithm, Reason: reason, Err: err})
}

// MergeError reports a malformed record in aggregation input.
// Index is -1 when the problem concerns the whole source rather than one record.
type MergeError struct {
	Source string
	Index  int
	Field  string
	Reason string
}

func (e *MergeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("soilspec: merge: %s: %s", e.Source, e.Reason)
	}
	if e.Field != "" {
		return fmt.Sprintf("soilspec: merge: %s record %d: field %q %s", e.Source, e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("soilspec: merge: %s record %d: %s", e.Source, e.Index, e.Reason)
}

// MarshalZerologObject adds the structured fields to a zerolog event.
func (e *MergeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("source", e.Source).
		Int("index", e.Index).
		Str("field", e.Field).
		Str("reason", e.Reason).
		Str("type", "MergeError")
}

// NewMergeError creates a MergeError with a stack trace.
func NewMergeError(source string, index int, field, reason string) error {
	return errors.WithStack(&MergeError{Source: source, Index: index, Field: field, Reason: reason})
}
