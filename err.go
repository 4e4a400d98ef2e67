package leanstore

import (
	"fmt"

	"github.com/leanstore/leanstore.go/pkg/constants"
)

// AggregateError reports a batch operation that failed part way. Objects in
// Succeeded were committed and stay committed.
type AggregateError struct {
	// Err is the first failure, in request order.
	Err       error
	Errors    []error
	Succeeded []*Object
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("code %d: %d object(s) failed, first: %v", constants.AggregateError, len(e.Errors), e.Err)
}

// Code returns constants.AggregateError.
func (e *AggregateError) Code() constants.ErrorCode { return constants.AggregateError }

func (e *AggregateError) Unwrap() []error { return e.Errors }

func (e *AggregateError) add(o *Object, err error) {
	err = &ObjectError{Object: o, Err: err}
	if e.Err == nil {
		e.Err = err
	}
	e.Errors = append(e.Errors, err)
}

// ObjectError is the failure of one object of a batch.
type ObjectError struct {
	Object *Object
	Err    error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Object.ClassName(), e.Object.ID(), e.Err)
}

func (e *ObjectError) Unwrap() error { return e.Err }
