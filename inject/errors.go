package inject

import (
	"fmt"
	"reflect"
)

// SignatureError reports an invalid handler signature at registration time.
// It is fatal to that registration attempt only.
type SignatureError struct {
	Handler string
	Reason  string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("inject: invalid signature for %s: %s", e.Handler, e.Reason)
}

// ExtractionError reports that a parameter's extractor failed to produce a
// required value from the event.
type ExtractionError struct {
	Handler string
	Param   string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("inject: %s: extracting %s: %v", e.Handler, e.Param, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ConversionError reports that an extracted value could not be reconciled
// with the parameter's declared type. It names the handler, the parameter
// and both ends of the failed conversion.
type ConversionError struct {
	Handler string
	Param   string
	Src     reflect.Type
	Dst     reflect.Type
	Err     error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("inject: %s: parameter %s: cannot convert %v to %v: %v",
		e.Handler, e.Param, e.Src, e.Dst, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
