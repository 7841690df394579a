package protocol

import (
	"errors"
	"fmt"
)

// TimeoutError reports a scan or exact-length read that exceeded its deadline.
type TimeoutError struct {
	Where   string // which step of which exchange, e.g. "PRED.payload"
	Waiting string // magic being scanned for, if scanning
	Need    int    // bytes required, if reading
	Got     int    // bytes accumulated before the deadline
}

func (e *TimeoutError) Error() string {
	if e.Waiting != "" {
		return fmt.Sprintf("serial timeout at %s: waiting for %q", e.Where, e.Waiting)
	}
	return fmt.Sprintf("serial timeout at %s: need=%d got=%d", e.Where, e.Need, e.Got)
}

// IsTimeout reports whether err is a serial deadline expiry.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IntegrityError reports a device response that disagrees with the expected
// frame contents. Continuing after one would risk misinterpreting shifted or
// stale bytes as valid data, so the exchange is aborted.
type IntegrityError struct {
	Expected int
	Got      int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("device reported H=%d but host expects H=%d", e.Got, e.Expected)
}

// IsIntegrity reports whether err is a protocol integrity violation.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
