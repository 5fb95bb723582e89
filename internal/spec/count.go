package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Count is a size written as a JSON number. Integral values in float or
// exponent notation (4096.0, 1e4) are accepted. Anything else decodes to zero
// and keeps the problem for Err, so that validation can report it together
// with the rest of the document.
type Count struct {
	N   int
	err error
}

// CountOf wraps n.
func CountOf(n int) Count { return Count{N: n} }

// Err returns the decode problem recorded for this count, if any.
func (c Count) Err() error { return c.err }

// Check adds the decode problem, or a non-positive value, to errs under path.
func (c Count) Check(path string, errs *Collector) bool {
	if c.err != nil {
		errs.Addf(path, ErrInvalidValue, "%v", c.err)
		return false
	}
	if c.N <= 0 {
		errs.Addf(path, ErrInvalidValue, "must be a positive integer, got %d", c.N)
		return false
	}
	return true
}

func (c Count) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(c.N), 10), nil
}

func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = Count{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		c.err = fmt.Errorf("expected an integer, got %s", data)
		return nil
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		c.err = fmt.Errorf("expected an integer, got %s", data)
		return nil
	}
	c.N = int(f)
	return nil
}
