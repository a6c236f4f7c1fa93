package domain

import (
	"fmt"
	"strconv"
)

// CellString renders a cell value the way it appears in the sheet. Floats use
// the shortest plain decimal form, so 1000000 is "1000000" and never "1e+06".
// A nil cell is "".
func CellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}
