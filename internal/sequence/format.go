package sequence

import "strconv"

// Format renders prefix followed by value zero-padded to padding digits.
// Values wider than padding are emitted in full.
func Format(prefix string, padding int, value int64) string {
	digits := strconv.FormatInt(value, 10)
	if value < 0 {
		return prefix + digits
	}
	if pad := padding - len(digits); pad > 0 {
		buf := make([]byte, 0, len(prefix)+padding)
		buf = append(buf, prefix...)
		for i := 0; i < pad; i++ {
			buf = append(buf, '0')
		}
		return string(append(buf, digits...))
	}
	return prefix + digits
}
