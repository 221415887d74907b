package tasks

// IsAwake reports whether hour falls in [wake, quiet). The window may wrap
// past midnight; equal bounds allow every hour.
func IsAwake(hour, wake, quiet int) bool {
	switch {
	case wake == quiet:
		return true
	case wake < quiet:
		return hour >= wake && hour < quiet
	default:
		return hour >= wake || hour < quiet
	}
}
