package kernel

// Error is the error type returned by kernel code. Errors are declared once
// as package-level pointers because the boot path has no allocator, so
// callers compare them by identity instead of using errors.Is on wrapped
// values.
type Error struct {
	// Module names the subsystem that reports the error. It is printed
	// as the [module] prefix of panic messages.
	Module string

	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
