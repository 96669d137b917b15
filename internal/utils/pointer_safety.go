package utils

// Value dereferences v, returning the zero value when v is nil.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

// Ptr returns a pointer to v. Used to populate optional request and filter
// fields that distinguish "unset" from the zero value.
func Ptr[T any](v T) *T {
	return &v
}
