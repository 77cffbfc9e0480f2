package errors

// Error is a sentinel error type. Declaring errors as constants of this
// type keeps them comparable and immutable.
type Error string

func (e Error) Error() string { return string(e) }
