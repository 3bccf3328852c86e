package mozillion

import "fmt"

// AuthError indicates a failed login attempt. Step records which part of the
// login sequence failed, for diagnostics.
type AuthError struct {
	Step string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mozillion: %s: %v", e.Step, e.Err)
	}
	return "mozillion: " + e.Step
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError indicates a transport failure or non-JSON body during plan
// discovery or a usage fetch.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mozillion: %s: %v", e.Op, e.Err)
	}
	return "mozillion: " + e.Op
}

func (e *FetchError) Unwrap() error { return e.Err }
