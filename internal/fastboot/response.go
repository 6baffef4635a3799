package fastboot

import "errors"

// Wire response prefixes from the fastboot protocol.
const (
	okayPrefix = "OKAY"
	failPrefix = "FAIL"
)

// failures that map to a fixed protocol message regardless of how much
// context the error carries
var failures = []error{
	ErrPartitionNotGiven,
	ErrPartitionNotFound,
	ErrEraseDevice,
	ErrEraseFailed,
	ErrWriteFailed,
}

// Okay renders a success response, optionally carrying a payload such as a
// getvar value.
func Okay(msg string) string {
	return okayPrefix + msg
}

// Fail renders a failure response with a human-readable reason.
func Fail(msg string) string {
	return failPrefix + msg
}

// Response maps an operation outcome to its fastboot wire response. Known
// failures keep their canonical protocol message; anything else (for
// example a sparse driver error) carries its own text.
func Response(err error) string {
	if err == nil {
		return Okay("")
	}
	for _, sentinel := range failures {
		if errors.Is(err, sentinel) {
			return Fail(sentinel.Error())
		}
	}
	return Fail(err.Error())
}
