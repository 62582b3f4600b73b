package install

// ExitCode maps an install/repair error to spec.md §6's exit-code surface:
// 0 success, 1 validation/network failure, 2 bad configuration. Any
// non-retryable HTTP status (propagated from the protocol layer) falls
// into the 1 bucket, per spec.md §6 "Non-retryable HTTP statuses propagate
// as 1".
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(*BadConfigurationError); ok {
		return 2
	}
	return 1
}
