package serverpool

import "fmt"

type ServerUnavailableError struct {
	Server string
	Reason string
}

func (e *ServerUnavailableError) Error() string {
	return fmt.Sprintf("serverpool: %s unavailable: %s", e.Server, e.Reason)
}

type ConnectionLimitError struct {
	Server string
	Limit  int64
}

func (e *ConnectionLimitError) Error() string {
	return fmt.Sprintf("serverpool: %s at connection limit (%d)", e.Server, e.Limit)
}

type ShutdownTimeoutError struct{}

func (e *ShutdownTimeoutError) Error() string {
	return "serverpool: shutdown did not complete within 10s"
}
