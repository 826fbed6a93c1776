package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/vwifi/internal/wifi"
)

// Command-level errors
var (
	// ErrConnectFailed is returned when the device reported a connect timeout.
	ErrConnectFailed = errors.New("connect failed")

	// ErrNoNotification means the device accepted a request but the expected
	// notification did not arrive before the wait deadline.
	ErrNoNotification = errors.New("no notification from device")
)

// FormatUserError turns internal errors into one-line messages for the terminal.
func FormatUserError(err error) string {
	var werr *wifi.Error
	switch {
	case errors.As(err, &werr):
		switch werr.State {
		case wifi.StateBusy:
			return fmt.Sprintf("device busy: another %s request is still pending", werr.Op)
		case wifi.StateRetry:
			return fmt.Sprintf("%s interrupted before the device accepted it, try again", werr.Op)
		case wifi.StateInvalidArgument:
			return fmt.Sprintf("invalid %s request: %s", werr.Op, detail(werr))
		case wifi.StateResourceExhausted:
			return fmt.Sprintf("%s: %s", werr.Op, detail(werr))
		case wifi.StateNotFound:
			return fmt.Sprintf("%s: %s", werr.Op, detail(werr))
		case wifi.StateClosed:
			return "device already released"
		}
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for the device"
	}
	return err.Error()
}

func detail(werr *wifi.Error) string {
	switch {
	case werr.Msg != "":
		return werr.Msg
	case werr.Err != nil:
		return werr.Err.Error()
	default:
		return string(werr.State)
	}
}
