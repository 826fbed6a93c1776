package dbusapi

import (
	"context"
	"errors"

	"github.com/godbus/dbus/v5"
	"github.com/srg/vwifi/internal/wifi"
)

var errorNames = map[wifi.State]string{
	wifi.StateBusy:              "Busy",
	wifi.StateRetry:             "Retry",
	wifi.StateInvalidArgument:   "InvalidArgs",
	wifi.StateResourceExhausted: "ResourceExhausted",
	wifi.StateTimeout:           "Timeout",
	wifi.StateClosed:            "Closed",
	wifi.StateNotFound:          "NotFound",
}

// toDBusError maps device errors to "<iface>.Error.<Name>" replies.
// Errors without a device state become "<iface>.Error.Failed".
func toDBusError(iface string, err error) *dbus.Error {
	if err == nil {
		return nil
	}

	name := "Failed"
	var werr *wifi.Error
	switch {
	case errors.As(err, &werr):
		if n, ok := errorNames[werr.State]; ok {
			name = n
		}
	case errors.Is(err, context.DeadlineExceeded):
		name = errorNames[wifi.StateRetry]
	}
	return dbus.NewError(iface+".Error."+name, []interface{}{err.Error()})
}
