// Package dbusapi exposes a wifi.Device on the D-Bus session or system bus.
//
// Service is exported as an object whose methods mirror the device request
// methods; completions arrive as signals emitted by SignalHost.
package dbusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/sirupsen/logrus"
	"github.com/srg/vwifi/internal/wifi"
	"github.com/srg/vwifi/pkg/config"
)

// DefaultCallTimeout bounds how long a method call waits for the device gate.
const DefaultCallTimeout = 5 * time.Second

// Service is the exported device object. Every exported method is a D-Bus method.
type Service struct {
	dev     *wifi.Device
	iface   string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewService creates the exported object for dev.
func NewService(dev *wifi.Device, iface string, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{dev: dev, iface: iface, timeout: DefaultCallTimeout, logger: logger}
}

func (s *Service) call(method string, fn func(ctx context.Context) error) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		s.logger.WithError(err).WithField("method", method).Debug("D-Bus call failed")
		return toDBusError(s.iface, err)
	}
	return nil
}

func (s *Service) lookup(name string) (*wifi.Interface, error) {
	if name == "" {
		return nil, nil
	}
	vif, ok := s.dev.Interface(name)
	if !ok {
		return nil, &wifi.Error{State: wifi.StateNotFound, Op: "lookup", Msg: fmt.Sprintf("no interface %q", name)}
	}
	return vif, nil
}

// Scan starts a scan and returns its request ID.
func (s *Service) Scan(ssids []string) (string, *dbus.Error) {
	req := wifi.NewScanRequest(ssids...)
	derr := s.call("Scan", func(ctx context.Context) error {
		return s.dev.Scan(ctx, req)
	})
	if derr != nil {
		return "", derr
	}
	return req.ID.String(), nil
}

func (s *Service) AbortScan() *dbus.Error {
	return s.call("AbortScan", s.dev.AbortScan)
}

// Connect joins ssid on the named interface; "" selects the primary.
func (s *Service) Connect(iface, ssid string) *dbus.Error {
	return s.call("Connect", func(ctx context.Context) error {
		vif, err := s.lookup(iface)
		if err != nil {
			return err
		}
		return s.dev.Connect(ctx, vif, wifi.ConnectParams{SSID: []byte(ssid)})
	})
}

func (s *Service) Disconnect(iface string, reason uint16) *dbus.Error {
	return s.call("Disconnect", func(ctx context.Context) error {
		vif, err := s.lookup(iface)
		if err != nil {
			return err
		}
		return s.dev.Disconnect(ctx, vif, reason)
	})
}

func (s *Service) StartAP(iface, ssid string) *dbus.Error {
	return s.call("StartAP", func(ctx context.Context) error {
		vif, err := s.lookup(iface)
		if err != nil {
			return err
		}
		if vif == nil {
			vif = s.dev.Primary()
		}
		return s.dev.StartAP(ctx, vif, wifi.APParams{SSID: ssid})
	})
}

func (s *Service) StopAP(iface string) *dbus.Error {
	return s.call("StopAP", func(context.Context) error {
		vif, err := s.lookup(iface)
		if err != nil {
			return err
		}
		if vif == nil {
			vif = s.dev.Primary()
		}
		s.dev.StopAP(vif)
		return nil
	})
}

// AddInterface creates an interface and returns its name.
func (s *Service) AddInterface(typ, name string) (string, *dbus.Error) {
	var created string
	derr := s.call("AddInterface", func(ctx context.Context) error {
		t, err := wifi.ParseIfType(typ)
		if err != nil {
			return &wifi.Error{State: wifi.StateInvalidArgument, Op: "add_interface", Err: err}
		}
		vif, err := s.dev.AddInterface(ctx, t, name)
		if err != nil {
			return err
		}
		created = vif.Name()
		return nil
	})
	return created, derr
}

func (s *Service) ChangeInterface(name, typ string) *dbus.Error {
	return s.call("ChangeInterface", func(ctx context.Context) error {
		t, err := wifi.ParseIfType(typ)
		if err != nil {
			return &wifi.Error{State: wifi.StateInvalidArgument, Op: "change_interface", Err: err}
		}
		vif, err := s.lookup(name)
		if err != nil {
			return err
		}
		return s.dev.ChangeInterface(ctx, vif, t)
	})
}

func (s *Service) DeleteInterface(name string) *dbus.Error {
	return s.call("DeleteInterface", func(ctx context.Context) error {
		vif, err := s.lookup(name)
		if err != nil {
			return err
		}
		return s.dev.DeleteInterface(ctx, vif)
	})
}

// Interfaces lists interface names in creation order.
func (s *Service) Interfaces() ([]string, *dbus.Error) {
	names := []string{}
	for _, vif := range s.dev.Interfaces() {
		names = append(names, vif.Name())
	}
	return names, nil
}

// Capabilities returns the capability table as JSON.
func (s *Service) Capabilities() (string, *dbus.Error) {
	data, err := json.Marshal(s.dev.Capabilities())
	if err != nil {
		return "", toDBusError(s.iface, err)
	}
	return string(data), nil
}

// Bus is the subset of *dbus.Conn used to publish a Service.
type Bus interface {
	Emitter
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	ReleaseName(name string) (dbus.ReleaseNameReply, error)
}

// Publish exports svc and its introspection data at cfg.ObjectPath and claims
// cfg.BusName. The returned function withdraws both.
func Publish(bus Bus, svc *Service, cfg config.DBusConfig) (func(), error) {
	path := dbus.ObjectPath(cfg.ObjectPath)
	if !path.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", cfg.ObjectPath)
	}

	if err := bus.Export(svc, path, cfg.BusName); err != nil {
		return nil, fmt.Errorf("failed to export device: %w", err)
	}

	node := &introspect.Node{
		Name: cfg.ObjectPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    cfg.BusName,
				Methods: introspect.Methods(svc),
				Signals: signalDecls(),
			},
		},
	}
	if err := bus.Export(introspect.NewIntrospectable(node), path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := bus.RequestName(cfg.BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to request bus name %s: %w", cfg.BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("bus name %s already taken", cfg.BusName)
	}

	svc.logger.WithFields(logrus.Fields{
		"name": cfg.BusName,
		"path": cfg.ObjectPath,
	}).Info("Device exported on D-Bus")

	return func() {
		_ = bus.Export(nil, path, cfg.BusName)
		_ = bus.Export(nil, path, "org.freedesktop.DBus.Introspectable")
		if _, err := bus.ReleaseName(cfg.BusName); err != nil {
			svc.logger.WithError(err).Warn("Failed to release bus name")
		}
	}, nil
}

func signalDecls() []introspect.Signal {
	arg := func(name, typ string) introspect.Arg {
		return introspect.Arg{Name: name, Type: typ}
	}
	return []introspect.Signal{
		{Name: "InterfaceAdded", Args: []introspect.Arg{arg("iface", "s")}},
		{Name: "InterfaceRemoved", Args: []introspect.Arg{arg("iface", "s")}},
		{Name: "ScanDone", Args: []introspect.Arg{arg("id", "s"), arg("aborted", "b")}},
		{Name: "ConnectResult", Args: []introspect.Arg{
			arg("iface", "s"), arg("status", "s"), arg("reason", "s"), arg("ssid", "s"), arg("bssid", "s"),
		}},
		{Name: "Disconnected", Args: []introspect.Arg{arg("iface", "s"), arg("reason", "q"), arg("local", "b")}},
		{Name: "APStarted", Args: []introspect.Arg{arg("iface", "s"), arg("ssid", "s"), arg("channel", "i")}},
		{Name: "APStopped", Args: []introspect.Arg{arg("iface", "s")}},
		{Name: "BSSInformed", Args: []introspect.Arg{
			arg("bssid", "s"), arg("ssid", "s"), arg("freq", "i"), arg("signal", "i"),
		}},
	}
}
