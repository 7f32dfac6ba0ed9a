package vpn

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	nmDest            = "org.freedesktop.NetworkManager"
	nmPath            = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmActiveIface     = "org.freedesktop.NetworkManager.Connection.Active"
	nmStateActivated  = 2
	nmStateActivating = 1
)

// activeConnection is a NetworkManager active connection.
type activeConnection struct {
	Path  dbus.ObjectPath
	ID    string
	UUID  string
	VPN   bool
	State uint32
}

// nmBus is the slice of the NetworkManager D-Bus API the Linux agent uses.
type nmBus interface {
	ActiveConnections(ctx context.Context) ([]activeConnection, error)
	Deactivate(ctx context.Context, path dbus.ObjectPath) error
}

// systemNM talks to NetworkManager on the system bus. The connection is
// opened per call; the agent is used a handful of times per run.
type systemNM struct{}

func newNMBus() nmBus { return systemNM{} }

func (systemNM) ActiveConnections(ctx context.Context) ([]activeConnection, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	defer conn.Close()

	v, err := conn.Object(nmDest, nmPath).GetProperty(nmDest + ".ActiveConnections")
	if err != nil {
		return nil, err
	}
	paths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("unexpected ActiveConnections type %s", v.Signature())
	}

	var active []activeConnection
	for _, p := range paths {
		obj := conn.Object(nmDest, p)
		ac := activeConnection{Path: p}
		if v, err := obj.GetProperty(nmActiveIface + ".Vpn"); err == nil {
			ac.VPN, _ = v.Value().(bool)
		}
		if v, err := obj.GetProperty(nmActiveIface + ".Id"); err == nil {
			ac.ID, _ = v.Value().(string)
		}
		if v, err := obj.GetProperty(nmActiveIface + ".Uuid"); err == nil {
			ac.UUID, _ = v.Value().(string)
		}
		if v, err := obj.GetProperty(nmActiveIface + ".State"); err == nil {
			ac.State, _ = v.Value().(uint32)
		}
		active = append(active, ac)
	}
	return active, nil
}

func (systemNM) Deactivate(ctx context.Context, path dbus.ObjectPath) error {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("connecting to system bus: %w", err)
	}
	defer conn.Close()

	return conn.Object(nmDest, nmPath).
		CallWithContext(ctx, nmDest+".DeactivateConnection", 0, path).Err
}
