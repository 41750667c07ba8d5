//go:build linux

package source

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battlife/pkg/powerinfo"
)

// UPower queries the UPower daemon over the system bus and falls back to
// the kernel power supply class for whatever it does not expose.
type UPower struct {
	sysfs *Sysfs

	mu   sync.Mutex
	conn *dbus.Conn
}

func NewUPower(sysfs *Sysfs) *UPower {
	return &UPower{sysfs: sysfs}
}

func (u *UPower) Name() string {
	return "upower"
}

func (u *UPower) connect() (*dbus.Conn, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn != nil && u.conn.Connected() {
		return u.conn, nil
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to connect to system bus")
	}
	u.conn = conn
	return conn, nil
}

func (u *UPower) properties(ctx context.Context, conn *dbus.Conn, path dbus.ObjectPath) (upowerProps, error) {
	var props map[string]dbus.Variant
	err := conn.Object(upowerDest, path).
		CallWithContext(ctx, "org.freedesktop.DBus.Properties.GetAll", 0, upowerDevice).
		Store(&props)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get properties of %s", path)
	}
	return upowerProps(props), nil
}

// devices returns the first system battery and the line power state.
func (u *UPower) devices(ctx context.Context) (upowerProps, *bool, error) {
	conn, err := u.connect()
	if err != nil {
		return nil, nil, err
	}

	var paths []dbus.ObjectPath
	err = conn.Object(upowerDest, upowerPath).
		CallWithContext(ctx, upowerIface+".EnumerateDevices", 0).
		Store(&paths)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "failed to enumerate UPower devices")
	}

	var bat upowerProps
	var line *bool
	for _, p := range paths {
		props, err := u.properties(ctx, conn, p)
		if err != nil {
			logrus.WithError(err).WithField("device", p).Debug("skipping UPower device")
			continue
		}
		typ := props.integer("Type")
		if typ == nil {
			continue
		}
		switch *typ {
		case upowerTypeBattery:
			if ps, _ := props.boolean("PowerSupply"); ps && bat == nil {
				bat = props
			}
		case upowerTypeLinePower:
			if online, ok := props.boolean("Online"); ok {
				if line == nil {
					line = &online
				} else if online {
					*line = true
				}
			}
		}
	}
	return bat, line, nil
}

func (u *UPower) Query(ctx context.Context, group powerinfo.Field) (*Snapshot, error) {
	switch group {
	case powerinfo.FieldSystemIdentity:
		id := readDMI(u.sysfs.Root)
		return &Snapshot{SystemManufacturer: id.Manufacturer, SystemModel: id.Model}, nil
	case powerinfo.FieldTemperature:
		return &Snapshot{Temperatures: readThermalZones(u.sysfs.Root)}, nil
	}

	bat, line, err := u.devices(ctx)
	uevent := u.sysfs.batteryUevent()
	if err != nil {
		if uevent == nil {
			return nil, err
		}
		logrus.WithError(err).Debug("UPower not reachable, using power supply class")
	}

	s := &Snapshot{ACOnline: line}
	if bat != nil {
		s = snapshotFromUPower(bat, line)
	} else if uevent == nil {
		return nil, pkgerrors.New("no battery reported by UPower or power supply class")
	}
	s.fillFromUevent(uevent)
	return s, nil
}
