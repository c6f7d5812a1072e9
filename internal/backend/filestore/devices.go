package filestore

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/vmux/internal/backend"
)

// errUnknownDevice marks device kinds the store does not edit.
var errUnknownDevice = errors.New("unsupported device type")

// AttachDevice implements backend.DeviceAttacher on the stored
// configuration. Disks and interfaces are supported; live changes decline.
func (s *FileStore) AttachDevice(_ context.Context, dom backend.Domain, devXML string, flags backend.DeviceFlags) backend.Result[backend.Void] {
	if !configOnly(dom, flags) {
		return backend.Decline[backend.Void]()
	}
	return s.editDevices(dom, devXML, func(devs *libvirtxml.DomainDeviceList, kind string) error {
		switch kind {
		case "disk":
			disk, err := parseDisk(devXML)
			if err != nil {
				return err
			}
			for _, d := range devs.Disks {
				if d.Target != nil && d.Target.Dev == disk.Target.Dev {
					return fmt.Errorf("%w: target %s already in use", backend.ErrInvalidArgument, disk.Target.Dev)
				}
			}
			devs.Disks = append(devs.Disks, *disk)
		case "interface":
			iface := &libvirtxml.DomainInterface{}
			if err := iface.Unmarshal(devXML); err != nil {
				return fmt.Errorf("%w: %v", backend.ErrInvalidArgument, err)
			}
			devs.Interfaces = append(devs.Interfaces, *iface)
		default:
			return errUnknownDevice
		}
		return nil
	})
}

// DetachDevice implements backend.DeviceAttacher. Disks match on target
// device, interfaces on MAC address.
func (s *FileStore) DetachDevice(_ context.Context, dom backend.Domain, devXML string, flags backend.DeviceFlags) backend.Result[backend.Void] {
	if !configOnly(dom, flags) {
		return backend.Decline[backend.Void]()
	}
	return s.editDevices(dom, devXML, func(devs *libvirtxml.DomainDeviceList, kind string) error {
		switch kind {
		case "disk":
			disk, err := parseDisk(devXML)
			if err != nil {
				return err
			}
			for i, d := range devs.Disks {
				if d.Target != nil && d.Target.Dev == disk.Target.Dev {
					devs.Disks = append(devs.Disks[:i], devs.Disks[i+1:]...)
					return nil
				}
			}
			return fmt.Errorf("%w: no disk with target %s", backend.ErrInvalidArgument, disk.Target.Dev)
		case "interface":
			iface := &libvirtxml.DomainInterface{}
			if err := iface.Unmarshal(devXML); err != nil {
				return fmt.Errorf("%w: %v", backend.ErrInvalidArgument, err)
			}
			if iface.MAC == nil || iface.MAC.Address == "" {
				return fmt.Errorf("%w: interface has no mac address", backend.ErrInvalidArgument)
			}
			for i, d := range devs.Interfaces {
				if d.MAC != nil && strings.EqualFold(d.MAC.Address, iface.MAC.Address) {
					devs.Interfaces = append(devs.Interfaces[:i], devs.Interfaces[i+1:]...)
					return nil
				}
			}
			return fmt.Errorf("%w: no interface with mac %s", backend.ErrInvalidArgument, iface.MAC.Address)
		default:
			return errUnknownDevice
		}
	})
}

// configOnly reports whether flags address only the persistent
// configuration of dom.
func configOnly(dom backend.Domain, flags backend.DeviceFlags) bool {
	if flags&backend.DeviceModifyLive != 0 {
		return false
	}
	return flags&backend.DeviceModifyConfig != 0 || !dom.IsActive()
}

func (s *FileStore) editDevices(dom backend.Domain, devXML string, fn func(*libvirtxml.DomainDeviceList, string) error) backend.Result[backend.Void] {
	kind, err := rootElement(devXML)
	if err != nil {
		return backend.Fail[backend.Void](fmt.Errorf("%w: %v", backend.ErrInvalidArgument, err))
	}
	err = s.modify(dom, func(def *libvirtxml.Domain) error {
		if def.Devices == nil {
			def.Devices = &libvirtxml.DomainDeviceList{}
		}
		return fn(def.Devices, kind)
	})
	if errors.Is(err, errUnknownDevice) {
		return backend.Decline[backend.Void]()
	}
	return backend.CheckErr(err)
}

func parseDisk(devXML string) (*libvirtxml.DomainDisk, error) {
	disk := &libvirtxml.DomainDisk{}
	if err := disk.Unmarshal(devXML); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidArgument, err)
	}
	if disk.Target == nil || disk.Target.Dev == "" {
		return nil, fmt.Errorf("%w: disk has no target device", backend.ErrInvalidArgument)
	}
	return disk, nil
}

// rootElement returns the name of the first element in doc.
func rootElement(doc string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("empty device description")
		}
		if err != nil {
			return "", fmt.Errorf("malformed device description: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}
