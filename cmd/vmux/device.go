package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmux/internal/backend"
)

var (
	deviceConfig bool
	deviceLive   bool
)

// deviceFlags maps --config and --live. ok is false when neither was given
// and the legacy call should be used.
func deviceFlags(config, live bool) (flags backend.DeviceFlags, ok bool) {
	if config {
		flags |= backend.DeviceModifyConfig
	}
	if live {
		flags |= backend.DeviceModifyLive
	}
	return flags, config || live
}

func readDeviceFile(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected a device description file")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), nil
}

var attachDeviceCmd = domainCommand("attach-device <domain> <file.xml>", "Attach a device from a description file",
	func(ctx context.Context, s *session, dom backend.Domain, args []string) error {
		xml, err := readDeviceFile(args)
		if err != nil {
			return err
		}
		if flags, ok := deviceFlags(deviceConfig, deviceLive); ok {
			err = s.conn.AttachDeviceFlags(ctx, dom, xml, flags)
		} else {
			err = s.conn.AttachDevice(ctx, dom, xml)
		}
		if err != nil {
			return err
		}
		fmt.Println("✓ Device attached successfully")
		return nil
	})

var detachDeviceCmd = domainCommand("detach-device <domain> <file.xml>", "Detach a device described by a file",
	func(ctx context.Context, s *session, dom backend.Domain, args []string) error {
		xml, err := readDeviceFile(args)
		if err != nil {
			return err
		}
		if flags, ok := deviceFlags(deviceConfig, deviceLive); ok {
			err = s.conn.DetachDeviceFlags(ctx, dom, xml, flags)
		} else {
			err = s.conn.DetachDevice(ctx, dom, xml)
		}
		if err != nil {
			return err
		}
		fmt.Println("✓ Device detached successfully")
		return nil
	})

var updateDeviceCmd = domainCommand("update-device <domain> <file.xml>", "Update a device from a description file",
	func(ctx context.Context, s *session, dom backend.Domain, args []string) error {
		xml, err := readDeviceFile(args)
		if err != nil {
			return err
		}
		flags, _ := deviceFlags(deviceConfig, deviceLive)
		if err := s.conn.UpdateDeviceFlags(ctx, dom, xml, flags); err != nil {
			return err
		}
		fmt.Println("✓ Device updated successfully")
		return nil
	})

func init() {
	for _, cmd := range []*cobra.Command{attachDeviceCmd, detachDeviceCmd, updateDeviceCmd} {
		cmd.Flags().BoolVar(&deviceConfig, "config", false, "Affect the persistent configuration")
		cmd.Flags().BoolVar(&deviceLive, "live", false, "Affect the running domain")
	}
}
