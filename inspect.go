package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"gattscope.dev/internal/ble"
	"gattscope.dev/internal/bluetooth"
	"gattscope.dev/internal/logging"
	"gattscope.dev/internal/profile"
	"gattscope.dev/internal/uuids"
)

var (
	flagJSON   bool
	flagListen int
)

const inspectScanTimeout = 30 * time.Second

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <address>",
		Short: "Connect to one peripheral and dump its GATT database",
		Long: `inspect scans for the given peripheral, connects, walks every service,
characteristic and descriptor, reads what is readable and prints the
result. No UI; output goes to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: runInspect,
	}
	cmd.Flags().BoolVar(&flagJSON, "json", false, "Print the profile as JSON instead of text")
	cmd.Flags().IntVar(&flagListen, "listen", 0, "Stream notifications for this many seconds after the walk")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closer := logging.Setup(cfg.Log.Level, cfg.Log.File)
	defer closer.Close()

	backend := buildBackend(cfg)
	if err := enableBackend(backend, cfg.Demo); err != nil {
		return err
	}

	verbose := !flagJSON
	if verbose {
		fmt.Printf("Scanning for %s...\n", address)
	}
	ev, err := scanFor(backend, address, inspectScanTimeout)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("\nPeripheral %s, NAME:(%s), RSSI %d\n\n", ev.Address, ev.Name, ev.RSSI)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Connect.TimeoutSeconds)*time.Second)
	defer cancel()
	conn, err := backend.Connect(ctx, address)
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer func() { _ = conn.Disconnect() }()
	if verbose {
		fmt.Println("Connected")
	}

	services, err := conn.DiscoverServices()
	if err != nil {
		return errors.Wrap(err, "discovering services")
	}

	svcInfos := make([]ble.ServiceInfo, 0, len(services))
	charInfos := make(map[int][]ble.CharInfo)
	values := make(map[ble.CharKey]*profile.Value)
	live := make([][]ble.Characteristic, 0, len(services))

	for i, svc := range services {
		svcInfos = append(svcInfos, ble.ServiceInfo{UUID: svc.UUID()})
		if verbose {
			msg := "Service: " + svc.UUID()
			if name := uuids.Name(svc.UUID()); name != "" {
				msg += " (" + name + ")"
			}
			fmt.Println(msg)
		}

		chars, err := svc.Characteristics()
		if err != nil {
			if verbose {
				fmt.Printf("Failed to discover characteristics, err: %s\n", err)
			}
			live = append(live, nil)
			continue
		}
		live = append(live, chars)

		for j, ch := range chars {
			props, known := ch.Properties()
			charInfos[i] = append(charInfos[i], ble.CharInfo{
				UUID:        ch.UUID(),
				Props:       props,
				PropsKnown:  known,
				Descriptors: ch.Descriptors(),
			})

			if verbose {
				msg := "  Characteristic  " + ch.UUID()
				if name := uuids.Name(ch.UUID()); name != "" {
					msg += " (" + name + ")"
				}
				fmt.Println(msg)
				propsLabel := "unknown"
				if known {
					propsLabel = props.String()
				}
				fmt.Println("    properties    " + propsLabel)
			}

			// With unknown properties the read is attempted anyway;
			// the peripheral rejects it if it must.
			if !known || props.CanRead() {
				b, rerr := ch.Read()
				if rerr != nil {
					if verbose {
						fmt.Printf("Failed to read characteristic, err: %s\n", rerr)
					}
				} else {
					values[ble.CharKey{Service: i, Char: j}] = profile.NewValue(b, ble.SourceRead, time.Now(), cfg.Read.PreviewBytes)
					if verbose {
						fmt.Printf("    value         %x | %q\n", b, b)
					}
				}
			}

			if verbose {
				for _, d := range ch.Descriptors() {
					msg := "  Descriptor      " + d
					if name := uuids.Name(d); name != "" {
						msg += " (" + name + ")"
					}
					fmt.Println(msg)
				}
			}
		}
		if verbose {
			fmt.Println()
		}
	}

	company := ""
	if len(ev.CompanyIDs) > 0 {
		company = bluetooth.LookupManufacturer(ev.CompanyIDs[0])
	}
	p := profile.Build(ev.Address, ev.Name, company, svcInfos, charInfos, values)

	if cfg.Cache.Enabled {
		if err := profile.NewCache(cfg.Cache.Path).Store(p.Address, p, true); err != nil {
			logging.Component("inspect").WithError(err).Warn("profile cache store failed")
		}
	}

	if flagJSON {
		out, err := profile.Marshal(p)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}

	if flagListen > 0 {
		listenNotifications(live, flagListen)
	}
	return nil
}

// scanFor runs discovery until the peripheral shows up, then stops the
// scan. The advertisement is returned for its name and company data.
func scanFor(backend ble.Backend, address string, timeout time.Duration) (ble.ScanEvent, error) {
	found := make(chan ble.ScanEvent, 1)
	scanErr := make(chan error, 1)

	go func() {
		err := backend.Scan(func(ev ble.ScanEvent) {
			if strings.EqualFold(ev.Address, address) {
				select {
				case found <- ev:
				default:
				}
			}
		})
		if err != nil {
			scanErr <- err
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-found:
		_ = backend.StopScan()
		return ev, nil
	case err := <-scanErr:
		return ble.ScanEvent{}, errors.Wrap(err, "scan")
	case <-timer.C:
		_ = backend.StopScan()
		return ble.ScanEvent{}, errors.Errorf("device %s not found after %s", address, timeout)
	}
}

// listenNotifications subscribes to everything that notifies and
// streams updates until the timer runs out.
func listenNotifications(services [][]ble.Characteristic, secs int) {
	subscribed := 0
	for _, chars := range services {
		for _, ch := range chars {
			props, known := ch.Properties()
			if known && !props.CanNotify() {
				continue
			}
			uuid := ch.UUID()
			err := ch.Subscribe(func(b []byte) {
				fmt.Printf("Notified: %s  % X | %q\n", uuid, b, b)
			})
			if err != nil {
				continue
			}
			subscribed++
			defer func(c ble.Characteristic) { _ = c.Unsubscribe() }(ch)
		}
	}
	if subscribed == 0 {
		fmt.Println("Nothing notifies on this peripheral.")
		return
	}

	fmt.Printf("Listening for notifications for %ds...\n", secs)
	time.Sleep(time.Duration(secs) * time.Second)
}
