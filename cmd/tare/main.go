// Command tare re-zeroes the sensor's orientation. It waits for the
// magnetometer to settle, tares against the rotation vector, and can
// persist the result to the sensor's flash.
package main

import (
	"errors"
	"flag"
	"log"
	"time"

	"github.com/banshee-data/imu.report/internal/bno08x"
	"github.com/banshee-data/imu.report/internal/sh2"
	"github.com/banshee-data/imu.report/internal/shtp"
)

var (
	portPath  = flag.String("port", "/dev/ttyUSB0", "Serial port of the sensor (UART-SHTP)")
	zOnly     = flag.Bool("z", false, "Tare the Z axis only (heading), not all axes")
	persist   = flag.Bool("persist", false, "Persist the tare to sensor flash")
	clearFlag = flag.Bool("clear", false, "Clear a persisted tare instead of setting one")
	settle    = flag.Duration("settle", 30*time.Second, "How long to wait for the magnetometer to settle")
)

const commandTimeout = 3 * time.Second

// pumpUntil drives the sensor until cond holds or the deadline passes.
func pumpUntil(d *bno08x.Driver, deadline time.Time, cond func() bool) bool {
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		if err := d.Pump(); err != nil && !errors.Is(err, shtp.ErrNoData) {
			log.Fatalf("pump failed: %v", err)
		}
	}
	return cond()
}

func main() {
	flag.Parse()

	port, err := shtp.Open(*portPath, nil)
	if err != nil {
		log.Fatalf("failed to open sensor port: %v", err)
	}
	defer port.Close()

	driver := bno08x.New(port, nil)

	if *clearFlag {
		p, err := driver.ClearTare()
		if err != nil {
			log.Fatalf("failed to send clear: %v", err)
		}
		if err := driver.Wait(p, commandTimeout); err != nil {
			log.Fatalf("clear tare failed: %v", err)
		}
		log.Printf("tare cleared")
		return
	}

	// Tare quality depends on the rotation vector, which needs a settled
	// magnetometer. Watch its reported accuracy before committing.
	if err := driver.Enable(sh2.ReportRotationVector, 10*time.Millisecond); err != nil {
		log.Fatalf("failed to enable rotation vector: %v", err)
	}
	if err := driver.Enable(sh2.ReportMagnetometer, 10*time.Millisecond); err != nil {
		log.Fatalf("failed to enable magnetometer: %v", err)
	}

	log.Printf("waiting up to %v for the magnetometer to settle; move the sensor in a figure eight", *settle)
	if !pumpUntil(driver, time.Now().Add(*settle), driver.MagnetometerReady) {
		log.Fatalf("magnetometer did not settle within %v; tare aborted", *settle)
	}
	log.Printf("magnetometer ready")

	axes := uint8(sh2.TareAxisAll)
	if *zOnly {
		axes = sh2.TareAxisZ
	}
	p, err := driver.TareNow(axes, sh2.TareBasisRotationVector)
	if err != nil {
		log.Fatalf("failed to send tare: %v", err)
	}
	if err := driver.Wait(p, commandTimeout); err != nil {
		log.Fatalf("tare failed: %v", err)
	}
	log.Printf("tare applied")

	if *persist {
		p, err := driver.PersistTare()
		if err != nil {
			log.Fatalf("failed to send persist: %v", err)
		}
		if err := driver.Wait(p, commandTimeout); err != nil {
			log.Fatalf("persist failed: %v", err)
		}
		log.Printf("tare persisted to flash")
	}
}
