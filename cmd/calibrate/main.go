// Command calibrate runs the sensor's motion-engine calibration
// interactively: it enables calibration for the selected sensors,
// reports per-sensor accuracy as you move the device, and saves the
// dynamic calibration data once everything reads high.
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
	portPath = flag.String("port", "/dev/ttyUSB0", "Serial port of the sensor (UART-SHTP)")
	accel    = flag.Bool("accel", true, "Calibrate the accelerometer")
	gyro     = flag.Bool("gyro", true, "Calibrate the gyroscope")
	mag      = flag.Bool("mag", true, "Calibrate the magnetometer")
	timeout  = flag.Duration("timeout", 2*time.Minute, "Give up if accuracy does not reach high within this window")
	save     = flag.Bool("save", true, "Save calibration to sensor flash once accuracy is high")
)

const commandTimeout = 3 * time.Second

// watched pairs a report with the calibration flag that gates it.
var watched = []struct {
	report  uint8
	enabled *bool
}{
	{sh2.ReportAccelerometer, accel},
	{sh2.ReportGyroscope, gyro},
	{sh2.ReportMagnetometer, mag},
}

// accuracies returns the latest reported accuracy per watched sensor,
// -1 where no sample has arrived yet.
func accuracies(d *bno08x.Driver) []int {
	out := make([]int, len(watched))
	for i, w := range watched {
		out[i] = -1
		if !*w.enabled {
			continue
		}
		if s, ok := d.Latest(w.report); ok && s.HasAccuracy {
			out[i] = int(s.Accuracy)
		}
	}
	return out
}

func allHigh(acc []int) bool {
	for i, a := range acc {
		if *watched[i].enabled && a < 3 {
			return false
		}
	}
	return true
}

func main() {
	flag.Parse()
	if !*accel && !*gyro && !*mag {
		log.Fatalf("nothing to calibrate; enable at least one of -accel, -gyro, -mag")
	}

	port, err := shtp.Open(*portPath, nil)
	if err != nil {
		log.Fatalf("failed to open sensor port: %v", err)
	}
	defer port.Close()

	driver := bno08x.New(port, nil)

	p, err := driver.BeginCalibration(*accel, *gyro, *mag)
	if err != nil {
		log.Fatalf("failed to send calibration command: %v", err)
	}
	if err := driver.Wait(p, commandTimeout); err != nil {
		log.Fatalf("calibration command failed: %v", err)
	}

	state, err := driver.CalibrationStatus(commandTimeout)
	if err != nil {
		log.Fatalf("failed to read calibration state: %v", err)
	}
	log.Printf("calibration enabled: accel=%v gyro=%v mag=%v", state.Accel, state.Gyro, state.Mag)

	for _, w := range watched {
		if !*w.enabled {
			continue
		}
		if err := driver.Enable(w.report, 10*time.Millisecond); err != nil {
			log.Fatalf("failed to enable %s: %v", sh2.ReportName(w.report), err)
		}
	}

	log.Printf("move the sensor: figure eights for the magnetometer, rest it on each face for the accelerometer")

	deadline := time.Now().Add(*timeout)
	lastPrint := time.Time{}
	for time.Now().Before(deadline) {
		if err := driver.Pump(); err != nil && !errors.Is(err, shtp.ErrNoData) {
			log.Fatalf("pump failed: %v", err)
		}
		acc := accuracies(driver)
		if time.Since(lastPrint) >= time.Second {
			log.Printf("accuracy: accel=%d gyro=%d mag=%d (0=unreliable 3=high)", acc[0], acc[1], acc[2])
			lastPrint = time.Now()
		}
		if allHigh(acc) {
			break
		}
	}

	acc := accuracies(driver)
	if !allHigh(acc) {
		log.Fatalf("accuracy did not reach high within %v: accel=%d gyro=%d mag=%d", *timeout, acc[0], acc[1], acc[2])
	}
	log.Printf("all watched sensors report high accuracy")

	if *save {
		if err := driver.SaveCalibration(commandTimeout); err != nil {
			var rejected *bno08x.CommandRejectedError
			if errors.As(err, &rejected) {
				log.Fatalf("sensor rejected calibration save: %v", err)
			}
			log.Fatalf("failed to save calibration: %v", err)
		}
		log.Printf("calibration saved to flash")
	}
}
