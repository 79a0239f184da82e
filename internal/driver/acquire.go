package driver

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Interval is a sample interval in seconds. For multi-sample acquisitions
// the instrument's data store only accepts the enumerated values below.
type Interval int

// Sample intervals accepted by the Keithley 617 data store
const (
	IntervalFastest Interval = 0 // store readings as fast as possible
	Interval1s      Interval = 1
	Interval10s     Interval = 10
	Interval60s     Interval = 60
	Interval600s    Interval = 600
	Interval3600s   Interval = 3600
)

// storageRates maps each legal interval to the command that selects that
// storage rate and enables buffered-trigger data storage.
var storageRates = map[Interval]string{
	IntervalFastest: "B1Q0G2X",
	Interval1s:      "B1Q1G2X",
	Interval10s:     "B1Q2G2X",
	Interval60s:     "B1Q3G2X",
	Interval600s:    "B1Q4G2X",
	Interval3600s:   "B1Q5G2X",
}

// At the fastest rate the 617 stores a reading every 360 ms (manual page
// 3-24); elapsed times for IntervalFastest are derived from that.
const fastestStoragePeriod = 0.360

// maxStoredSamples is the capacity of the instrument's data store
const maxStoredSamples = 100

// Response frames look like "NDCA-1.234567E-09,001": a four character
// mnemonic prefix, the reading, and a three digit buffer location tag.
const readingPrefixLen = 4

// SampleFunc receives each sample as it is acquired: the elapsed time since
// the start of the acquisition in seconds and the measured value. Callers
// needing more context should capture it in a closure.
type SampleFunc func(elapsed, value float64)

// Acquire reads a timed series of samples from the instrument's internal
// data store. Timing is controlled by the instrument itself: the first
// sample is stored when the acquisition starts and subsequent samples at
// each interval boundary. onSample may be nil.
//
// With samples == 1 this delegates to AcquireOne, whose single reading is
// taken one interval after the call, and returns one-element slices.
func (d *Device) Acquire(interval Interval, samples int, onSample SampleFunc) ([]float64, []float64, error) {
	if samples <= 1 {
		value, err := d.AcquireOne(interval)
		if err != nil {
			return nil, nil, err
		}
		return []float64{0}, []float64{value}, nil
	}
	return d.acquireSeries(interval, samples, onSample)
}

// acquireSeries is the multi-sample acquisition loop. Validation happens
// before any command reaches the device.
func (d *Device) acquireSeries(interval Interval, samples int, onSample SampleFunc) (times, values []float64, err error) {
	rate, ok := storageRates[interval]
	if !ok {
		return nil, nil, NewIntervalError(interval)
	}
	if samples > maxStoredSamples {
		return nil, nil, NewSampleCountError(samples)
	}
	if err := d.ch.SendLine(rate); err != nil {
		return nil, nil, err
	}
	defer d.stopStorage(&err)

	wait := time.Duration(interval) * time.Second
	// The device needs one interval to store its first reading.
	d.sleep(wait)
	datum, err := d.ch.ReceiveLine()
	if err != nil {
		return nil, nil, err
	}

	current := 1
	polls := 0
	for current <= samples {
		switch {
		case strings.Contains(datum, sampleTag(current)):
			value, perr := parseReading(datum)
			if perr != nil {
				return nil, nil, perr
			}
			t := elapsed(interval, current)
			times = append(times, t)
			values = append(values, value)
			current++
			polls = 0
			if onSample != nil {
				onSample(t, value)
			}
			// Pace the next poll to the device's own storage cadence.
			d.sleep(wait)
		case strings.Contains(datum, sampleTag(current-1)):
			// The device has not stored the next reading yet; wait and
			// poll again without consuming anything.
			polls++
			d.sleep(wait)
		default:
			// Unrecognized frame. Ignore it and poll again.
			polls++
		}
		if d.maxPolls > 0 && polls >= d.maxPolls {
			return nil, nil, NewTimeoutError(current, polls)
		}
		if err := d.ch.SendLine(cmdTakeReading); err != nil {
			return nil, nil, err
		}
		datum, err = d.ch.ReceiveLine()
		if err != nil {
			return nil, nil, err
		}
	}
	return times, values, nil
}

// AcquireOne reads a single value, taken one interval after the call. The
// instrument's first stored reading may still be settling, so two samples
// are acquired internally and only the second is returned. The interval is
// not checked against the enumerated set here; values outside it are left
// to the device's own response behavior.
func (d *Device) AcquireOne(interval Interval) (value float64, err error) {
	if err := d.ch.SendLine(storageRateCommand(interval)); err != nil {
		return 0, err
	}
	defer d.stopStorage(&err)

	wait := time.Duration(interval) * time.Second
	datum, err := d.ch.ReceiveLine()
	if err != nil {
		return 0, err
	}

	const target = 2
	current := 1
	polls := 0
	for current <= target {
		switch {
		case strings.Contains(datum, sampleTag(current)):
			value, err = parseReading(datum)
			if err != nil {
				return 0, err
			}
			current++
			polls = 0
			d.sleep(wait)
		case strings.Contains(datum, sampleTag(current-1)):
			polls++
			d.sleep(wait)
		default:
			polls++
		}
		if d.maxPolls > 0 && polls >= d.maxPolls {
			return 0, NewTimeoutError(current, polls)
		}
		if err := d.ch.SendLine(cmdTakeReading); err != nil {
			return 0, err
		}
		datum, err = d.ch.ReceiveLine()
		if err != nil {
			return 0, err
		}
	}
	return value, nil
}

// stopStorage turns off buffered data storage. Run deferred so the device
// is not left storing after a channel failure mid-loop.
func (d *Device) stopStorage(errp *error) {
	if stopErr := d.ch.SendLine(cmdStopStorage); stopErr != nil {
		d.log.LogError("turning off data storage: %v", stopErr)
		if *errp == nil {
			*errp = stopErr
		}
	}
}

// storageRateCommand returns the data storage command for an interval. For
// intervals outside the enumerated set (only reachable on the single-sample
// path) the raw value is passed through and the device decides.
func storageRateCommand(interval Interval) string {
	if rate, ok := storageRates[interval]; ok {
		return rate
	}
	return fmt.Sprintf("B1Q%dG2X", interval)
}

// sampleTag is the ",NNN" buffer location tag identifying sample n
func sampleTag(n int) string {
	return fmt.Sprintf(",%03d", n)
}

// parseReading extracts the reading from a response frame, skipping the
// mnemonic prefix and stopping at the buffer location tag.
func parseReading(datum string) (float64, error) {
	i := strings.Index(datum, ",")
	if i <= readingPrefixLen {
		return 0, fmt.Errorf("malformed reading %q", datum)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(datum[readingPrefixLen:i]), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed reading %q: %w", datum, err)
	}
	return value, nil
}

// elapsed derives the time of sample n relative to the start of the
// acquisition. The device reports buffer locations, not timestamps.
func elapsed(interval Interval, n int) float64 {
	if interval == IntervalFastest {
		return float64(n-1) * fastestStoragePeriod
	}
	return float64(n-1) * float64(interval)
}
