//go:build !midi_native

package midi

import "errors"

var errNoDriver = errors.New("native MIDI driver is not included in this build (build with -tags midi_native)")

// OpenInput opens the named input port. The default build has no driver.
func OpenInput(deviceName string) (Input, <-chan Event, error) {
	return nil, nil, errNoDriver
}

// ListInputs lists the input port names. The default build has no driver.
func ListInputs() ([]string, error) {
	return nil, errNoDriver
}
