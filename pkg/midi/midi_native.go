//go:build midi_native

package midi

import (
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// inputWrap closes the listener, the port and its driver together.
type inputWrap struct {
	drv  *rtmididrv.Driver
	in   drivers.In
	stop func()
	evCh chan Event
	once sync.Once
}

// OpenInput opens an input port and streams its channel messages. An
// exact name match wins over a substring match; an empty name picks the
// first port. Events are dropped when the consumer falls 256 behind.
func OpenInput(deviceName string) (Input, <-chan Event, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, nil, fmt.Errorf("rtmididrv.New: %w", err)
	}
	ins, err := drv.Ins()
	if err != nil {
		_ = drv.Close()
		return nil, nil, fmt.Errorf("list MIDI inputs: %w", err)
	}
	in := findInput(ins, deviceName)
	if in == nil {
		_ = drv.Close()
		return nil, nil, fmt.Errorf("MIDI input not found: %q", deviceName)
	}
	if err := in.Open(); err != nil {
		_ = drv.Close()
		return nil, nil, fmt.Errorf("open MIDI input %s: %w", in, err)
	}

	w := &inputWrap{drv: drv, in: in, evCh: make(chan Event, 256)}
	w.stop, err = gomidi.ListenTo(in, func(msg gomidi.Message, _ int32) {
		e, ok := Decode(msg)
		if !ok {
			return
		}
		e.Time = time.Now()
		select {
		case w.evCh <- e:
		default:
		}
	}, gomidi.HandleError(func(err error) {
		log.WithError(err).WithField("device", in.String()).Warn("MIDI input error")
	}))
	if err != nil {
		_ = in.Close()
		_ = drv.Close()
		return nil, nil, fmt.Errorf("listen on MIDI input %s: %w", in, err)
	}
	return w, w.evCh, nil
}

func findInput(ins []drivers.In, name string) drivers.In {
	if len(ins) == 0 {
		return nil
	}
	if name == "" {
		return ins[0]
	}
	for _, p := range ins {
		if p.String() == name {
			return p
		}
	}
	for _, p := range ins {
		if strings.Contains(p.String(), name) {
			return p
		}
	}
	return nil
}

func (w *inputWrap) Close() error {
	var err error
	w.once.Do(func() {
		w.stop()
		_ = w.in.Close()
		err = w.drv.Close()
	})
	return err
}

// ListInputs lists the names of the available input ports.
func ListInputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, err
	}
	defer drv.Close()
	ins, err := drv.Ins()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ins))
	for _, i := range ins {
		names = append(names, i.String())
	}
	return names, nil
}
