package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// NewOutput builds an output by kind: "oto" (falls back to a timing only
// output when the device cannot be used), "wav" or "null". The second
// result reports whether the output paces itself; a Player should be
// created WithPacing when it does not.
func NewOutput(kind, wavFile string, log logrus.FieldLogger) (Output, bool, error) {
	switch kind {
	case "oto":
		out, err := NewStreamingOtoOutput()
		if err != nil {
			log.WithError(err).Warn("audio device unavailable, falling back to timing only output")
			fb, err := NewFallbackOutput()
			return fb, true, err
		}
		return out, true, nil
	case "wav":
		if wavFile == "" {
			return nil, false, fmt.Errorf("wav output needs a file name")
		}
		return NewWAVOutput(wavFile), false, nil
	case "null":
		return &NullOutput{}, true, nil
	}
	return nil, false, fmt.Errorf("unknown output backend: %s", kind)
}
