package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olivierh59500/fmtoy/pkg/audio"
	"github.com/olivierh59500/fmtoy/pkg/chip"
	"github.com/olivierh59500/fmtoy/pkg/config"
	"github.com/olivierh59500/fmtoy/pkg/midi"
	"github.com/olivierh59500/fmtoy/pkg/synth"
	"github.com/olivierh59500/fmtoy/pkg/voice"
	log "github.com/sirupsen/logrus"
)

var (
	chipName    = flag.String("chip", "ym2151", "FM chip ("+strings.Join(chip.Names(), ", ")+")")
	clock       = flag.Int("clock", 0, "Chip clock in Hz (0 = chip default)")
	sampleRate  = flag.Int("rate", 44100, "Sample rate (Hz)")
	bufferSize  = flag.Int("buffer", 1024, "Frames per render block")
	output      = flag.String("output", "oto", "Output backend (oto, wav, null)")
	wavFile     = flag.String("wav", "fmtoy.wav", "Output WAV file (when using wav output)")
	device      = flag.String("device", "", "MIDI input device (empty = first)")
	configFile  = flag.String("config", "", "TOML settings file")
	verbose     = flag.Bool("verbose", false, "Log every MIDI event")
	bendRange   = flag.Float64("bend-range", 2, "Pitch wheel range in semitones")
	gain        = flag.Float64("gain", 1.0, "Audio gain multiplier")
	listDevices = flag.Bool("list-devices", false, "List MIDI input devices and exit")
	listChips   = flag.Bool("list-chips", false, "List FM chips and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [voice-file ...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "fmtoy - play FM chip voices from a MIDI keyboard\n\n")
		fmt.Fprintf(os.Stderr, "Voice files: .opm (VOPM bank), .dmp, .ins, .tfi, .y12\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *listChips {
		for _, n := range chip.Names() {
			fmt.Printf("%-8s %d Hz\n", n, chip.DefaultClock(n))
		}
		return
	}
	if *listDevices {
		names, err := midi.ListInputs()
		if err != nil {
			log.Fatalf("Failed to list MIDI inputs: %v", err)
		}
		for i, n := range names {
			fmt.Printf("%d: %s\n", i, n)
		}
		return
	}

	cfg, err := settings()
	if err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}
	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
		if text, err := cfg.Encode(); err == nil {
			log.Debugf("effective settings:\n%s", text)
		}
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

// run plays until interrupted or until the MIDI input closes. Every
// resource opened here is released before it returns, so a WAV file is
// always finalized.
func run(cfg config.Config) error {
	bank, err := voice.LoadFiles(cfg.Voices...)
	if err != nil {
		return fmt.Errorf("load voices: %w", err)
	}
	fmt.Printf("Loaded %d voices\n", bank.Len())
	for i, r := range bank.Records() {
		log.WithFields(log.Fields{"program": i, "voice": r.Name}).Debug("voice")
	}

	backend, err := chip.New(cfg.Chip, chip.WithLogger(log.StandardLogger()))
	if err != nil {
		return err
	}
	if err := backend.Init(cfg.Clock, cfg.SampleRate); err != nil {
		return fmt.Errorf("initialize chip: %w", err)
	}
	fmt.Printf("Chip: %s at %d Hz, %d channels\n", backend.Name(), backend.Clock(), backend.Channels())

	s := synth.New(backend, bank, synth.WithLogger(log.StandardLogger()), synth.WithBendRange(cfg.BendRange))
	defer s.Close()

	player, err := startPlayer(cfg, s)
	if err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}
	defer func() {
		if err := player.Stop(); err != nil {
			log.WithError(err).Warn("audio output close failed")
		}
	}()

	in, events, err := midi.OpenInput(cfg.Device)
	if err != nil {
		return fmt.Errorf("open MIDI input: %w", err)
	}
	defer in.Close()

	fmt.Printf("Playing... (Press Ctrl+C to stop)\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			fmt.Printf("\n\nStopping...\n")
			return nil

		case e, ok := <-events:
			if !ok {
				fmt.Printf("\n\nMIDI input closed.\n")
				return nil
			}
			log.WithField("event", e.String()).Debug("midi")
			if err := s.Handle(e); err != nil {
				log.WithError(err).WithField("event", e.String()).Warn("event rejected")
			}

		case <-ticker.C:
			if !cfg.Verbose {
				st := s.Stats()
				fmt.Printf("\r[%s] notes %d  steals %d", makeMeter(st.Active, st.Capacity), st.NotesOn, st.Steals)
			}
		}
	}
}

// settings merges defaults, the config file and the flags set on the
// command line, in that order.
func settings() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return cfg, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "chip":
			cfg.Chip = *chipName
		case "clock":
			cfg.Clock = *clock
		case "rate":
			cfg.SampleRate = *sampleRate
		case "buffer":
			cfg.Buffer = *bufferSize
		case "output":
			cfg.Output = *output
		case "wav":
			cfg.WAV = *wavFile
		case "device":
			cfg.Device = *device
		case "verbose":
			cfg.Verbose = *verbose
		case "bend-range":
			cfg.BendRange = *bendRange
		case "gain":
			cfg.Gain = *gain
		}
	})
	if flag.NArg() > 0 {
		cfg.Voices = flag.Args()
	}
	return cfg, cfg.Validate()
}

func startPlayer(cfg config.Config, r audio.Renderer) (*audio.Player, error) {
	out, paced, err := audio.NewOutput(cfg.Output, cfg.WAV, log.StandardLogger())
	if err != nil {
		return nil, err
	}
	player := audio.NewPlayer(r, out, audio.WithGain(cfg.Gain), audio.WithPacing(!paced))
	err = player.Start(cfg.SampleRate, cfg.Buffer)
	if err != nil && cfg.Output == config.OutputOto {
		fmt.Printf("Warning: Failed to open audio device (%v)\n", err)
		fmt.Printf("Falling back to timing-based output...\n")
		fb, _ := audio.NewFallbackOutput()
		player = audio.NewPlayer(r, fb, audio.WithGain(cfg.Gain))
		err = player.Start(cfg.SampleRate, cfg.Buffer)
	}
	return player, err
}

func makeMeter(active, capacity int) string {
	if active > capacity {
		active = capacity
	}
	return strings.Repeat("#", active) + strings.Repeat(".", capacity-active)
}
