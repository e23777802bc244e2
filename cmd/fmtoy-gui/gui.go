//go:build gui

package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	log "github.com/sirupsen/logrus"

	"github.com/olivierh59500/fmtoy/pkg/audio"
	"github.com/olivierh59500/fmtoy/pkg/chip"
	"github.com/olivierh59500/fmtoy/pkg/midi"
	"github.com/olivierh59500/fmtoy/pkg/synth"
	"github.com/olivierh59500/fmtoy/pkg/voice"
)

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// computer keyboard row mapped to one octave, piano style
var keyNotes = map[fyne.KeyName]int{
	fyne.KeyA: 0, fyne.KeyW: 1, fyne.KeyS: 2, fyne.KeyE: 3, fyne.KeyD: 4,
	fyne.KeyF: 5, fyne.KeyT: 6, fyne.KeyG: 7, fyne.KeyY: 8, fyne.KeyH: 9,
	fyne.KeyU: 10, fyne.KeyJ: 11, fyne.KeyK: 12,
}

const tapLength = 350 * time.Millisecond

type FmtoyGUI struct {
	app    fyne.App
	window fyne.Window

	// Engine
	bank     *voice.Bank
	backend  chip.Backend
	synth    *synth.Synth
	player   *audio.Player
	midiIn   midi.Input
	chipName string
	mutex    sync.Mutex

	// Settings
	sampleRate int
	bufferSize int
	gain       float64
	channel    int
	octave     int
	velocity   int
	recording  string

	held map[fyne.KeyName]int

	// UI Elements
	chipSelect     *widget.Select
	chipLabel      *widget.Label
	voiceList      *widget.List
	voiceLabel     *widget.Label
	octaveLabel    *widget.Label
	statusLabel    *widget.Label
	midiLabel      *widget.Label
	gainSlider     *widget.Slider
	velocitySlider *widget.Slider
	recordButton   *widget.Button

	done chan struct{}
}

func newFmtoyGUI() *FmtoyGUI {
	g := &FmtoyGUI{
		app:        app.New(),
		bank:       voice.NewBank(),
		chipName:   "ym2151",
		sampleRate: 44100,
		bufferSize: 1024,
		gain:       1.0,
		octave:     4,
		velocity:   100,
		held:       make(map[fyne.KeyName]int),
		done:       make(chan struct{}),
	}

	g.app.Settings().SetTheme(fmtoyTheme{})
	g.createUI()

	return g
}

func (g *FmtoyGUI) Run() {
	if err := g.startEngine(); err != nil {
		dialog.ShowError(err, g.window)
	}
	g.window.ShowAndRun()
}

func (g *FmtoyGUI) createUI() {
	g.window = g.app.NewWindow("fmtoy")
	g.window.Resize(fyne.NewSize(860, 560))

	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Load Voices...", g.addVoices),
		fyne.NewMenuItem("Clear Voices", g.clearVoices),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Record to WAV...", g.toggleRecording),
	)
	midiMenu := fyne.NewMenu("MIDI",
		fyne.NewMenuItem("Connect Input...", g.chooseMIDIInput),
		fyne.NewMenuItem("Disconnect", g.disconnectMIDI),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("All Notes Off", g.panic),
	)
	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", g.showAbout),
	)
	g.window.SetMainMenu(fyne.NewMainMenu(fileMenu, midiMenu, helpMenu))

	split := container.NewHSplit(g.createMainContent(), g.createVoiceContent())
	split.SetOffset(0.62)

	g.window.SetContent(split)
	g.window.SetOnClosed(g.cleanup)

	if dc, ok := g.window.Canvas().(desktop.Canvas); ok {
		dc.SetOnKeyDown(g.keyDown)
		dc.SetOnKeyUp(g.keyUp)
	}

	g.startUpdateTicker()
}

func (g *FmtoyGUI) createMainContent() fyne.CanvasObject {
	g.chipLabel = widget.NewLabel("")
	g.chipSelect = widget.NewSelect(chip.Names(), g.switchChip)
	g.chipSelect.SetSelected(g.chipName)

	chipCard := widget.NewCard("Chip", "", container.NewVBox(g.chipSelect, g.chipLabel))

	g.voiceLabel = widget.NewLabel("Voice: init")
	g.voiceLabel.TextStyle = fyne.TextStyle{Bold: true}

	g.octaveLabel = widget.NewLabel("")
	g.updateOctaveLabel()
	octaveDown := widget.NewButtonWithIcon("", theme.MoveDownIcon(), func() { g.shiftOctave(-1) })
	octaveUp := widget.NewButtonWithIcon("", theme.MoveUpIcon(), func() { g.shiftOctave(1) })

	g.velocitySlider = widget.NewSlider(1, 127)
	g.velocitySlider.Step = 1
	g.velocitySlider.SetValue(float64(g.velocity))
	g.velocitySlider.OnChanged = func(v float64) {
		g.mutex.Lock()
		g.velocity = int(v)
		g.mutex.Unlock()
	}

	g.gainSlider = widget.NewSlider(0, 4)
	g.gainSlider.Step = 0.05
	g.gainSlider.SetValue(g.gain)
	g.gainSlider.OnChanged = func(v float64) {
		g.mutex.Lock()
		g.gain = v
		g.mutex.Unlock()
	}
	// gain is applied when the player starts; restart quietly on release
	g.gainSlider.OnChangeEnded = func(float64) { g.restartEngine() }

	playContent := container.NewVBox(
		g.voiceLabel,
		container.NewHBox(octaveDown, g.octaveLabel, octaveUp),
		container.NewBorder(nil, nil, widget.NewLabel("Velocity"), nil, g.velocitySlider),
		container.NewBorder(nil, nil, widget.NewIcon(theme.VolumeUpIcon()), nil, g.gainSlider),
	)
	playCard := widget.NewCard("Play", "", playContent)

	keyboardCard := widget.NewCard("Keyboard", "A W S E D F T G Y H U J K", g.createKeyboard())

	g.statusLabel = widget.NewLabel("Ready")
	g.midiLabel = widget.NewLabel("MIDI: not connected")
	g.recordButton = widget.NewButtonWithIcon("Record", theme.MediaRecordIcon(), g.toggleRecording)
	panicButton := widget.NewButtonWithIcon("Panic", theme.CancelIcon(), g.panic)

	statusBar := container.NewBorder(nil, nil, nil,
		container.NewHBox(g.recordButton, panicButton),
		container.NewVBox(g.statusLabel, g.midiLabel),
	)

	return container.NewPadded(container.NewVBox(chipCard, playCard, keyboardCard, statusBar))
}

// createKeyboard lays out one octave of buttons. A tap plays a short note.
func (g *FmtoyGUI) createKeyboard() fyne.CanvasObject {
	keys := make([]fyne.CanvasObject, 0, len(noteNames))
	for i, name := range noteNames {
		semitone := i
		b := widget.NewButton(name, func() { g.tapNote(semitone) })
		if strings.HasSuffix(name, "#") {
			b.Importance = widget.LowImportance
		}
		keys = append(keys, b)
	}
	return container.NewGridWithColumns(len(keys), keys...)
}

func (g *FmtoyGUI) createVoiceContent() fyne.CanvasObject {
	g.voiceList = widget.NewList(
		func() int {
			g.mutex.Lock()
			defer g.mutex.Unlock()
			return g.bank.Len()
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("000 template voice name")
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			g.mutex.Lock()
			records := g.bank.Records()
			g.mutex.Unlock()
			if id < len(records) {
				item.(*widget.Label).SetText(fmt.Sprintf("%03d %s", id, records[id].Name))
			}
		},
	)
	g.voiceList.OnSelected = g.selectProgram

	addButton := widget.NewButtonWithIcon("Add", theme.ContentAddIcon(), g.addVoices)
	clearButton := widget.NewButtonWithIcon("Clear", theme.DeleteIcon(), g.clearVoices)

	return container.NewBorder(
		widget.NewLabelWithStyle("Voices", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(addButton, clearButton),
		nil, nil,
		g.voiceList,
	)
}

// startEngine builds a backend for the selected chip, wraps it in a synth
// and starts audio. The caller must not hold the mutex.
func (g *FmtoyGUI) startEngine() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	backend, err := chip.New(g.chipName, chip.WithLogger(log.StandardLogger()))
	if err != nil {
		return err
	}
	if err := backend.Init(0, g.sampleRate); err != nil {
		return err
	}
	s := synth.New(backend, g.bank, synth.WithLogger(log.StandardLogger()))

	var out audio.Output
	paced := true
	if g.recording != "" {
		out, paced = audio.NewWAVOutput(g.recording), false
	} else if oto, err := audio.NewStreamingOtoOutput(); err == nil {
		out = oto
	}

	player := audio.NewPlayer(s, out, audio.WithGain(g.gain), audio.WithPacing(!paced))
	if out == nil || player.Start(g.sampleRate, g.bufferSize) != nil {
		log.Warn("audio device unavailable, falling back to timing-based output")
		fb, _ := audio.NewFallbackOutput()
		player = audio.NewPlayer(s, fb, audio.WithGain(g.gain))
		if err := player.Start(g.sampleRate, g.bufferSize); err != nil {
			s.Close()
			return err
		}
	}

	g.backend, g.synth, g.player = backend, s, player
	g.held = make(map[fyne.KeyName]int)
	return nil
}

func (g *FmtoyGUI) stopEngine() {
	g.mutex.Lock()
	player, s := g.player, g.synth
	g.player, g.synth, g.backend = nil, nil, nil
	g.mutex.Unlock()

	if player != nil {
		if err := player.Stop(); err != nil {
			log.WithError(err).Warn("audio stop failed")
		}
	}
	if s != nil {
		s.Close()
	}
}

func (g *FmtoyGUI) restartEngine() {
	program := -1
	g.mutex.Lock()
	if g.synth != nil {
		program, _ = g.synth.Program(g.channel)
	}
	g.mutex.Unlock()

	g.stopEngine()
	if err := g.startEngine(); err != nil {
		dialog.ShowError(err, g.window)
		return
	}
	if program > 0 {
		g.send(midi.Event{Type: midi.ProgramChange, Channel: g.channel, Data1: program})
	}
}

// send forwards one event to the running synth
func (g *FmtoyGUI) send(e midi.Event) {
	g.mutex.Lock()
	s := g.synth
	g.mutex.Unlock()
	if s == nil {
		return
	}
	e.Time = time.Now()
	if err := s.Handle(e); err != nil {
		log.WithError(err).WithField("event", e.String()).Warn("event rejected")
	}
}

func (g *FmtoyGUI) note(semitone int) int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	n := (g.octave+1)*12 + semitone
	if n > 127 {
		n = 127
	}
	return n
}

func (g *FmtoyGUI) noteOn(n int) {
	g.mutex.Lock()
	vel := g.velocity
	g.mutex.Unlock()
	g.send(midi.Event{Type: midi.NoteOn, Channel: g.channel, Data1: n, Data2: vel})
}

func (g *FmtoyGUI) noteOff(n int) {
	g.send(midi.Event{Type: midi.NoteOff, Channel: g.channel, Data1: n})
}

func (g *FmtoyGUI) tapNote(semitone int) {
	n := g.note(semitone)
	g.noteOn(n)
	time.AfterFunc(tapLength, func() { g.noteOff(n) })
}

func (g *FmtoyGUI) keyDown(ev *fyne.KeyEvent) {
	semitone, ok := keyNotes[ev.Name]
	if !ok {
		return
	}
	g.mutex.Lock()
	_, repeat := g.held[ev.Name]
	g.mutex.Unlock()
	if repeat {
		return
	}

	n := g.note(semitone)
	g.mutex.Lock()
	g.held[ev.Name] = n
	g.mutex.Unlock()
	g.noteOn(n)
}

func (g *FmtoyGUI) keyUp(ev *fyne.KeyEvent) {
	g.mutex.Lock()
	n, ok := g.held[ev.Name]
	delete(g.held, ev.Name)
	g.mutex.Unlock()
	if ok {
		g.noteOff(n)
	}
}

func (g *FmtoyGUI) shiftOctave(delta int) {
	g.mutex.Lock()
	g.octave = max(0, min(9, g.octave+delta))
	g.mutex.Unlock()
	g.updateOctaveLabel()
}

func (g *FmtoyGUI) updateOctaveLabel() {
	g.mutex.Lock()
	octave := g.octave
	g.mutex.Unlock()
	g.octaveLabel.SetText(fmt.Sprintf("Octave %d", octave))
}

func (g *FmtoyGUI) panic() {
	g.send(midi.Event{Type: midi.ControlChange, Channel: g.channel, Data1: 123})
	g.mutex.Lock()
	g.held = make(map[fyne.KeyName]int)
	g.mutex.Unlock()
}

func (g *FmtoyGUI) switchChip(name string) {
	g.mutex.Lock()
	changed := name != g.chipName
	g.chipName = name
	running := g.synth != nil
	g.mutex.Unlock()

	g.chipLabel.SetText(fmt.Sprintf("%d Hz", chip.DefaultClock(name)))
	if changed && running {
		g.restartEngine()
	}
}

func (g *FmtoyGUI) selectProgram(id widget.ListItemID) {
	g.send(midi.Event{Type: midi.ProgramChange, Channel: g.channel, Data1: id})
}

// loadVoices appends the voices in paths to the bank and restarts the
// engine so new programs become selectable.
func (g *FmtoyGUI) loadVoices(paths ...string) error {
	bank, err := voice.LoadFiles(paths...)
	if err != nil {
		return err
	}

	g.mutex.Lock()
	merged := voice.NewBank(g.bank.Records()...)
	merged.Append(bank)
	g.bank = merged
	running := g.synth != nil
	g.mutex.Unlock()

	log.WithField("voices", bank.Len()).Info("voices loaded")
	if running {
		g.restartEngine()
	}
	if g.voiceList != nil {
		g.voiceList.Refresh()
	}
	return nil
}

func (g *FmtoyGUI) addVoices() {
	dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()

		if err := g.loadVoices(reader.URI().Path()); err != nil {
			dialog.ShowError(err, g.window)
		}
	}, g.window)
}

func (g *FmtoyGUI) clearVoices() {
	g.mutex.Lock()
	g.bank = voice.NewBank()
	g.mutex.Unlock()

	g.voiceList.UnselectAll()
	g.voiceList.Refresh()
	g.voiceLabel.SetText("Voice: init")
	g.restartEngine()
}

// toggleRecording switches the player between the sound card and a WAV
// file.
func (g *FmtoyGUI) toggleRecording() {
	g.mutex.Lock()
	recording := g.recording
	g.mutex.Unlock()

	if recording != "" {
		g.mutex.Lock()
		g.recording = ""
		g.mutex.Unlock()
		g.restartEngine()
		g.recordButton.SetText("Record")
		dialog.ShowInformation("Recording", "Saved "+recording, g.window)
		return
	}

	dialog.ShowFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()

		path := writer.URI().Path()
		if !strings.HasSuffix(strings.ToLower(path), ".wav") {
			path += ".wav"
		}
		g.mutex.Lock()
		g.recording = path
		g.mutex.Unlock()
		g.restartEngine()
		g.recordButton.SetText("Stop")
	}, g.window)
}

func (g *FmtoyGUI) chooseMIDIInput() {
	names, err := midi.ListInputs()
	if err != nil {
		dialog.ShowError(err, g.window)
		return
	}
	if len(names) == 0 {
		dialog.ShowInformation("MIDI", "No MIDI inputs found", g.window)
		return
	}

	sel := widget.NewSelect(names, nil)
	sel.SetSelectedIndex(0)
	dialog.ShowCustomConfirm("MIDI Input", "Connect", "Cancel", sel, func(ok bool) {
		if ok {
			g.connectMIDI(sel.Selected)
		}
	}, g.window)
}

func (g *FmtoyGUI) connectMIDI(name string) {
	g.disconnectMIDI()

	in, events, err := midi.OpenInput(name)
	if err != nil {
		dialog.ShowError(err, g.window)
		return
	}
	g.mutex.Lock()
	g.midiIn = in
	g.mutex.Unlock()
	g.midiLabel.SetText("MIDI: " + name)

	go func() {
		for e := range events {
			g.send(e)
		}
	}()
}

func (g *FmtoyGUI) disconnectMIDI() {
	g.mutex.Lock()
	in := g.midiIn
	g.midiIn = nil
	g.mutex.Unlock()

	if in != nil {
		if err := in.Close(); err != nil {
			log.WithError(err).Warn("MIDI close failed")
		}
		g.midiLabel.SetText("MIDI: not connected")
	}
}

func (g *FmtoyGUI) startUpdateTicker() {
	ticker := time.NewTicker(100 * time.Millisecond)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				status, voiceName := g.status()
				fyne.Do(func() {
					g.statusLabel.SetText(status)
					g.voiceLabel.SetText("Voice: " + voiceName)
				})
			case <-g.done:
				return
			}
		}
	}()
}

func (g *FmtoyGUI) status() (string, string) {
	g.mutex.Lock()
	s, backend, recording := g.synth, g.backend, g.recording
	g.mutex.Unlock()
	if s == nil {
		return "Stopped", "-"
	}

	st := s.Stats()
	_, r := s.Program(g.channel)
	name := "-"
	if r != nil {
		name = r.Name
	}
	text := fmt.Sprintf("%s  [%s]  notes %d  steals %d",
		strings.ToUpper(backend.Name()), meter(st.Active, st.Capacity), st.NotesOn, st.Steals)
	if recording != "" {
		text += "  REC"
	}
	return text, name
}

func meter(active, capacity int) string {
	if active > capacity {
		active = capacity
	}
	return strings.Repeat("#", active) + strings.Repeat(".", capacity-active)
}

func (g *FmtoyGUI) showAbout() {
	dialog.ShowInformation("About fmtoy",
		"fmtoy\n\nPlay YM2151 and YM2608 FM voices\nfrom a MIDI keyboard or the computer keys.",
		g.window)
}

func (g *FmtoyGUI) cleanup() {
	close(g.done)
	g.disconnectMIDI()
	g.stopEngine()
}
