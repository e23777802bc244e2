//go:build gui

package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	g := newFmtoyGUI()

	// voice files given on the command line are loaded before the window opens
	if len(os.Args) > 1 {
		if err := g.loadVoices(os.Args[1:]...); err != nil {
			log.Printf("Failed to load voices: %v", err)
		}
	}

	g.Run()
}
