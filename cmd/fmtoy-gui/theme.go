//go:build gui

package main

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// fmtoyTheme darkens the default palette and tints the primary color
// amber, like the front panel of an old FM module.
type fmtoyTheme struct{}

var (
	panelBackground = color.NRGBA{R: 0x1c, G: 0x1b, B: 0x1f, A: 0xff}
	panelButton     = color.NRGBA{R: 0x2e, G: 0x2c, B: 0x33, A: 0xff}
	panelHover      = color.NRGBA{R: 0x3d, G: 0x3a, B: 0x44, A: 0xff}
	panelInput      = color.NRGBA{R: 0x26, G: 0x25, B: 0x2a, A: 0xff}
	amber           = color.NRGBA{R: 0xff, G: 0xa8, B: 0x26, A: 0xff}
	panelText       = color.NRGBA{R: 0xec, G: 0xe8, B: 0xe1, A: 0xff}
)

func (fmtoyTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return panelBackground
	case theme.ColorNameButton:
		return panelButton
	case theme.ColorNameHover:
		return panelHover
	case theme.ColorNameInputBackground:
		return panelInput
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		return amber
	case theme.ColorNameForeground:
		return panelText
	}
	return theme.DefaultTheme().Color(name, theme.VariantDark)
}

func (fmtoyTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (fmtoyTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (fmtoyTheme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNamePadding {
		return 6
	}
	return theme.DefaultTheme().Size(name)
}
