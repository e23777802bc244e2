package voice

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
)

// Format identifies a voice file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatOPM            // VOPM text bank
	FormatTFI            // TFM Music Maker single instrument
	FormatY12            // Gens KMod register dump
	FormatDMP            // DefleMask FM instrument
	FormatINS            // MVSTracker instrument
)

func (f Format) String() string {
	switch f {
	case FormatOPM:
		return "OPM"
	case FormatTFI:
		return "TFI"
	case FormatY12:
		return "Y12"
	case FormatDMP:
		return "DMP"
	case FormatINS:
		return "INS"
	}
	return "unknown"
}

// Bank is an ordered list of programs.
type Bank struct {
	records []*Record
}

// NewBank builds a bank from already validated records.
func NewBank(records ...*Record) *Bank {
	b := &Bank{}
	b.records = append(b.records, records...)
	return b
}

// Len returns the number of programs in the bank.
func (b *Bank) Len() int {
	if b == nil {
		return 0
	}
	return len(b.records)
}

// Program returns the record for a program index.
func (b *Bank) Program(n int) (*Record, error) {
	if n < 0 || n >= b.Len() {
		return nil, fmt.Errorf("%w: %d (bank has %d)", ErrProgramRange, n, b.Len())
	}
	return b.records[n], nil
}

// Records returns a copy of the program list.
func (b *Bank) Records() []*Record {
	out := make([]*Record, b.Len())
	if b != nil {
		copy(out, b.records)
	}
	return out
}

// Append adds the programs of other after the programs of b.
func (b *Bank) Append(other *Bank) {
	b.records = append(b.records, other.records...)
}

// DetectFormat guesses the format from the file name and contents.
func DetectFormat(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".opm":
		return FormatOPM
	case ".tfi":
		return FormatTFI
	case ".y12":
		return FormatY12
	case ".dmp":
		return FormatDMP
	case ".ins":
		return FormatINS
	}
	switch {
	case bytes.HasPrefix(data, insMagic):
		return FormatINS
	case isDMP(data):
		return FormatDMP
	case bytes.Contains(data, []byte("@:")):
		return FormatOPM
	case len(data) == tfiSize:
		return FormatTFI
	case len(data) == y12Size:
		return FormatY12
	}
	return FormatUnknown
}

// Parse decodes a voice file already in memory.
func Parse(name string, data []byte) (*Bank, error) {
	var (
		records []*Record
		err     error
	)
	format := DetectFormat(name, data)
	switch format {
	case FormatOPM:
		records, err = parseOPM(data)
	case FormatTFI:
		records, err = parseTFI(name, data)
	case FormatY12:
		records, err = parseY12(name, data)
	case FormatDMP:
		records, err = parseDMP(name, data)
	case FormatINS:
		records, err = parseINS(name, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", format, err)
	}
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s program %d: %w", format, i, err)
		}
	}
	return NewBank(records...), nil
}

// Load reads and decodes a voice file.
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("read voice file "+path))
	}
	b, err := Parse(path, data)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("parse voice file "+path))
	}
	return b, nil
}

// LoadFiles loads several voice files into one bank, in argument order.
func LoadFiles(paths ...string) (*Bank, error) {
	bank := NewBank()
	for _, p := range paths {
		b, err := Load(p)
		if err != nil {
			return nil, err
		}
		bank.Append(b)
	}
	return bank, nil
}
