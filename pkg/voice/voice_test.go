package voice

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOPM = `//MiOPMdrv sound bank Paramer Ver2002.04.22
//LFO: LFRQ AMD PMD WF NFRQ
//@:[Num] [Name]
//CH: PAN	FL CON AMS PMS SLOT NE
//[OPname]:	AR D1R D2R	RR D1L	TL	KS MUL DT1 DT2 AMS-EN

@:0 Brass
LFO:  0   0   0   0   0
CH: 192   5   3   1   2 120   0
M1:  31  10   0   7   2  30   1   1   3   0   0
C1:  31  12   0   7   2  40   1   2   0   1   0
M2:  28   8   0   7   2  35   1   1   7   0 128
C2:  31   6   2   8   1   0   1   1   0   0   0

@:1 Organ
LFO:  0   0   0   0   0
CH:  64   0   7   0   0  80   0
M1:  31   0   0  15   0  10   0   1   0   0   0
C1:  31   0   0  15   0  20   0   2   0   0   0
M2:  31   0   0  15   0  30   0   4   0   0   0
C2:  31   0   0  15   0  40   0   8   0   0   0
`

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestParseOPM(t *testing.T) {
	bank, err := Parse("bank.opm", []byte(sampleOPM))
	require.NoError(t, err)
	require.Equal(t, 2, bank.Len())

	brass, err := bank.Program(0)
	require.NoError(t, err)
	assert.Equal(t, "Brass", brass.Name)
	assert.Equal(t, uint8(3), brass.Connection)
	assert.Equal(t, uint8(5), brass.Feedback)
	assert.Equal(t, uint8(1), brass.AMS)
	assert.Equal(t, uint8(2), brass.PMS)
	assert.True(t, brass.PanLeft)
	assert.True(t, brass.PanRight)
	assert.Equal(t, MaskAll, brass.OpMask)

	// file order is M1 C1 M2 C2, records are kept in register order
	assert.Equal(t, uint8(30), brass.Ops[OpM1].TL)
	assert.Equal(t, uint8(35), brass.Ops[OpM2].TL)
	assert.Equal(t, uint8(40), brass.Ops[OpC1].TL)
	assert.Equal(t, uint8(0), brass.Ops[OpC2].TL)
	assert.True(t, brass.Ops[OpM2].AMEnable)
	assert.Equal(t, uint8(1), brass.Ops[OpC1].DT2)
	assert.Equal(t, uint8(7), brass.Ops[OpM2].DT1)

	organ, err := bank.Program(1)
	require.NoError(t, err)
	assert.True(t, organ.PanLeft)
	assert.False(t, organ.PanRight)
	// SLOT 80 = 0x50: C1 (0x10) and C2 (0x40)
	assert.Equal(t, uint8(1<<OpC1|1<<OpC2), organ.OpMask)
}

func TestParseOPMIncomplete(t *testing.T) {
	src := "@:0 Broken\nCH: 192 0 7 0 0 120 0\nM1: 31 0 0 15 0 10 0 1 0 0 0\n"
	_, err := Parse("broken.opm", []byte(src))
	require.Error(t, err)
}

func TestParseOPMOutOfRange(t *testing.T) {
	src := "@:0 Loud\nCH: 192 0 9 0 0 120 0\n" +
		"M1: 31 0 0 15 0 10 0 1 0 0 0\nC1: 31 0 0 15 0 10 0 1 0 0 0\n" +
		"M2: 31 0 0 15 0 10 0 1 0 0 0\nC2: 31 0 0 15 0 10 0 1 0 0 0\n"
	_, err := Parse("loud.opm", []byte(src))
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestParseTFI(t *testing.T) {
	data := make([]byte, tfiSize)
	data[0] = 4 // algorithm
	data[1] = 6 // feedback
	for i := 0; i < OperatorCount; i++ {
		op := data[2+i*10:]
		op[0] = uint8(i + 1) // MUL
		op[1] = uint8(i + 2) // DT: 2,3,4,5
		op[2] = uint8(10 * i)
		op[4] = 31
		op[7] = 9
		op[8] = 3
	}
	bank, err := Parse(writeFile(t, "lead.tfi", data), data)
	require.NoError(t, err)
	r, err := bank.Program(0)
	require.NoError(t, err)

	assert.Equal(t, "lead", r.Name)
	assert.Equal(t, uint8(4), r.Connection)
	assert.Equal(t, uint8(6), r.Feedback)
	assert.Equal(t, []uint8{5, 0, 1, 2}, []uint8{r.Ops[0].DT1, r.Ops[1].DT1, r.Ops[2].DT1, r.Ops[3].DT1})
	assert.Equal(t, uint8(20), r.Ops[2].TL)
	assert.Equal(t, uint8(3), r.Ops[3].D1L)
}

func TestParseTFIBadDetune(t *testing.T) {
	data := make([]byte, tfiSize)
	data[3] = 9
	_, err := Parse("bad.tfi", data)
	require.Error(t, err)
}

func TestParseY12(t *testing.T) {
	data := make([]byte, y12Size)
	for i := 0; i < OperatorCount; i++ {
		op := data[i*16:]
		op[0] = 0x31 // DT1 3, MUL 1
		op[1] = 0x20
		op[2] = 0x9F // KS 2, AR 31
		op[3] = 0x85 // AM, D1R 5
		op[4] = 0x03
		op[5] = 0x4A // D1L 4, RR 10
		op[6] = 0x09
	}
	data[0x40] = 2
	data[0x41] = 5
	copy(data[0x50:], "Bass 1")

	bank, err := Parse("dump.y12", data)
	require.NoError(t, err)
	r, _ := bank.Program(0)
	assert.Equal(t, "Bass 1", r.Name)
	assert.Equal(t, uint8(2), r.Connection)
	assert.Equal(t, uint8(5), r.Feedback)
	op := r.Ops[3]
	assert.Equal(t, Operator{DT1: 3, MUL: 1, TL: 0x20, KS: 2, AR: 31, AMEnable: true, D1R: 5, D2R: 3, D1L: 4, RR: 10, SSGEG: 9}, op)
}

// dmpFile builds a DefleMask FM instrument with the given header and
// four operators in slot order.
func dmpFile(header []byte, ops [OperatorCount][dmpOperatorSize]byte) []byte {
	data := append([]byte(nil), header...)
	for _, op := range ops {
		data = append(data, op[:]...)
	}
	return data
}

func dmpOps(dt func(slot int) byte) [OperatorCount][dmpOperatorSize]byte {
	var ops [OperatorCount][dmpOperatorSize]byte
	for i := range ops {
		// MULT TL AR DR SL RR AM KSR DT D2R SSG
		ops[i] = [dmpOperatorSize]byte{byte(i + 1), byte(10 * i), 31, 5, 3, 9, byte(i & 1), 1, dt(i), 4, 0x19}
	}
	return ops
}

func TestParseDMP(t *testing.T) {
	centred := func(int) byte { return 3 }

	tests := []struct {
		name  string
		file  string
		data  []byte
		check func(t *testing.T, r *Record)
	}{
		{
			name: "genesis v11",
			file: "lead.dmp",
			data: dmpFile([]byte{11, dmpSystemGenesis, 1, 3, 5, 4, 2}, dmpOps(func(i int) byte { return byte(i + 2) })),
			check: func(t *testing.T, r *Record) {
				assert.Equal(t, "lead", r.Name)
				assert.Equal(t, uint8(4), r.Connection)
				assert.Equal(t, uint8(5), r.Feedback)
				assert.Equal(t, uint8(3), r.PMS)
				assert.Equal(t, uint8(2), r.AMS)
				// slots S1 S2 S3 S4 land in register order S1 S3 S2 S4
				assert.Equal(t, []uint8{1, 3, 2, 4}, []uint8{r.Ops[0].MUL, r.Ops[1].MUL, r.Ops[2].MUL, r.Ops[3].MUL})
				assert.Equal(t, []uint8{5, 1, 0, 2}, []uint8{r.Ops[0].DT1, r.Ops[1].DT1, r.Ops[2].DT1, r.Ops[3].DT1})
				assert.Equal(t, Operator{MUL: 2, TL: 10, AR: 31, D1R: 5, D1L: 3, RR: 9, AMEnable: true, KS: 1, DT1: 0, D2R: 4, SSGEG: 9}, r.Ops[OpC1])
			},
		},
		{
			name: "arcade v11",
			file: "brass.dmp",
			data: dmpFile([]byte{11, dmpSystemArcade, 1, 0, 7, 7, 0}, dmpOps(func(int) byte { return 0x23 })),
			check: func(t *testing.T, r *Record) {
				assert.Equal(t, uint8(7), r.Connection)
				for i, op := range r.Ops {
					assert.Equal(t, uint8(2), op.DT2, "operator %d", i)
					assert.Equal(t, uint8(0), op.DT1, "operator %d", i)
					assert.Zero(t, op.SSGEG, "operator %d", i)
				}
			},
		},
		{
			name: "genesis v9 detected by content",
			file: "noext",
			data: dmpFile([]byte{9, 1, 0, 6, 1}, dmpOps(centred)),
			check: func(t *testing.T, r *Record) {
				assert.Equal(t, uint8(1), r.Connection)
				assert.Equal(t, uint8(6), r.Feedback)
				assert.Zero(t, r.PMS)
				assert.Equal(t, uint8(4), r.Ops[OpC2].MUL)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, FormatDMP, DetectFormat(tt.file, tt.data))
			bank, err := Parse(tt.file, tt.data)
			require.NoError(t, err)
			require.Equal(t, 1, bank.Len())
			r, _ := bank.Program(0)
			tt.check(t, r)
		})
	}
}

func TestParseDMPRejects(t *testing.T) {
	centred := dmpOps(func(int) byte { return 3 })
	badDetune := centred
	badDetune[2][8] = 7

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not FM", dmpFile([]byte{11, dmpSystemGenesis, 0, 0, 0, 0, 0}, centred)},
		{"no FM chip", dmpFile([]byte{11, 0x03, 1, 0, 0, 0, 0}, centred)},
		{"version", dmpFile([]byte{12, dmpSystemGenesis, 1, 0, 0, 0, 0}, centred)},
		{"truncated", dmpFile([]byte{11, dmpSystemGenesis, 1, 0, 0, 0, 0}, centred)[:40]},
		{"detune", dmpFile([]byte{11, dmpSystemGenesis, 1, 0, 0, 0, 0}, badDetune)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.dmp", tt.data)
			assert.Error(t, err)
		})
	}
}

func insFile(title string, body []byte) []byte {
	data := append([]byte("MVSI1"), title...)
	data = append(data, 0)
	return append(data, body...)
}

// insBody gives the four operators the same registers except TL, which
// rises with the operator index.
func insBody() []byte {
	body := make([]byte, insBodySize)
	for i := 0; i < OperatorCount; i++ {
		body[0*4+i] = 0x31 // DT1 3, MUL 1
		body[1*4+i] = byte(0x20 + i)
		body[2*4+i] = 0x9F // KS 2, AR 31
		body[3*4+i] = 0x85 // AM, D1R 5
		body[4*4+i] = 0x03
		body[5*4+i] = 0x4A // D1L 4, RR 10
		body[6*4+i] = 0x09
	}
	body[28] = 5<<3 | 2
	return body
}

func TestParseINS(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		data     []byte
		wantName string
	}{
		{"named", "piano.ins", insFile("Piano", insBody()), "Piano"},
		{"unnamed", "epiano.ins", insFile("", insBody()), "epiano"},
		{"detected by header", "noext", insFile("Bell", insBody()), "Bell"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, FormatINS, DetectFormat(tt.file, tt.data))
			bank, err := Parse(tt.file, tt.data)
			require.NoError(t, err)
			r, _ := bank.Program(0)
			assert.Equal(t, tt.wantName, r.Name)
			assert.Equal(t, uint8(2), r.Connection)
			assert.Equal(t, uint8(5), r.Feedback)
			assert.Equal(t, Operator{DT1: 3, MUL: 1, TL: 0x23, KS: 2, AR: 31, AMEnable: true, D1R: 5, D2R: 3, D1L: 4, RR: 10, SSGEG: 9}, r.Ops[3])
			assert.Equal(t, uint8(0x21), r.Ops[OpM2].TL)
		})
	}
}

func TestParseINSRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"no header", append([]byte("XXXX1a\x00"), insBody()...)},
		{"no version", []byte("MVSI")},
		{"unterminated name", []byte("MVSI1Piano")},
		{"short body", insFile("Piano", insBody()[:20])},
		{"long body", insFile("Piano", append(insBody(), 0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.ins", tt.data)
			assert.Error(t, err)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatOPM, DetectFormat("x.OPM", nil))
	assert.Equal(t, FormatTFI, DetectFormat("noext", make([]byte, tfiSize)))
	assert.Equal(t, FormatY12, DetectFormat("noext", make([]byte, y12Size)))
	assert.Equal(t, FormatOPM, DetectFormat("noext", []byte("@:0 x")))
	assert.Equal(t, FormatDMP, DetectFormat("x.DMP", nil))
	assert.Equal(t, FormatINS, DetectFormat("x.ins", nil))
	assert.Equal(t, FormatUnknown, DetectFormat("noext", []byte{1, 2, 3}))
	assert.Equal(t, "DMP", FormatDMP.String())
	assert.Equal(t, "INS", FormatINS.String())

	_, err := Parse("noext", []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoadFiles(t *testing.T) {
	opm := writeFile(t, "a.opm", []byte(sampleOPM))
	tfi := writeFile(t, "b.tfi", make([]byte, tfiSize))

	bank, err := LoadFiles(opm, tfi)
	require.NoError(t, err)
	require.Equal(t, 3, bank.Len())
	r, _ := bank.Program(2)
	assert.Equal(t, "b", r.Name)

	_, err = bank.Program(3)
	assert.ErrorIs(t, err, ErrProgramRange)
	_, err = bank.Program(-1)
	assert.ErrorIs(t, err, ErrProgramRange)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.opm"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestInitRecordIsValid(t *testing.T) {
	require.NoError(t, Init().Validate())
	var nilRecord *Record
	assert.ErrorIs(t, nilRecord.Validate(), ErrInvalidRecord)
}
