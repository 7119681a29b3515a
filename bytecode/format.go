package bytecode

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Magic is the leading byte of every bytecode file ("Latin U with
// diaeresis" in Latin-1).
const Magic = 0xDC

// VerMajor and VerMinor are the bytecode format version this package
// reads and writes.
const (
	VerMajor = 0
	VerMinor = 0
	VerPatch = 1
)

// FileHeaderSize is the size, in bytes, of the fixed file header (magic +
// two version bytes + program-header-size byte).
const FileHeaderSize = 4

// ProgHeaderSize is the size, in bytes, of the program header this
// revision writes (text_size + rodata_size, both u32).
const ProgHeaderSize = 8

// ErrNoMagic is returned when the input stream contains no magic byte.
var ErrNoMagic = errors.New("no magic byte found in input")

// ErrTruncated is returned when a section is shorter than its declared size.
var ErrTruncated = errors.New("truncated bytecode section")

// ErrBadVersion is returned on a version mismatch when force is false.
var ErrBadVersion = errors.New("incompatible bytecode version")

// Header is the parsed file + program header.
type Header struct {
	VerMajor       uint8
	VerMinor       uint8
	ProgHeaderSize uint8
	TextSize       uint32
	RodataSize     uint32
}

// CompatibleVersion reports whether h's version matches what this package
// produces.
func (h Header) CompatibleVersion() bool {
	return h.VerMajor == VerMajor && h.VerMinor == VerMinor
}

// ReadHeader scans r for the magic byte (tolerating an arbitrary preamble,
// e.g. a shebang line), then reads the file and program headers. If force
// is false, a version mismatch or an oversized program header is an error;
// bytes of a program header larger than ProgHeaderSize are still consumed
// so the caller can continue reading .text right after.
func ReadHeader(r *bufio.Reader, force bool) (Header, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return Header{}, errors.Wrap(ErrNoMagic, err.Error())
		}
		if b == Magic {
			break
		}
	}
	var fileHdr [FileHeaderSize - 1]byte // ver_major, ver_minor, prog_header_size
	if _, err := io.ReadFull(r, fileHdr[:]); err != nil {
		return Header{}, errors.Wrap(ErrTruncated, "file header")
	}
	h := Header{
		VerMajor:       fileHdr[0],
		VerMinor:       fileHdr[1],
		ProgHeaderSize: fileHdr[2],
	}
	if !h.CompatibleVersion() && !force {
		return Header{}, errors.Wrapf(ErrBadVersion, "%d.%d", h.VerMajor, h.VerMinor)
	}
	if h.ProgHeaderSize < ProgHeaderSize {
		return Header{}, errors.Wrap(ErrTruncated, "program header")
	}
	if h.ProgHeaderSize > ProgHeaderSize && !force {
		return Header{}, errors.New("unrecognized program header size")
	}
	var progHdr [ProgHeaderSize]byte
	if _, err := io.ReadFull(r, progHdr[:]); err != nil {
		return Header{}, errors.Wrap(ErrTruncated, "program header")
	}
	h.TextSize = binary.BigEndian.Uint32(progHdr[0:4])
	h.RodataSize = binary.BigEndian.Uint32(progHdr[4:8])
	if extra := int(h.ProgHeaderSize) - ProgHeaderSize; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return Header{}, errors.Wrap(ErrTruncated, "program header tail")
		}
	}
	return h, nil
}

// WriteHeader writes the file + program header for a bytecode file whose
// .text section is textSize bytes and whose .rodata section is
// rodataSize bytes.
func WriteHeader(w io.Writer, textSize, rodataSize uint32) error {
	buf := make([]byte, FileHeaderSize+ProgHeaderSize)
	buf[0] = Magic
	buf[1] = VerMajor
	buf[2] = VerMinor
	buf[3] = ProgHeaderSize
	binary.BigEndian.PutUint32(buf[4:8], textSize)
	binary.BigEndian.PutUint32(buf[8:12], rodataSize)
	_, err := w.Write(buf)
	return err
}

// MarshalInstr encodes ins into its 8-byte on-disk form, in network byte
// order for the operand.
func MarshalInstr(ins Instr) [InstrSize]byte {
	var b [InstrSize]byte
	b[0] = byte(ins.Op)
	b[1] = byte(ins.OpEx)
	// b[2:4] reserved
	if ins.Op.IsOffset() {
		binary.BigEndian.PutUint32(b[4:8], uint32(ins.Offset))
	} else {
		b[4] = byte(ins.First.Fn)
		b[5] = ins.First.Ch
		b[6] = byte(ins.Second.Fn)
		b[7] = ins.Second.Ch
	}
	return b
}

// UnmarshalInstr decodes an 8-byte on-disk instruction.
func UnmarshalInstr(b [InstrSize]byte) Instr {
	ins := Instr{Op: Op(b[0]), OpEx: Op(b[1])}
	if ins.Op.IsOffset() {
		ins.Offset = int32(binary.BigEndian.Uint32(b[4:8]))
	} else {
		ins.First = Token{Fn: Fn(b[4]), Ch: b[5]}
		ins.Second = Token{Fn: Fn(b[6]), Ch: b[7]}
	}
	return ins
}

// WriteText writes a .text section, encoding each instruction in turn.
func WriteText(w io.Writer, text []Instr) error {
	buf := make([]byte, 0, len(text)*InstrSize)
	for _, ins := range text {
		enc := MarshalInstr(ins)
		buf = append(buf, enc[:]...)
	}
	_, err := w.Write(buf)
	return err
}

// ReadText reads n instructions from r.
func ReadText(r io.Reader, n uint32) ([]Instr, error) {
	text := make([]Instr, n)
	var enc [InstrSize]byte
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, enc[:]); err != nil {
			return nil, errors.Wrap(ErrTruncated, ".text")
		}
		text[i] = UnmarshalInstr(enc)
	}
	return text, nil
}

// ReadRodata reads n raw bytes of .rodata from r.
func ReadRodata(r io.Reader, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(ErrTruncated, ".rodata")
	}
	return buf, nil
}
