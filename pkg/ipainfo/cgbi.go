package ipainfo

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
)

// Apple's Xcode "pngcrush" stores app icons as CgBI PNGs: a CgBI chunk
// precedes IHDR, IDAT holds raw deflate data without the zlib wrapper and
// pixels are stored as BGR(A) with premultiplied alpha. Generic PNG readers
// reject these files.

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

const (
	chunkCgBI = "CgBI"
	chunkIHDR = "IHDR"
	chunkIDAT = "IDAT"
	chunkIEND = "IEND"

	// Maximum chunk length allowed by the PNG specification
	maxChunkLength = 1<<31 - 1

	// Size of IDAT chunks written when re-compressing image data
	idatChunkSize = 1 << 16

	colorTypeRGB  = 2
	colorTypeRGBA = 6
)

type pngChunk struct {
	Type string
	Data []byte
}

type pngHeader struct {
	Width     uint32
	Height    uint32
	BitDepth  uint8
	ColorType uint8
	Interlace uint8
}

// adam7 lists the interlace passes as xStart, yStart, xStep, yStep
var adam7 = [7][4]int{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 0, 4, 4},
	{0, 2, 2, 4},
	{1, 0, 2, 2},
	{0, 1, 1, 2},
}

// IsCgBI reports whether data is a PNG carrying Apple's CgBI chunk
func IsCgBI(data []byte) bool {
	if !bytes.HasPrefix(data, pngSignature) {
		return false
	}
	chunks, err := readChunks(data)
	if err != nil {
		return false
	}
	return hasChunk(chunks, chunkCgBI)
}

// NormalizePNG converts a CgBI PNG into a standard PNG. PNGs without the
// CgBI chunk are returned unchanged.
func NormalizePNG(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, ErrNotPNG
	}

	chunks, err := readChunks(data)
	if err != nil {
		return nil, err
	}

	if !hasChunk(chunks, chunkCgBI) {
		return data, nil
	}

	return defry(chunks)
}

// NormalizePNGFile reads the PNG at src and writes the standard PNG to dst.
// src and dst may be the same path. dst is replaced atomically, so a failed
// conversion never leaves a partially written file behind.
func NormalizePNGFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read icon: %w", err)
	}

	out, err := NormalizePNG(data)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".icon-*.png")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write icon: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write icon: %w", err)
	}

	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dst)
}

// readChunks splits a PNG stream into chunks up to and including IEND
func readChunks(data []byte) ([]pngChunk, error) {
	var (
		chunks []pngChunk
		pos    = len(pngSignature)
	)

	for {
		if len(data)-pos < 8 {
			return nil, fmt.Errorf("%w: truncated stream at offset %d", ErrIconDecode, pos)
		}

		length := binary.BigEndian.Uint32(data[pos : pos+4])
		typ := data[pos+4 : pos+8]
		if length > maxChunkLength {
			return nil, fmt.Errorf("%w: invalid chunk length %d at offset %d", ErrIconDecode, length, pos)
		}
		if !validChunkType(typ) {
			return nil, fmt.Errorf("%w: invalid chunk type %q at offset %d", ErrIconDecode, typ, pos)
		}

		// length + type + data + crc
		end := pos + 8 + int(length) + 4
		if end > len(data) || end < pos {
			return nil, fmt.Errorf("%w: chunk %s overruns stream", ErrIconDecode, typ)
		}

		chunk := pngChunk{Type: string(typ), Data: data[pos+8 : pos+8+int(length)]}
		chunks = append(chunks, chunk)
		pos = end

		if chunk.Type == chunkIEND {
			return chunks, nil
		}
	}
}

func validChunkType(typ []byte) bool {
	for _, c := range typ {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

func hasChunk(chunks []pngChunk, typ string) bool {
	for _, c := range chunks {
		if c.Type == typ {
			return true
		}
	}
	return false
}

func parseHeader(data []byte) (*pngHeader, error) {
	if len(data) != 13 {
		return nil, fmt.Errorf("%w: IHDR has length %d", ErrIconDecode, len(data))
	}

	hdr := &pngHeader{
		Width:     binary.BigEndian.Uint32(data[0:4]),
		Height:    binary.BigEndian.Uint32(data[4:8]),
		BitDepth:  data[8],
		ColorType: data[9],
		Interlace: data[12],
	}

	if hdr.Width == 0 || hdr.Height == 0 {
		return nil, fmt.Errorf("%w: zero image dimensions", ErrIconDecode)
	}
	if hdr.Interlace > 1 {
		return nil, fmt.Errorf("%w: unknown interlace method %d", ErrIconDecode, hdr.Interlace)
	}

	return hdr, nil
}

// channels returns the number of samples per pixel for a colour type
func (h *pngHeader) channels() (int, error) {
	switch h.ColorType {
	case 0, 3:
		return 1, nil
	case 4:
		return 2, nil
	case colorTypeRGB:
		return 3, nil
	case colorTypeRGBA:
		return 4, nil
	}
	return 0, fmt.Errorf("%w: unknown colour type %d", ErrIconDecode, h.ColorType)
}

// passes returns the sub-image sizes the scanlines are grouped into
func (h *pngHeader) passes() [][2]int {
	w, ht := int(h.Width), int(h.Height)
	if h.Interlace == 0 {
		return [][2]int{{w, ht}}
	}

	var sizes [][2]int
	for _, p := range adam7 {
		pw := (w - p[0] + p[2] - 1) / p[2]
		ph := (ht - p[1] + p[3] - 1) / p[3]
		if pw <= 0 || ph <= 0 {
			continue
		}
		sizes = append(sizes, [2]int{pw, ph})
	}
	return sizes
}

// defry rebuilds a standard PNG from the chunks of a CgBI PNG
func defry(chunks []pngChunk) ([]byte, error) {
	var (
		header     []byte
		compressed bytes.Buffer
		before     []pngChunk
		after      []pngChunk
		seenIDAT   bool
	)

	for _, c := range chunks {
		switch c.Type {
		case chunkCgBI, chunkIEND:
		case chunkIHDR:
			header = c.Data
		case chunkIDAT:
			seenIDAT = true
			compressed.Write(c.Data)
		default:
			if seenIDAT {
				after = append(after, c)
			} else {
				before = append(before, c)
			}
		}
	}

	if header == nil {
		return nil, fmt.Errorf("%w: missing IHDR", ErrIconDecode)
	}
	if !seenIDAT {
		return nil, fmt.Errorf("%w: missing IDAT", ErrIconDecode)
	}

	hdr, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	raw, err := inflate(compressed.Bytes())
	if err != nil {
		return nil, err
	}

	size, err := swapRedBlue(hdr, raw)
	if err != nil {
		return nil, err
	}
	// Strict decoders reject trailing pixel data
	raw = raw[:size]

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress image data: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress image data: %w", err)
	}

	var out bytes.Buffer
	out.Write(pngSignature)
	writeChunk(&out, chunkIHDR, header)
	for _, c := range before {
		writeChunk(&out, c.Type, c.Data)
	}
	for b := idat.Bytes(); len(b) > 0; {
		n := min(len(b), idatChunkSize)
		writeChunk(&out, chunkIDAT, b[:n])
		b = b[n:]
	}
	for _, c := range after {
		writeChunk(&out, c.Type, c.Data)
	}
	writeChunk(&out, chunkIEND, nil)

	return out.Bytes(), nil
}

// inflate decompresses CgBI image data, which is raw deflate. Some tools
// leave the zlib wrapper in place, so that is accepted too.
func inflate(data []byte) ([]byte, error) {
	raw, err := io.ReadAll(flate.NewReader(bytes.NewReader(data)))
	if err == nil {
		return raw, nil
	}

	zr, zerr := zlib.NewReader(bytes.NewReader(data))
	if zerr != nil {
		return nil, fmt.Errorf("%w: bad image data: %v", ErrIconDecode, err)
	}
	defer zr.Close()

	raw, zerr = io.ReadAll(zr)
	if zerr != nil {
		return nil, fmt.Errorf("%w: bad image data: %v", ErrIconDecode, err)
	}

	return raw, nil
}

// swapRedBlue exchanges the first and third sample of every pixel and
// returns the number of bytes the image occupies. RGB rows are swapped in
// their filtered form, since filters predict each byte from the same byte
// offset of neighbouring pixels. RGBA rows are unfiltered first so the
// premultiplied alpha can be divided out, and are left with filter None.
func swapRedBlue(hdr *pngHeader, raw []byte) (int, error) {
	channels, err := hdr.channels()
	if err != nil {
		return 0, err
	}

	bitsPerPixel := channels * int(hdr.BitDepth)
	pos := 0
	for _, p := range hdr.passes() {
		rowBytes := 1 + (p[0]*bitsPerPixel+7)/8
		need := rowBytes * p[1]
		if len(raw)-pos < need {
			return 0, fmt.Errorf("%w: image data too short", ErrIconDecode)
		}

		if hdr.ColorType == colorTypeRGB || hdr.ColorType == colorTypeRGBA {
			if hdr.BitDepth != 8 && hdr.BitDepth != 16 {
				return 0, fmt.Errorf("%w: unsupported bit depth %d", ErrIconDecode, hdr.BitDepth)
			}

			sample := int(hdr.BitDepth) / 8
			pixel := channels * sample
			pass := raw[pos : pos+need]

			alpha := hdr.ColorType == colorTypeRGBA
			if alpha {
				if err := unfilter(pass, rowBytes, pixel); err != nil {
					return 0, err
				}
			}

			for y := 0; y < p[1]; y++ {
				row := pass[y*rowBytes+1 : (y+1)*rowBytes]
				for x := 0; x+pixel <= len(row); x += pixel {
					px := row[x : x+pixel]
					for i := 0; i < sample; i++ {
						px[i], px[2*sample+i] = px[2*sample+i], px[i]
					}
					if alpha {
						unpremultiply(px, sample)
					}
				}
			}
		}

		pos += need
	}

	return pos, nil
}

// unfilter reverses the scanline filters of one pass in place and marks
// every row as unfiltered. bpp is the pixel size in bytes.
func unfilter(pass []byte, rowBytes, bpp int) error {
	var prev []byte
	for off := 0; off < len(pass); off += rowBytes {
		filter := pass[off]
		cur := pass[off+1 : off+rowBytes]

		for i := range cur {
			var left, up, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
			}
			if prev != nil {
				up = prev[i]
				if i >= bpp {
					upLeft = prev[i-bpp]
				}
			}

			switch filter {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return fmt.Errorf("%w: unknown filter type %d", ErrIconDecode, filter)
			}
		}

		pass[off] = 0
		prev = cur
	}

	return nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// unpremultiply divides the colour samples of an RGBA pixel by its alpha.
// Fully transparent and fully opaque pixels are left alone.
func unpremultiply(px []byte, sample int) {
	if sample == 1 {
		a := int(px[3])
		if a == 0 || a == 0xff {
			return
		}
		for i := 0; i < 3; i++ {
			px[i] = byte(min((int(px[i])*0xff+a/2)/a, 0xff))
		}
		return
	}

	a := int(binary.BigEndian.Uint16(px[6:8]))
	if a == 0 || a == 0xffff {
		return
	}
	for i := 0; i < 3; i++ {
		c := int(binary.BigEndian.Uint16(px[2*i : 2*i+2]))
		binary.BigEndian.PutUint16(px[2*i:2*i+2], uint16(min((c*0xffff+a/2)/a, 0xffff)))
	}
}

func writeChunk(w *bytes.Buffer, typ string, data []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	w.Write(length[:])

	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)

	w.WriteString(typ)
	w.Write(data)

	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	w.Write(sum[:])
}
