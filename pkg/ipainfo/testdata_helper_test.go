package ipainfo

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.mozilla.org/pkcs7"
	"howett.net/plist"
)

// zipEntry is a file (or, with a trailing slash and no data, a directory)
// written into a test archive
type zipEntry struct {
	Name string
	Data []byte
}

// writeIPA writes entries into a new zip file in a temp directory and
// returns its path
func writeIPA(t *testing.T, entries ...zipEntry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "Acme.ipa")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create IPA: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, e := range entries {
		header := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		if e.Data == nil && e.Name[len(e.Name)-1] == '/' {
			header.Method = zip.Store
		}

		fw, err := w.CreateHeader(header)
		if err != nil {
			t.Fatalf("Failed to add %s: %v", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			t.Fatalf("Failed to write %s: %v", e.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Failed to finish IPA: %v", err)
	}

	return path
}

func binaryPlist(t *testing.T, v interface{}) []byte {
	t.Helper()

	data, err := plist.Marshal(v, plist.BinaryFormat)
	if err != nil {
		t.Fatalf("Failed to marshal binary plist: %v", err)
	}
	return data
}

func xmlPlist(t *testing.T, v interface{}) []byte {
	t.Helper()

	data, err := plist.MarshalIndent(v, plist.XMLFormat, "\t")
	if err != nil {
		t.Fatalf("Failed to marshal XML plist: %v", err)
	}
	return data
}

// wrappedProfile surrounds an XML plist with bytes that stand in for the
// CMS envelope of a real .mobileprovision
func wrappedProfile(t *testing.T, v interface{}) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.Write([]byte{0x30, 0x80, 0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x07, 0x02, 0xa0, 0x80})
	buf.Write(xmlPlist(t, v))
	buf.Write([]byte{0x00, 0x00, 0xa0, 0x82, 0x0d, 0x3e, 0x30, 0x82})
	return buf.Bytes()
}

var (
	testCertOnce sync.Once
	testCert     *x509.Certificate
	testKey      *rsa.PrivateKey
	testCertErr  error
)

// testIdentity returns a self-signed certificate shaped like an Apple
// distribution certificate
func testIdentity(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()

	testCertOnce.Do(func() {
		testKey, testCertErr = rsa.GenerateKey(rand.Reader, 2048)
		if testCertErr != nil {
			return
		}

		template := &x509.Certificate{
			SerialNumber: big.NewInt(42),
			Subject: pkix.Name{
				CommonName:         "iPhone Distribution: Acme Inc (ABCDE12345)",
				OrganizationalUnit: []string{"ABCDE12345"},
				Organization:       []string{"Acme Inc"},
			},
			NotBefore: time.Now().Add(-time.Hour),
			NotAfter:  time.Now().Add(24 * time.Hour),
			KeyUsage:  x509.KeyUsageDigitalSignature,
		}

		der, err := x509.CreateCertificate(rand.Reader, template, template, &testKey.PublicKey, testKey)
		if err != nil {
			testCertErr = err
			return
		}
		testCert, testCertErr = x509.ParseCertificate(der)
	})

	if testCertErr != nil {
		t.Fatalf("Failed to create test certificate: %v", testCertErr)
	}
	return testCert, testKey
}

// signedProfile wraps content in a real PKCS#7 SignedData container
func signedProfile(t *testing.T, content []byte) []byte {
	t.Helper()

	cert, key := testIdentity(t)

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("Failed to create signed data: %v", err)
	}
	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("Failed to add signer: %v", err)
	}

	der, err := sd.Finish()
	if err != nil {
		t.Fatalf("Failed to finish signed data: %v", err)
	}
	return der
}

// testImage returns a small image with distinct, fully opaque colours so
// that a red/blue mix-up is visible
func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(200 + x),
				G: uint8(10 * y),
				B: uint8(30 + 5*x + y),
				A: 0xff,
			})
		}
	}
	return img
}

func standardPNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

// cgbiPNG encodes img the way Xcode stores app icons: CgBI chunk first,
// BGRA samples and raw deflate image data. filter is applied to every
// scanline (0 = None, 1 = Sub, 2 = Up, 3 = Average, 4 = Paeth).
func cgbiPNG(t *testing.T, img *image.NRGBA, filter byte, interlace bool) []byte {
	t.Helper()

	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	passes := [][4]int{{0, 0, 1, 1}}
	if interlace {
		passes = adam7[:]
	}

	var raw bytes.Buffer
	for _, p := range passes {
		var prev []byte
		for y := p[1]; y < h; y += p[3] {
			var row []byte
			for x := p[0]; x < w; x += p[2] {
				c := img.NRGBAAt(x, y)
				row = append(row, c.B, c.G, c.R, c.A)
			}
			if len(row) == 0 {
				break
			}

			raw.WriteByte(filter)
			raw.Write(filterRow(filter, row, prev, 4))
			prev = row
		}
	}

	var idat bytes.Buffer
	fw, err := flate.NewWriter(&idat, flate.BestCompression)
	if err != nil {
		t.Fatalf("Failed to create deflate writer: %v", err)
	}
	fw.Write(raw.Bytes())
	fw.Close()

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(w))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(h))
	ihdr[8] = 8
	ihdr[9] = colorTypeRGBA
	if interlace {
		ihdr[12] = 1
	}

	var out bytes.Buffer
	out.Write(pngSignature)
	writeChunk(&out, chunkCgBI, []byte{0x50, 0x00, 0x20, 0x06})
	writeChunk(&out, chunkIHDR, ihdr)
	writeChunk(&out, "tEXt", []byte("Software\x00test"))
	// Split the image data to exercise IDAT concatenation
	data := idat.Bytes()
	half := len(data) / 2
	writeChunk(&out, chunkIDAT, data[:half])
	writeChunk(&out, chunkIDAT, data[half:])
	writeChunk(&out, chunkIEND, nil)

	return out.Bytes()
}

func filterRow(filter byte, row, prev []byte, bpp int) []byte {
	out := make([]byte, len(row))
	for i := range row {
		var left, up, upLeft byte
		if i >= bpp {
			left = row[i-bpp]
		}
		if prev != nil {
			up = prev[i]
			if i >= bpp {
				upLeft = prev[i-bpp]
			}
		}

		switch filter {
		case 1:
			out[i] = row[i] - left
		case 2:
			out[i] = row[i] - up
		case 3:
			out[i] = row[i] - byte((int(left)+int(up))/2)
		case 4:
			out[i] = row[i] - paeth(left, up, upLeft)
		default:
			out[i] = row[i]
		}
	}
	return out
}

// translucentImage returns an image whose alpha varies per pixel
func translucentImage(w, h int) *image.NRGBA {
	img := testImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.NRGBAAt(x, y)
			c.A = uint8(64 + 16*((x+y)%12))
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// premultiplied stores the colour samples of img multiplied by alpha, the
// way Xcode writes them. The result is only meant to be fed to cgbiPNG.
func premultiplied(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			mul := func(v uint8) uint8 {
				return uint8((int(v)*int(c.A) + 127) / 255)
			}
			out.SetNRGBA(x, y, color.NRGBA{R: mul(c.R), G: mul(c.G), B: mul(c.B), A: c.A})
		}
	}
	return out
}

const cpuTypeArm64 = 0x0100000c

// thinMachO returns a 64-bit Mach-O executable header without load commands
func thinMachO() []byte {
	hdr := make([]byte, 32)
	binary.LittleEndian.PutUint32(hdr[0:4], 0xfeedfacf) // MH_MAGIC_64
	binary.LittleEndian.PutUint32(hdr[4:8], cpuTypeArm64)
	binary.LittleEndian.PutUint32(hdr[12:16], 2) // MH_EXECUTE
	return hdr
}

// fatMachO wraps thinMachO in a universal binary with a single slice
func fatMachO() []byte {
	const offset = 1 << 12

	thin := thinMachO()
	out := make([]byte, offset, offset+len(thin))
	binary.BigEndian.PutUint32(out[0:4], 0xcafebabe)
	binary.BigEndian.PutUint32(out[4:8], 1)
	binary.BigEndian.PutUint32(out[8:12], cpuTypeArm64)
	binary.BigEndian.PutUint32(out[16:20], offset)
	binary.BigEndian.PutUint32(out[20:24], uint32(len(thin)))
	binary.BigEndian.PutUint32(out[24:28], 12)
	return append(out, thin...)
}
