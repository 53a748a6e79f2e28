// Package mzmltest builds small synthetic mzML documents for tests.
// The generated files contain only the parts that the reader consumes:
// a run with centroided spectra, scan start times and base64 encoded
// peak arrays.
package mzmltest

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Spectrum describes one synthetic scan.
type Spectrum struct {
	ScanNumber  int     // embedded in the native id as "scan=N"
	RT          float64 // seconds
	MSLevel     int     // 0 means 1
	Mzs         []float64
	Intensities []float64
	Zlib        bool // zlib-compress the binary arrays
	Bits32      bool // encode as 32-bit floats
	Minutes     bool // store the scan start time in minutes

	// TruncateIntensities drops the last intensity value,
	// producing mismatched peak arrays
	TruncateIntensities bool
}

func encodeArray(vals []float64, compress, bits32 bool) string {
	var buf bytes.Buffer
	for _, v := range vals {
		if bits32 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v)))
			buf.Write(b[:])
		} else {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
			buf.Write(b[:])
		}
	}
	data := buf.Bytes()
	if compress {
		var z bytes.Buffer
		w := zlib.NewWriter(&z)
		w.Write(data)
		w.Close()
		data = z.Bytes()
	}
	return base64.StdEncoding.EncodeToString(data)
}

func writeBinaryArray(sb *strings.Builder, vals []float64, typeCV string, compress, bits32 bool) {
	bitsCV := `<cvParam accession="MS:1000523" name="64-bit float"/>`
	if bits32 {
		bitsCV = `<cvParam accession="MS:1000521" name="32-bit float"/>`
	}
	compCV := `<cvParam accession="MS:1000576" name="no compression"/>`
	if compress {
		compCV = `<cvParam accession="MS:1000574" name="zlib compression"/>`
	}
	enc := encodeArray(vals, compress, bits32)
	fmt.Fprintf(sb, `<binaryDataArray encodedLength="%d">%s%s%s<binary>%s</binary></binaryDataArray>`,
		len(enc), bitsCV, compCV, typeCV, enc)
}

// Build renders the spectra into an mzML document.
func Build(specs []Spectrum) []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	sb.WriteString(`<mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">`)
	fmt.Fprintf(&sb, `<run id="synthetic"><spectrumList count="%d">`, len(specs))
	for i, s := range specs {
		msLevel := s.MSLevel
		if msLevel == 0 {
			msLevel = 1
		}
		fmt.Fprintf(&sb, `<spectrum index="%d" id="controllerType=0 controllerNumber=1 scan=%d" defaultArrayLength="%d">`,
			i, s.ScanNumber, len(s.Mzs))
		fmt.Fprintf(&sb, `<cvParam accession="MS:1000511" name="ms level" value="%d"/>`, msLevel)
		sb.WriteString(`<cvParam accession="MS:1000127" name="centroid spectrum"/>`)
		rt, unitAcc, unitName := s.RT, "UO:0000010", "second"
		if s.Minutes {
			rt, unitAcc, unitName = s.RT/60, "UO:0000031", "minute"
		}
		fmt.Fprintf(&sb, `<scanList count="1"><scan><cvParam accession="MS:1000016" name="scan start time" value="%.10g" unitAccession="%s" unitName="%s"/></scan></scanList>`,
			rt, unitAcc, unitName)
		intensities := s.Intensities
		if s.TruncateIntensities && len(intensities) > 0 {
			intensities = intensities[:len(intensities)-1]
		}
		sb.WriteString(`<binaryDataArrayList count="2">`)
		writeBinaryArray(&sb, s.Mzs, `<cvParam accession="MS:1000514" name="m/z array"/>`, s.Zlib, s.Bits32)
		writeBinaryArray(&sb, intensities, `<cvParam accession="MS:1000515" name="intensity array"/>`, s.Zlib, s.Bits32)
		sb.WriteString(`</binaryDataArrayList></spectrum>`)
	}
	sb.WriteString(`</spectrumList></run></mzML>`)
	return []byte(sb.String())
}
