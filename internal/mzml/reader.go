package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"io"
	"math"
	"regexp"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Read reads mzML file from an io.Reader
func Read(reader io.Reader) (MzML, error) {
	var mzML MzML

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	// We are only interested in mzML content, so skip over indexedmzML
	// and everything else
	for {
		t, tokenErr := d.Token()
		if tokenErr != nil {
			if tokenErr == io.EOF {
				break
			}
			return mzML, tokenErr
		}
		switch t := t.(type) {
		case xml.StartElement:
			if t.Name.Local == "mzML" {
				if err := d.DecodeElement(&mzML.content, &t); err != nil {
					return mzML, err
				}
			}
		}
	}

	err := mzML.traverseScan()
	return mzML, err
}

// binaryDataPars decodes the CV terms in a mzML binarydata section
//
// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
//
// CV Terms for binary data array types
// MS:1000514 m/z array
// MS:1000515 intensity array
//
// CV Terms for binary-data-type
// MS:1000521 32-bit float
// MS:1000523 64-bit float
func binaryDataPars(b *binaryDataArray) (zlibCompression, bits64, mzArray, intensityArray bool) {
	for _, cvParam := range b.CvPar {
		switch cvParam.Accession {
		case `MS:1000574`: // zlib compression
			zlibCompression = true
		case `MS:1000514`: // m/z array
			mzArray = true
		case `MS:1000515`: // intensity array
			intensityArray = true
		case `MS:1000523`: // 64-bit float
			bits64 = true
		}
	}
	return zlibCompression, bits64, mzArray, intensityArray
}

// decodeBinaryArray decodes a single base64 (optionally zlib compressed)
// binary data array into float64 values
func decodeBinaryArray(b *binaryDataArray, zlibCompression, bits64 bool) ([]float64, error) {
	data, err := base64.StdEncoding.DecodeString(b.Binary)
	if err != nil {
		return nil, err
	}
	if zlibCompression {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer z.Close()
		d, err := io.ReadAll(z)
		if err != nil {
			return nil, err
		}
		data = d
	}
	var vals []float64
	if bits64 {
		cnt := len(data) / 8
		vals = make([]float64, cnt)
		for i := 0; i < cnt; i++ {
			bits := binary.LittleEndian.Uint64(data[i*8:])
			vals[i] = math.Float64frombits(bits)
		}
	} else {
		cnt := len(data) / 4
		vals = make([]float64, cnt)
		for i := 0; i < cnt; i++ {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			vals[i] = float64(math.Float32frombits(bits))
		}
	}
	return vals, nil
}

// NumSpecs returns the number of spectra
func (f *MzML) NumSpecs() int {
	return len(f.content.Run.SpectrumList.Spectrum)
}

// RetentionTime returns the retention time of a spectrum in seconds.
// Retention times stored in minutes are converted at this point, so
// that all users of this package see a single unit.
func (f *MzML) RetentionTime(scanIndex int) (float64, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return 0.0, ErrInvalidScanIndex
	}
	for _, scan := range f.content.Run.SpectrumList.Spectrum[scanIndex].ScanList.Scan {
		for _, cvParam := range scan.CvPar {
			if cvParam.Accession == "MS:1000016" {
				retentionTime, err := strconv.ParseFloat(cvParam.Value, 64)
				// Check if the retention time is in minutes, otherwise assume it's seconds
				if cvParam.UnitAccession == "UO:0000031" ||
					cvParam.UnitAccession == "MS:1000038" {
					retentionTime *= 60
				}

				return retentionTime, err
			}
		}
	}
	return -1.0, nil
}

// ReadScan reads the peaks of a single scan.
// scanIndex is the sequence number of the scan in the mzML file,
// not the scan number that instruments put in the scan identifier.
// To read a scan using the scan number, use ReadScan(f.ScanNumberIndex(n)).
// The m/z and intensity arrays must decode to the same number of values,
// otherwise ErrMalformedPeaks is returned.
func (f *MzML) ReadScan(scanIndex int) ([]Peak, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return nil, ErrInvalidScanIndex
	}
	var mzs, intensities []float64
	for _, b := range f.content.Run.SpectrumList.Spectrum[scanIndex].BinaryDataArrayList.BinaryDataArray {
		b := b
		zlibCompression, bits64, mzArray, intensityArray := binaryDataPars(&b)
		if !mzArray && !intensityArray {
			continue
		}
		vals, err := decodeBinaryArray(&b, zlibCompression, bits64)
		if err != nil {
			return nil, err
		}
		if mzArray {
			mzs = vals
		} else {
			intensities = vals
		}
	}
	if len(mzs) != len(intensities) {
		return nil, ErrMalformedPeaks
	}
	p := make([]Peak, len(mzs))
	for i := range mzs {
		p[i].Mz = mzs[i]
		p[i].Intens = intensities[i]
	}
	return p, nil
}

// Centroid returns true if the spectrum contains centroid peaks
func (f *MzML) Centroid(scanIndex int) (bool, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return false, ErrInvalidScanIndex
	}

	for _, cvParam := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cvParam.Accession == "MS:1000127" { // centroid spectrum
			return true, nil
		}
	}
	return false, nil
}

// MSLevel returns the MS level of a scan
func (f *MzML) MSLevel(scanIndex int) (int, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return 0, ErrInvalidScanIndex
	}

	for _, cvParam := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cvParam.Accession == "MS:1000511" { // ms level
			msLevel, err := strconv.ParseInt(cvParam.Value, 10, 64)
			return int(msLevel), err
		}
	}
	return 1, nil // If nothing else, guess it's MS1
}

var scanNumRE = regexp.MustCompile(`scan=(\d+)`)

// traverseScan traverses all scans and fills the lookup tables
// f.index2id, f.id2Index and f.num2Index to make scans accessible
func (f *MzML) traverseScan() error {
	f.index2id = make([]string, f.NumSpecs())
	f.id2Index = make(map[string]int, f.NumSpecs())
	f.num2Index = make(map[int]int, f.NumSpecs())

	for i := range f.content.Run.SpectrumList.Spectrum {
		if err := f.addSpecToIndex(i); err != nil {
			return err
		}
	}
	return nil
}

func (f *MzML) addSpecToIndex(i int) error {
	if i != f.content.Run.SpectrumList.Spectrum[i].Index {
		return ErrInvalidScanIndex
	}
	id := f.content.Run.SpectrumList.Spectrum[i].ID
	f.index2id[i] = id
	f.id2Index[id] = i
	// Most instruments embed the acquisition scan number in the
	// native spectrum identifier ("... scan=1234"). If absent, fall
	// back to one-based position, which search engines use for files
	// without native scan numbers.
	if m := scanNumRE.FindStringSubmatch(id); m != nil {
		num, err := strconv.Atoi(m[1])
		if err == nil {
			f.num2Index[num] = i
			return nil
		}
	}
	if _, ok := f.num2Index[i+1]; !ok {
		f.num2Index[i+1] = i
	}
	return nil
}

// ScanIndex converts a scan identifier (the string used in the mzML file)
// into an index that is used to access the scans
func (f *MzML) ScanIndex(scanID string) (int, error) {
	if index, ok := f.id2Index[scanID]; ok {
		return index, nil
	}
	return 0, ErrInvalidScanID
}

// ScanID converts a scan index (used to access the scan data) into a scan id
// (used in the mzML file)
func (f *MzML) ScanID(scanIndex int) (string, error) {
	if scanIndex >= 0 && scanIndex < f.NumSpecs() {
		return f.index2id[scanIndex], nil
	}
	return "", ErrInvalidScanIndex
}

// ScanNumberIndex converts an instrument scan number (as reported by
// search engines) into a scan index
func (f *MzML) ScanNumberIndex(scanNumber int) (int, error) {
	if index, ok := f.num2Index[scanNumber]; ok {
		return index, nil
	}
	return 0, ErrInvalidScanNumber
}
