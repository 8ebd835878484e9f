package shazam

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"strings"

	"tunewire/apperr"
)

// Wire-format constants, bit-exact with the Shazam mobile client.
const (
	magic1 = 0xcafe2580
	magic2 = 0x94119c00

	sampleRateDescriptorShift = 27
	tagBase                   = 0x60030040

	dataURIPrefix = "data:audio/vnd.shazam.sig;base64,"
)

var sampleRateCodes = map[uint32]uint32{
	8000:  1,
	11025: 2,
	16000: 3,
	32000: 4,
	44100: 5,
}

var sampleRatesByCode = func() map[uint32]uint32 {
	m := make(map[uint32]uint32, len(sampleRateCodes))
	for rate, code := range sampleRateCodes {
		m[code] = rate
	}
	return m
}()

// numSamplesOffset is the header's bias on the raw sample count, expressed
// (like the reference decoder) as a fraction of the sample rate rather
// than a fixed constant.
func numSamplesOffset(sampleRate uint32) uint32 {
	return uint32(float64(sampleRate) * 0.24)
}

// Encode serializes the signature into Shazam's binary frame: a 56-byte
// header, then each non-empty band's TLV-tagged, 4-byte-padded peak
// payload.
func (s Signature) Encode() []byte {
	var buf []byte
	write := func(u uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], u)
		buf = append(buf, b[:]...)
	}

	write(magic1)
	write(0) // crc32, filled in below
	write(0) // total payload length, filled in below
	write(magic2)
	write(0)
	write(0)
	write(0)
	write(uint32(sampleRateCodes[s.SampleRateHz]) << sampleRateDescriptorShift)
	write(0)
	write(0)
	write(s.NumSamples + numSamplesOffset(s.SampleRateHz))
	write(0x007c0000)
	write(0x40000000)
	write(0) // peak-payload length again, filled in below

	for band := FrequencyBand(0); band < numBands; band++ {
		peaks := s.peaks[band]
		if len(peaks) == 0 {
			continue
		}
		var peakBuf bytes.Buffer
		var base uint32
		for _, p := range peaks {
			if p.FFTPassNumber-base >= 255 {
				peakBuf.WriteByte(0xff)
				binary.Write(&peakBuf, binary.LittleEndian, p.FFTPassNumber)
				base = p.FFTPassNumber
			}
			binary.Write(&peakBuf, binary.LittleEndian, uint8(p.FFTPassNumber-base))
			binary.Write(&peakBuf, binary.LittleEndian, p.PeakMagnitude)
			binary.Write(&peakBuf, binary.LittleEndian, p.CorrectedPeakFrequencyBin)
			base = p.FFTPassNumber
		}
		write(uint32(tagBase) + uint32(band))
		write(uint32(peakBuf.Len()))
		for peakBuf.Len()%4 != 0 {
			peakBuf.WriteByte(0)
		}
		buf = append(buf, peakBuf.Bytes()...)
	}

	payloadLen := uint32(len(buf[48:]))
	binary.LittleEndian.PutUint32(buf[8:12], payloadLen)
	binary.LittleEndian.PutUint32(buf[52:56], payloadLen)
	binary.LittleEndian.PutUint32(buf[4:8], crc32.ChecksumIEEE(buf[8:]))
	return buf
}

// DecodeSignature parses a Shazam binary frame, failing with
// CorruptSignature on any magic, length, CRC, or band-tag mismatch.
func DecodeSignature(buf []byte) (Signature, error) {
	if len(buf) < 56 {
		return Signature{}, apperr.Newf(apperr.CorruptSignature, "frame too short: %d bytes", len(buf))
	}
	rest := buf
	next := func() uint32 {
		v := binary.LittleEndian.Uint32(rest)
		rest = rest[4:]
		return v
	}

	if next() != magic1 {
		return Signature{}, apperr.Newf(apperr.CorruptSignature, "bad magic1")
	}
	crc := next()
	if crc != crc32.ChecksumIEEE(rest) {
		return Signature{}, apperr.Newf(apperr.CorruptSignature, "bad crc32")
	}
	length := next()
	if length != uint32(len(rest[36:])) {
		return Signature{}, apperr.Newf(apperr.CorruptSignature, "bad length")
	}
	if next() != magic2 {
		return Signature{}, apperr.Newf(apperr.CorruptSignature, "bad magic2")
	}
	_, _, _ = next(), next(), next()

	rateCode := next() >> sampleRateDescriptorShift
	sampleRate, ok := sampleRatesByCode[rateCode]
	if !ok {
		return Signature{}, apperr.Newf(apperr.CorruptSignature, "unknown sample rate code %d", rateCode)
	}
	_, _ = next(), next()
	numSamples := next() - numSamplesOffset(sampleRate)
	if next() != 0x007c0000 {
		return Signature{}, apperr.Newf(apperr.CorruptSignature, "bad magic3")
	}
	if next() != 0x40000000 {
		return Signature{}, apperr.Newf(apperr.CorruptSignature, "bad magic4")
	}
	if next() != uint32(len(rest))+8 {
		return Signature{}, apperr.Newf(apperr.CorruptSignature, "bad peak-payload length")
	}

	sig := Signature{SampleRateHz: sampleRate, NumSamples: numSamples}
	for len(rest) > 0 {
		if len(rest) < 8 {
			return Signature{}, apperr.Newf(apperr.CorruptSignature, "truncated band header")
		}
		tag := next()
		band := FrequencyBand(tag - tagBase)
		if band < 0 || band >= numBands {
			return Signature{}, apperr.Newf(apperr.CorruptSignature, "bad band tag %#x", tag)
		}
		size := next()
		if uint32(len(rest)) < size {
			return Signature{}, apperr.Newf(apperr.CorruptSignature, "truncated band payload")
		}
		payload := rest[:size]
		padded := size
		if padded%4 != 0 {
			padded += 4 - padded%4
		}
		if uint32(len(rest)) < padded {
			return Signature{}, apperr.Newf(apperr.CorruptSignature, "truncated band padding")
		}
		rest = rest[padded:]

		peakReader := bytes.NewReader(payload)
		var base uint32
		for peakReader.Len() > 0 {
			offset, _ := peakReader.ReadByte()
			if offset == 0xff {
				if err := binary.Read(peakReader, binary.LittleEndian, &base); err != nil {
					return Signature{}, apperr.Newf(apperr.CorruptSignature, "truncated long-form pass number")
				}
				continue
			}
			base += uint32(offset)
			var mag, bin uint16
			if err := binary.Read(peakReader, binary.LittleEndian, &mag); err != nil {
				return Signature{}, apperr.Newf(apperr.CorruptSignature, "truncated peak magnitude")
			}
			if err := binary.Read(peakReader, binary.LittleEndian, &bin); err != nil {
				return Signature{}, apperr.Newf(apperr.CorruptSignature, "truncated peak bin")
			}
			sig.peaks[band] = append(sig.peaks[band], FrequencyPeak{
				FFTPassNumber:             base,
				PeakMagnitude:             mag,
				CorrectedPeakFrequencyBin: bin,
				SampleRateHz:              sampleRate,
			})
		}
	}
	return sig, nil
}

// EncodeURI wraps the encoded frame in Shazam's data-URI form: standard
// base64 with '+' and '/' URL-escaped to '-' and '_'.
func (s Signature) EncodeURI() string {
	encoded := base64.StdEncoding.EncodeToString(s.Encode())
	encoded = strings.ReplaceAll(encoded, "+", "-")
	encoded = strings.ReplaceAll(encoded, "/", "_")
	return dataURIPrefix + encoded
}

// DecodeURI inverts EncodeURI, failing with CorruptSignature if the prefix
// or base64 payload is malformed.
func DecodeURI(uri string) (Signature, error) {
	body, ok := strings.CutPrefix(uri, dataURIPrefix)
	if !ok {
		return Signature{}, apperr.Newf(apperr.CorruptSignature, "missing data-URI prefix")
	}
	body = strings.ReplaceAll(body, "-", "+")
	body = strings.ReplaceAll(body, "_", "/")
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Signature{}, apperr.New(apperr.CorruptSignature, err)
	}
	return DecodeSignature(raw)
}
