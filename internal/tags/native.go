package tags

import (
	"os"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// nativeProbe fills duration and stream details for formats we can decode
// in pure Go. It covers WAV and MP3, the two formats that commonly show up
// on hosts without ffprobe installed.
func (e *Extractor) nativeProbe(path, ext string, meta *Metadata) {
	switch ext {
	case ".wav":
		e.probeWAV(path, meta)
	case ".mp3":
		e.probeMP3(path, meta)
	}
}

func (e *Extractor) probeWAV(path string, meta *Metadata) {
	f, err := os.Open(path)
	if err != nil {
		e.logger.Debugf("Cannot open %s for WAV probe: %v", path, err)
		return
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		e.logger.Debugf("Not a decodable WAV file: %s", path)
		return
	}

	if dur, err := decoder.Duration(); err == nil && dur > 0 {
		meta.Duration = dur.Seconds()
	}
	if meta.SampleRate == 0 {
		meta.SampleRate = int(decoder.SampleRate)
	}
	if meta.Channels == 0 {
		meta.Channels = int(decoder.NumChans)
	}
	if meta.Bitrate == 0 && decoder.AvgBytesPerSec > 0 {
		meta.Bitrate = int(decoder.AvgBytesPerSec) * 8
	}
}

func (e *Extractor) probeMP3(path string, meta *Metadata) {
	f, err := os.Open(path)
	if err != nil {
		e.logger.Debugf("Cannot open %s for MP3 probe: %v", path, err)
		return
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		e.logger.Debugf("Not a decodable MP3 file %s: %v", path, err)
		return
	}

	// Decoded output is 16-bit stereo, 4 bytes per sample frame.
	if decoder.Length() > 0 && decoder.SampleRate() > 0 {
		meta.Duration = float64(decoder.Length()) / float64(decoder.SampleRate()*4)
	}
	if meta.SampleRate == 0 {
		meta.SampleRate = decoder.SampleRate()
	}
	if meta.Channels == 0 {
		meta.Channels = 2
	}
}
