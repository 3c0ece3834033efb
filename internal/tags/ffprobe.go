package tags

import (
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// probeOutput mirrors the JSON emitted by `ffprobe -print_format json`.
type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

type probeStream struct {
	CodecType  string            `json:"codec_type"`
	CodecName  string            `json:"codec_name"`
	SampleRate string            `json:"sample_rate"`
	Channels   int               `json:"channels"`
	BitRate    string            `json:"bit_rate"`
	Duration   string            `json:"duration"`
	Tags       map[string]string `json:"tags"`
}

// probeInfo is the merged view of one ffprobe run. Tag keys are lowercased;
// container-level tags win over stream tags on collision.
type probeInfo struct {
	Duration   float64
	Bitrate    int
	SampleRate int
	Channels   int
	Tags       map[string]string
}

// tagValue returns the first non-empty tag among the given keys.
func (p *probeInfo) tagValue(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(p.Tags[key]); v != "" {
			return v
		}
	}
	return ""
}

var (
	probeOnce  sync.Once
	probeFound bool
)

// probeAvailable reports whether ffprobe is on PATH. The lookup runs once
// per process.
func probeAvailable() bool {
	probeOnce.Do(func() {
		_, err := exec.LookPath("ffprobe")
		probeFound = err == nil
	})
	return probeFound
}

// runProbe shells out to ffprobe and parses its JSON output.
func runProbe(path string) (*probeInfo, error) {
	cmd := exec.Command("ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)

	output, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrapf(err, "ffprobe failed for %s", path)
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (*probeInfo, error) {
	var probed probeOutput
	if err := json.Unmarshal(output, &probed); err != nil {
		return nil, errors.Wrap(err, "parsing ffprobe output")
	}

	var audio *probeStream
	for i := range probed.Streams {
		if probed.Streams[i].CodecType == "audio" {
			audio = &probed.Streams[i]
			break
		}
	}
	if audio == nil {
		return nil, errors.New("no audio stream found")
	}

	info := &probeInfo{Tags: make(map[string]string)}
	for k, v := range audio.Tags {
		info.Tags[strings.ToLower(k)] = v
	}
	for k, v := range probed.Format.Tags {
		info.Tags[strings.ToLower(k)] = v
	}

	if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
		info.Duration = d
	} else if d, err := strconv.ParseFloat(audio.Duration, 64); err == nil {
		info.Duration = d
	}

	// Prefer the stream bitrate; the container figure includes artwork.
	if b, err := strconv.Atoi(audio.BitRate); err == nil {
		info.Bitrate = b
	} else if b, err := strconv.Atoi(probed.Format.BitRate); err == nil {
		info.Bitrate = b
	}

	if sr, err := strconv.Atoi(audio.SampleRate); err == nil {
		info.SampleRate = sr
	}
	info.Channels = audio.Channels

	return info, nil
}
