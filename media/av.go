package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

var (
	audioExtensions = []string{"mp3", "flac", "wav", "m4a"}
	videoExtensions = []string{"mp4", "mov", "webm", "avi", "3gp", "3gpp", "mkv", "ogv", "m4v"}
)

// Probe runs ffprobe against a local file. It is a variable so tests can
// replace the external process.
var Probe = func(ctx context.Context, ffprobe, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w: %s", path, err, bytes.TrimSpace(stderr.Bytes()))
	}

	var res ProbeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	return &res, nil
}

type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

type ProbeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func (p *ProbeResult) duration() float64 {
	d, _ := strconv.ParseFloat(p.Format.Duration, 64)
	return d
}

func (p *ProbeResult) stream(kind string) (ProbeStream, bool) {
	for _, s := range p.Streams {
		if s.CodecType == kind {
			return s, true
		}
	}
	return ProbeStream{}, false
}

type AudioManager struct {
	FFprobe string
}

func (AudioManager) Type() string         { return "audio" }
func (AudioManager) Name() string         { return "Audio" }
func (AudioManager) Extensions() []string { return audioExtensions }

// Ogg and MP4 containers are ambiguous; either may hold audio only.
func (AudioManager) Sniffer() Sniffer {
	return familySniffer("audio/", audioExtensions, "application/ogg", "video/mp4")
}

func (AudioManager) DefaultThumbnail() string { return "images/media_thumbs/audio.png" }

func (AudioManager) Templates() Templates {
	return Templates{Display: "media_displays/audio.html", Embed: "media_embeds/audio.html"}
}

func (m AudioManager) Requirements() []string { return []string{ffprobeBinary(m.FFprobe)} }

func (m AudioManager) Process(ctx context.Context, job Job) (Metadata, error) {
	res, err := Probe(ctx, ffprobeBinary(m.FFprobe), job.Path)
	if err != nil {
		return Metadata{}, err
	}

	if _, ok := res.stream("audio"); !ok {
		return Metadata{}, fmt.Errorf("%q has no audio stream", job.Filename)
	}

	return Metadata{Duration: res.duration()}, nil
}

type VideoManager struct {
	FFprobe string
}

func (VideoManager) Type() string         { return "video" }
func (VideoManager) Name() string         { return "Video" }
func (VideoManager) Extensions() []string { return videoExtensions }

func (VideoManager) Sniffer() Sniffer {
	return familySniffer("video/", videoExtensions, "application/ogg")
}

func (VideoManager) DefaultThumbnail() string { return "images/media_thumbs/video.jpg" }

func (VideoManager) Templates() Templates {
	return Templates{Display: "media_displays/video.html", Embed: "media_embeds/video.html"}
}

func (m VideoManager) Requirements() []string { return []string{ffprobeBinary(m.FFprobe)} }

func (m VideoManager) Process(ctx context.Context, job Job) (Metadata, error) {
	res, err := Probe(ctx, ffprobeBinary(m.FFprobe), job.Path)
	if err != nil {
		return Metadata{}, err
	}

	v, ok := res.stream("video")
	if !ok {
		return Metadata{}, fmt.Errorf("%q has no video stream", job.Filename)
	}

	return Metadata{Width: v.Width, Height: v.Height, Duration: res.duration()}, nil
}

func ffprobeBinary(configured string) string {
	if configured == "" {
		return "ffprobe"
	}
	return configured
}
