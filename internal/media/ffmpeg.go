// Package media wraps ffmpeg and ffprobe and implements the production
// pipeline that turns a source video into numbered vertical clips.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Target frame size of every clip.
const (
	Width  = 1080
	Height = 1920
)

// ErrToolNotFound is returned when ffmpeg or ffprobe is not on the path.
var ErrToolNotFound = errors.New("media: ffmpeg tool not found")

// ToolError reports a failed ffmpeg or ffprobe invocation.
type ToolError struct {
	Tool   string
	Op     string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("media: %s %s: %v", e.Tool, e.Op, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Info describes a video file.
type Info struct {
	Duration time.Duration
	Width    int
	Height   int
}

// FFmpeg runs ffmpeg and ffprobe subprocesses.
type FFmpeg struct {
	Path      string
	ProbePath string
	// Encoder is the video encoder, e.g. libx264 or h264_nvenc.
	Encoder string
	// FontFile is used for captions and part labels.
	FontFile string
}

// Probe reads the duration and frame size of the first video stream.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Info, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	}
	out, err := run(ctx, f.probePath(), "probe", args)
	if err != nil {
		return Info{}, err
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (Info, error) {
	var raw struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Info{}, fmt.Errorf("media: parse ffprobe output: %w", err)
	}
	if len(raw.Streams) == 0 {
		return Info{}, fmt.Errorf("media: no video stream")
	}
	seconds, err := strconv.ParseFloat(raw.Format.Duration, 64)
	if err != nil {
		return Info{}, fmt.Errorf("media: parse duration %q: %w", raw.Format.Duration, err)
	}
	return Info{
		Duration: time.Duration(seconds * float64(time.Second)),
		Width:    raw.Streams[0].Width,
		Height:   raw.Streams[0].Height,
	}, nil
}

// Crop center-crops in to the clip aspect ratio and scales it to the clip size.
func (f *FFmpeg) Crop(ctx context.Context, in, out string) error {
	info, err := f.Probe(ctx, in)
	if err != nil {
		return err
	}
	filter := CropFilter(info.Width, info.Height, Width, Height)
	return f.ffmpeg(ctx, "crop", "-i", in, "-vf", filter, "-c:v", f.encoder(), "-c:a", "copy", out)
}

// Extend loops in until it lasts d.
func (f *FFmpeg) Extend(ctx context.Context, in, out string, d time.Duration) error {
	return f.ffmpeg(ctx, "extend",
		"-stream_loop", "-1", "-i", in,
		"-t", formatSeconds(d),
		"-an", "-c:v", f.encoder(), out)
}

// Stack places top above bottom, each center-cropped to half the clip height.
// Audio is taken from top only.
func (f *FFmpeg) Stack(ctx context.Context, top, bottom, out string) error {
	topInfo, err := f.Probe(ctx, top)
	if err != nil {
		return err
	}
	bottomInfo, err := f.Probe(ctx, bottom)
	if err != nil {
		return err
	}
	graph := StackFilter(topInfo, bottomInfo)
	return f.ffmpeg(ctx, "stack",
		"-i", top, "-i", bottom,
		"-filter_complex", graph,
		"-map", "[v]", "-map", "0:a?",
		"-shortest", "-c:v", f.encoder(), "-c:a", "copy", out)
}

// BurnSubtitles draws the captions of an SRT file onto the video.
func (f *FFmpeg) BurnSubtitles(ctx context.Context, in, srt, out string) error {
	return f.ffmpeg(ctx, "subtitles", "-i", in, "-vf", SubtitlesFilter(srt, f.FontFile), "-c:v", f.encoder(), "-c:a", "copy", out)
}

// Segment splits in into pieces of d and returns their paths in order.
// Keyframes are forced at every boundary so pieces are exactly d long.
func (f *FFmpeg) Segment(ctx context.Context, in, dir string, d time.Duration) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("media: create segment directory: %w", err)
	}
	s := formatSeconds(d)
	err := f.ffmpeg(ctx, "segment",
		"-i", in,
		"-c:v", f.encoder(), "-c:a", "aac",
		"-sc_threshold", "0",
		"-force_key_frames", "expr:gte(t,n_forced*"+s+")",
		"-f", "segment",
		"-segment_time", s,
		"-reset_timestamps", "1",
		filepath.Join(dir, "%03d.mp4"))
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.mp4"))
	if err != nil {
		return nil, fmt.Errorf("media: list segments: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Label draws text in a white box two thirds of the way down the frame.
// The output is always mp4 regardless of the file extension.
func (f *FFmpeg) Label(ctx context.Context, in, out, text string) error {
	return f.ffmpeg(ctx, "label", "-i", in, "-vf", LabelFilter(text, f.FontFile), "-c:v", f.encoder(), "-c:a", "copy", "-f", "mp4", out)
}

// ffmpeg runs ffmpeg with the common flags.
func (f *FFmpeg) ffmpeg(ctx context.Context, op string, args ...string) error {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)
	_, err := run(ctx, f.path(), op, full)
	return err
}

func (f *FFmpeg) encoder() string {
	if f.Encoder != "" {
		return f.Encoder
	}
	return "libx264"
}

func (f *FFmpeg) path() string {
	if f.Path != "" {
		return f.Path
	}
	return "ffmpeg"
}

func (f *FFmpeg) probePath() string {
	if f.ProbePath != "" {
		return f.ProbePath
	}
	return "ffprobe"
}

func run(ctx context.Context, tool, op string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, tool, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			err = ErrToolNotFound
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &ToolError{Tool: filepath.Base(tool), Op: op, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.Bytes(), nil
}

// CropFilter returns a filter that center-crops a w x h frame to the aspect
// ratio of targetW x targetH and scales it to that size.
func CropFilter(w, h, targetW, targetH int) string {
	cw, ch := w, h
	if w*targetH > h*targetW {
		cw = even(h * targetW / targetH)
	} else {
		ch = even(w * targetH / targetW)
	}
	return fmt.Sprintf("crop=%d:%d:%d:%d,scale=%d:%d,setsar=1", cw, ch, (w-cw)/2, (h-ch)/2, targetW, targetH)
}

// StackFilter returns a filter graph stacking input 0 over input 1, each
// cropped to Width x Height/2. The result is labelled [v].
func StackFilter(top, bottom Info) string {
	half := Height / 2
	return fmt.Sprintf("[0:v]%s[top];[1:v]%s[bottom];[top][bottom]vstack=inputs=2[v]",
		CropFilter(top.Width, top.Height, Width, half),
		CropFilter(bottom.Width, bottom.Height, Width, half))
}

// SubtitlesFilter returns a subtitles filter using the given font file.
func SubtitlesFilter(srt, fontFile string) string {
	filter := "subtitles=filename=" + escapeFilterValue(filepath.ToSlash(srt))
	style := "Alignment=10,Fontsize=18,BackColour=&H80000000,BorderStyle=4,Shadow=0"
	if fontFile != "" {
		filter += ":fontsdir=" + escapeFilterValue(filepath.ToSlash(filepath.Dir(fontFile)))
		name := strings.TrimSuffix(filepath.Base(fontFile), filepath.Ext(fontFile))
		style = "FontName=" + name + "," + style
	}
	return filter + ":force_style='" + style + "'"
}

// LabelFilter returns a drawtext filter for a part label.
func LabelFilter(text, fontFile string) string {
	parts := []string{
		"text='" + escapeDrawtext(text) + "'",
		"fontsize=75",
		"fontcolor=black",
		"box=1",
		"boxcolor=white",
		"boxborderw=30",
		"x=(w-text_w)/2",
		"y=(h-text_h)*2/3",
	}
	if fontFile != "" {
		parts = append([]string{"fontfile=" + escapeFilterValue(filepath.ToSlash(fontFile))}, parts...)
	}
	return "drawtext=" + strings.Join(parts, ":")
}

func escapeFilterValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`)
	return r.Replace(s)
}

func escapeDrawtext(s string) string {
	r := strings.NewReplacer(`\`, `\\\\`, `'`, `'\\''`, `:`, `\:`, `%`, `\%`)
	return r.Replace(s)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func even(n int) int { return n &^ 1 }
