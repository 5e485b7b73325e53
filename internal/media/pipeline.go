package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipsync/internal/clip"
	"clipsync/internal/subtitles"
	"clipsync/internal/youtube"
)

// Editor is the set of video operations the pipeline needs. *FFmpeg
// implements it.
type Editor interface {
	Probe(ctx context.Context, path string) (Info, error)
	Crop(ctx context.Context, in, out string) error
	Extend(ctx context.Context, in, out string, d time.Duration) error
	Stack(ctx context.Context, top, bottom, out string) error
	BurnSubtitles(ctx context.Context, in, srt, out string) error
	Segment(ctx context.Context, in, dir string, d time.Duration) ([]string, error)
	Label(ctx context.Context, in, out, text string) error
}

// Downloader fetches a video into dir as <name>.mp4. *youtube.Downloader
// implements it.
type Downloader interface {
	Download(ctx context.Context, url, dir, name string) (string, error)
}

// Transcripts fetches source captions. *youtube.TranscriptFetcher implements it.
type Transcripts interface {
	Fetch(ctx context.Context, videoID, dir string) ([]youtube.TranscriptEntry, error)
}

// Pipeline implements allocator.Producer.
type Pipeline struct {
	Editor      Editor
	Downloader  Downloader
	Transcripts Transcripts
	Library     *clip.Library
	// TempDir holds per-job working directories.
	TempDir string
	// SecondaryDir holds filler videos stacked under the source when overlay is on.
	SecondaryDir string
	// PartLabel renders the label drawn on each clip from its one-based number.
	PartLabel func(number int) string
	Logger    *slog.Logger

	// Rand picks secondary content. Nil uses the global source.
	Rand *rand.Rand
}

// Produce downloads the source video, edits it according to the request
// options, splits it into clips and stores them in the library.
// The job's temporary files are removed before returning.
func (p *Pipeline) Produce(ctx context.Context, req clip.Request) ([]clip.Rendered, error) {
	if err := (clip.Ref{AccountID: req.AccountID, ContentID: req.ContentID}).Validate(); err != nil {
		return nil, err
	}
	if req.Options.ClipDuration <= 0 {
		return nil, fmt.Errorf("media: clip duration must be positive")
	}
	log := p.logger().With("account", req.AccountID, "content", req.ContentID)

	if err := os.MkdirAll(p.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("media: create temp directory: %w", err)
	}
	job, err := os.MkdirTemp(p.TempDir, req.ContentID+"-*")
	if err != nil {
		return nil, fmt.Errorf("media: create job directory: %w", err)
	}
	defer os.RemoveAll(job)

	log.Info("downloading source")
	video, err := p.Downloader.Download(ctx, youtube.VideoURL(req.ContentID), job, "source")
	if err != nil {
		return nil, err
	}

	if req.Options.Overlay {
		video, err = p.addSecondary(ctx, log, job, video)
	} else {
		log.Info("cropping")
		out := filepath.Join(job, "cropped.mp4")
		err = p.Editor.Crop(ctx, video, out)
		video = out
	}
	if err != nil {
		return nil, err
	}

	if req.Options.Captions {
		if video, err = p.addCaptions(ctx, log, job, req.ContentID, video); err != nil {
			return nil, err
		}
	}

	log.Info("segmenting", "clip_duration", req.Options.ClipDuration)
	segments, err := p.Editor.Segment(ctx, video, filepath.Join(job, "segments"), req.Options.ClipDuration)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(p.Library.Dir, 0755); err != nil {
		return nil, fmt.Errorf("media: create output directory: %w", err)
	}
	rendered := make([]clip.Rendered, 0, len(segments))
	for i, seg := range segments {
		ref := clip.Ref{AccountID: req.AccountID, Part: i, ContentID: req.ContentID}
		dst := p.Library.Path(ref)
		tmp := dst + ".part"

		log.Info("labelling clip", "part", ref.Label(), "of", len(segments))
		if err := p.Editor.Label(ctx, seg, tmp, p.label(ref.Label())); err != nil {
			os.Remove(tmp)
			return rendered, err
		}
		if err := os.Rename(tmp, dst); err != nil {
			os.Remove(tmp)
			return rendered, fmt.Errorf("media: store clip %s: %w", ref, err)
		}
		rendered = append(rendered, clip.Rendered{Ref: ref, Path: dst})
	}
	return rendered, nil
}

// addSecondary loops a random filler video to the source length and stacks it
// under the source. With no filler available the source is cropped instead.
func (p *Pipeline) addSecondary(ctx context.Context, log *slog.Logger, job, video string) (string, error) {
	filler, err := p.pickSecondary()
	if err != nil {
		return "", err
	}
	if filler == "" {
		log.Warn("no secondary content available, cropping instead", "dir", p.SecondaryDir)
		out := filepath.Join(job, "cropped.mp4")
		return out, p.Editor.Crop(ctx, video, out)
	}

	info, err := p.Editor.Probe(ctx, video)
	if err != nil {
		return "", err
	}
	log.Info("extending secondary content", "file", filepath.Base(filler), "duration", info.Duration)
	extended := filepath.Join(job, "secondary.mp4")
	if err := p.Editor.Extend(ctx, filler, extended, info.Duration); err != nil {
		return "", err
	}

	log.Info("stacking secondary content")
	stacked := filepath.Join(job, "stacked.mp4")
	if err := p.Editor.Stack(ctx, video, extended, stacked); err != nil {
		return "", err
	}
	return stacked, nil
}

// addCaptions burns one-word captions built from the source transcript.
// A video without a usable transcript is returned unchanged.
func (p *Pipeline) addCaptions(ctx context.Context, log *slog.Logger, job, contentID, video string) (string, error) {
	entries, err := p.Transcripts.Fetch(ctx, contentID, filepath.Join(job, "subs"))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, youtube.ErrNoTranscript) {
			log.Info("no transcript, skipping captions")
		} else {
			log.Warn("transcript fetch failed, skipping captions", "error", err)
		}
		return video, nil
	}

	cues := subtitles.Build(entries)
	if len(cues) == 0 {
		log.Info("transcript has no spoken text, skipping captions")
		return video, nil
	}

	srt := filepath.Join(job, "captions.srt")
	if err := subtitles.SaveSRT(srt, cues); err != nil {
		return "", err
	}
	log.Info("burning captions", "cues", len(cues))
	out := filepath.Join(job, "captioned.mp4")
	if err := p.Editor.BurnSubtitles(ctx, video, srt, out); err != nil {
		return "", err
	}
	return out, nil
}

// pickSecondary returns a random video from SecondaryDir, or "" when there is none.
func (p *Pipeline) pickSecondary() (string, error) {
	if p.SecondaryDir == "" {
		return "", nil
	}
	entries, err := os.ReadDir(p.SecondaryDir)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("media: read secondary content: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(p.SecondaryDir, e.Name()))
	}
	if len(files) == 0 {
		return "", nil
	}
	if p.Rand != nil {
		return files[p.Rand.IntN(len(files))], nil
	}
	return files[rand.IntN(len(files))], nil
}

func (p *Pipeline) label(number int) string {
	if p.PartLabel != nil {
		return p.PartLabel(number)
	}
	return fmt.Sprintf("Part %d", number)
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// AddSecondaryContent downloads a filler video into SecondaryDir.
func (p *Pipeline) AddSecondaryContent(ctx context.Context, url string) (string, error) {
	if err := os.MkdirAll(p.SecondaryDir, 0755); err != nil {
		return "", fmt.Errorf("media: create secondary content directory: %w", err)
	}
	path, err := p.Downloader.Download(ctx, url, p.SecondaryDir, "")
	if err != nil {
		return "", err
	}
	p.logger().Info("secondary content added", "path", path)
	return path, nil
}
