package download

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"tubecaster/internal/db"
	"tubecaster/internal/models"
)

var execCommand = exec.Command

// stderrTailBytes bounds how much diagnostic text is persisted per failure.
const stderrTailBytes = 8192

var encodingCodecPrefix = map[string]string{
	"H264": "avc1",
	"H265": "hevc",
}

// Executor runs yt-dlp for one episode at a time and persists the outcome.
// Concurrency is owned by the worker pool, not by the executor.
type Executor struct {
	MediaRoot   string
	CookiesFile string
}

func NewExecutor(mediaRoot, cookiesFile string) *Executor {
	return &Executor{MediaRoot: mediaRoot, CookiesFile: cookiesFile}
}

// policy is the fully-resolved download configuration for one episode. Every
// field is concrete; fallbacks have already been applied.
type policy struct {
	DownloadType      string
	AudioQuality      int
	VideoQuality      string
	VideoEncoding     string
	SubtitleLanguages string
	SubtitleFormat    string
}

// resolvePolicy applies the fallback chain field by field: the feed's own
// setting, then the stored defaults, then audio with no constraints.
func resolvePolicy(feed models.Feed, defaults models.FeedDefaults) policy {
	p := policy{DownloadType: models.DownloadAudio}
	if defaults.DownloadType != nil {
		p.DownloadType = *defaults.DownloadType
	}
	if feed.DownloadType != nil {
		p.DownloadType = *feed.DownloadType
	}
	if defaults.AudioQuality != nil {
		p.AudioQuality = *defaults.AudioQuality
	}
	if feed.AudioQuality != nil {
		p.AudioQuality = *feed.AudioQuality
	}
	if defaults.VideoQuality != nil {
		p.VideoQuality = *defaults.VideoQuality
	}
	if feed.VideoQuality != nil {
		p.VideoQuality = *feed.VideoQuality
	}
	if defaults.VideoEncoding != nil {
		p.VideoEncoding = *defaults.VideoEncoding
	}
	if feed.VideoEncoding != nil {
		p.VideoEncoding = *feed.VideoEncoding
	}
	if defaults.SubtitleLanguages != nil {
		p.SubtitleLanguages = *defaults.SubtitleLanguages
	}
	if feed.SubtitleLanguages != nil {
		p.SubtitleLanguages = *feed.SubtitleLanguages
	}
	if defaults.SubtitleFormat != nil {
		p.SubtitleFormat = *defaults.SubtitleFormat
	}
	if feed.SubtitleFormat != nil {
		p.SubtitleFormat = *feed.SubtitleFormat
	}
	return p
}

func sourceURL(source, episodeID string) string {
	if source == models.SourceBilibili {
		return fmt.Sprintf("https://www.bilibili.com/video/%s", episodeID)
	}
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", episodeID)
}

// buildArgs assembles the yt-dlp invocation. The order is fixed so two runs
// with the same inputs produce the same command line.
func buildArgs(p policy, url, outputTemplate, cookiesPath string) []string {
	args := []string{}

	if p.DownloadType == models.DownloadVideo {
		selector := "bestvideo"
		if prefix, ok := encodingCodecPrefix[p.VideoEncoding]; ok {
			selector += fmt.Sprintf("[vcodec^=%s]", prefix)
		}
		if p.VideoQuality != "" {
			selector += fmt.Sprintf("[height<=%s]", strings.TrimSuffix(p.VideoQuality, "p"))
		}
		args = append(args, "-f", selector+"+bestaudio/best", "--merge-output-format", "mp4")
	} else {
		args = append(args, "-x", "--audio-format", "m4a")
		if p.AudioQuality > 0 {
			args = append(args, "--audio-quality", fmt.Sprintf("%dK", p.AudioQuality))
		}
	}

	args = append(args, "--add-metadata", "--embed-chapters")
	args = append(args, "--write-thumbnail", "--embed-thumbnail", "--convert-thumbnails", "jpg")

	if p.SubtitleLanguages != "" {
		args = append(args, "--write-subs", "--write-auto-subs", "--sub-langs", p.SubtitleLanguages)
		if p.SubtitleFormat != "" {
			args = append(args, "--convert-subs", p.SubtitleFormat)
		}
		if p.DownloadType == models.DownloadVideo {
			args = append(args, "--embed-subs")
		}
	}

	if cookiesPath != "" {
		args = append(args, "--cookies", cookiesPath)
	}

	args = append(args, "--no-progress", "-o", outputTemplate, url)
	return args
}

// markFailed persists the terminal FAILED state. Every failure path in
// Download must pass through here: a row left in DOWNLOADING cannot be
// re-admitted by the guard or retried by an operator until a restart sweeps
// it.
func markFailed(episodeID, message string) {
	if err := db.WithBackoff(func() error {
		return db.MarkEpisodeFailed(episodeID, message)
	}); err != nil {
		log.Printf("failed to record download failure for %s: %v", episodeID, err)
	}
}

// Download fetches the episode's media and records the outcome. The episode
// must already be in DOWNLOADING; the guard put it there.
func (e *Executor) Download(ctx context.Context, episodeID string) error {
	episode, err := db.GetEpisodeByID(episodeID)
	if err != nil {
		markFailed(episodeID, err.Error())
		return fmt.Errorf("failed to load episode %s: %w", episodeID, err)
	}
	feed, err := db.GetFeedByID(episode.FeedID)
	if err != nil {
		markFailed(episodeID, err.Error())
		return fmt.Errorf("failed to load feed %s: %w", episode.FeedID, err)
	}
	defaults, err := db.GetFeedDefaults()
	if err != nil && err != sql.ErrNoRows {
		markFailed(episodeID, err.Error())
		return fmt.Errorf("failed to load feed defaults: %w", err)
	}
	pol := resolvePolicy(feed, defaults)

	outDir := filepath.Join(e.MediaRoot, feed.ID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		markFailed(episodeID, err.Error())
		return fmt.Errorf("failed to create media directory: %w", err)
	}
	safeTitle := SanitizeFileName(episode.Title)
	outputTemplate := filepath.Join(outDir, safeTitle+".%(ext)s")

	cookiesPath, cleanup, err := e.stageCookies()
	if err != nil {
		markFailed(episodeID, err.Error())
		return err
	}
	defer cleanup()

	url := sourceURL(feed.Source, episode.ID)
	cmd := execCommand("yt-dlp", buildArgs(pol, url, outputTemplate, cookiesPath)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		markFailed(episodeID, err.Error())
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		markFailed(episodeID, err.Error())
		return fmt.Errorf("failed to open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		markFailed(episodeID, err.Error())
		return fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	// Both pipes must be drained concurrently or a chatty yt-dlp can
	// deadlock against a full pipe buffer.
	var wg sync.WaitGroup
	var stderrTail string
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			log.Printf("[yt-dlp %s] %s", episode.ID, scanner.Text())
		}
	}()
	go func() {
		defer wg.Done()
		data, _ := io.ReadAll(stderr)
		if len(data) > stderrTailBytes {
			data = data[len(data)-stderrTailBytes:]
		}
		stderrTail = string(data)
	}()
	wg.Wait()

	runErr := cmd.Wait()
	if runErr != nil {
		message := runErr.Error()
		if stderrTail != "" {
			message = stderrTail
		}
		markFailed(episode.ID, message)
		return fmt.Errorf("yt-dlp failed for episode %s: %w", episode.ID, runErr)
	}

	mediaPath, mediaType, size, err := locateMedia(outDir, safeTitle, pol.DownloadType)
	if err != nil {
		markFailed(episode.ID, err.Error())
		return err
	}

	if err := db.WithBackoff(func() error {
		return db.MarkEpisodeCompleted(episode.ID, mediaPath, mediaType, size)
	}); err != nil {
		return fmt.Errorf("failed to record completed download for %s: %w", episode.ID, err)
	}
	log.Printf("downloaded episode %s to %s (%d bytes)", episode.ID, mediaPath, size)
	return nil
}

// stageCookies copies the configured cookies file into a per-run temp file,
// since yt-dlp rewrites the file it is given.
func (e *Executor) stageCookies() (string, func(), error) {
	if e.CookiesFile == "" {
		return "", func() {}, nil
	}
	src, err := os.ReadFile(e.CookiesFile)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read cookies file: %w", err)
	}
	tmp, err := os.CreateTemp("", "cookies-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("failed to stage cookies file: %w", err)
	}
	if _, err := tmp.Write(src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("failed to stage cookies file: %w", err)
	}
	tmp.Close()
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

// locateMedia finds the file yt-dlp produced. The extension is chosen by the
// tool, so the output template's %(ext)s is resolved by globbing.
func locateMedia(outDir, safeTitle, downloadType string) (string, string, int64, error) {
	wantExt := ".m4a"
	mediaType := "audio/mp4"
	if downloadType == models.DownloadVideo {
		wantExt = ".mp4"
		mediaType = "video/mp4"
	}

	path := filepath.Join(outDir, safeTitle+wantExt)
	info, err := os.Stat(path)
	if err == nil {
		return path, mediaType, info.Size(), nil
	}

	matches, globErr := filepath.Glob(filepath.Join(outDir, safeTitle+".*"))
	if globErr != nil {
		return "", "", 0, globErr
	}
	for _, m := range matches {
		switch filepath.Ext(m) {
		case ".jpg", ".srt", ".vtt", ".ass":
			continue
		}
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		return m, mediaType, info.Size(), nil
	}
	return "", "", 0, fmt.Errorf("yt-dlp reported success but no media file found for %s", safeTitle)
}
