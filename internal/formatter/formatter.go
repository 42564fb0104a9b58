// package formatter renders playback status and device listings for the CLI (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/spx/internal/control"
	"github.com/desertthunder/spx/internal/shared"
)

// DevicesToCSV converts a device listing to CSV with columns: ID, Name, Type, Active, Restricted, Volume
func DevicesToCSV(devices []control.Device) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Name", "Type", "Active", "Restricted", "Volume"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, d := range devices {
		record := []string{
			d.ID,
			d.Name,
			d.Type,
			strconv.FormatBool(d.Active),
			strconv.FormatBool(d.Restricted),
			strconv.Itoa(d.Volume),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// DevicesToText lists devices one per line, marking the active one with an asterisk.
func DevicesToText(devices []control.Device) []byte {
	var buf bytes.Buffer
	if len(devices) == 0 {
		buf.WriteString("No devices available\n")
		return buf.Bytes()
	}

	for _, d := range devices {
		marker := " "
		if d.Active {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s (%s) vol %d%%", marker, d.Name, d.Type, d.Volume)
		if d.Restricted {
			line += " [restricted]"
		}
		buf.WriteString(line + "  " + d.ID + "\n")
	}
	return buf.Bytes()
}

func stateLabel(np control.NowPlaying) string {
	if np.Playing {
		return "Playing"
	}
	return "Paused"
}

// NowPlayingToText renders the current playback as plain text.
func NowPlayingToText(np control.NowPlaying) []byte {
	var buf bytes.Buffer
	if np.Track == "" {
		buf.WriteString("Nothing playing\n")
		return buf.Bytes()
	}

	buf.WriteString(fmt.Sprintf("%s: %s - %s\n", stateLabel(np), strings.Join(np.Artists, ", "), np.Track))
	if np.Album != "" {
		buf.WriteString(fmt.Sprintf("Album: %s\n", np.Album))
	}
	buf.WriteString(fmt.Sprintf("Progress: %s / %s\n", shared.FormatMillis(np.Position), shared.FormatMillis(np.Duration)))
	if np.Device != "" {
		buf.WriteString(fmt.Sprintf("Device: %s\n", np.Device))
	}
	return buf.Bytes()
}

// NowPlayingToMarkdown renders the current playback as Markdown with an optional cover image
func NowPlayingToMarkdown(np control.NowPlaying, imageFilename string) []byte {
	var buf bytes.Buffer
	if np.Track == "" {
		buf.WriteString("# Nothing playing\n")
		return buf.Bytes()
	}

	buf.WriteString(fmt.Sprintf("# %s\n\n", np.Track))
	if imageFilename != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", imageFilename))
	}

	buf.WriteString(fmt.Sprintf("**Artists**: %s\n", strings.Join(np.Artists, ", ")))
	if np.Album != "" {
		buf.WriteString(fmt.Sprintf("**Album**: %s\n", np.Album))
	}
	buf.WriteString(fmt.Sprintf("**State**: %s\n", stateLabel(np)))
	buf.WriteString(fmt.Sprintf("**Progress**: %s / %s\n", shared.FormatMillis(np.Position), shared.FormatMillis(np.Duration)))
	if np.Device != "" {
		buf.WriteString(fmt.Sprintf("**Device**: %s\n", np.Device))
	}
	return buf.Bytes()
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty URL provided", shared.ErrMissingArgument)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownStatus
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownStatus writes the current playback to {dir}/README.md, with {dir}/cover.jpg when
// the album art can be downloaded. A failed download only drops the image.
func WriteMarkdownStatus(client *http.Client, np control.NowPlaying, outputDir string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		return nil, fmt.Errorf("%w: output directory", shared.ErrMissingArgument)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: outputDir}

	var coverImageFilename string
	if np.AlbumArt != "" {
		if imageData, err := DownloadImage(client, np.AlbumArt); err == nil {
			coverImagePath := filepath.Join(outputDir, "cover.jpg")
			if err := os.WriteFile(coverImagePath, imageData, 0644); err == nil {
				coverImageFilename = "cover.jpg"
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, NowPlayingToMarkdown(np, coverImageFilename), 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)

	return result, nil
}
