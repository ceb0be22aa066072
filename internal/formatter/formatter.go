// package formatter renders job reports as JSON, CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/shared"
)

// Format names an output format for reports.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "text"
)

// ParseFormat maps a flag value to a [Format].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatMarkdown, FormatText:
		return f, nil
	case "markdown":
		return FormatMarkdown, nil
	case "", "txt", "plain":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Render converts a report to the given format.
func Render(report *models.JobReport, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return ReportToJSON(report)
	case FormatCSV:
		return ReportToCSV(report)
	case FormatMarkdown:
		return ReportToMarkdown(report)
	case FormatText:
		return ReportToText(report)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// ReportToJSON renders the full report as indented JSON
func ReportToJSON(report *models.JobReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// ReportToCSV renders one row per item with columns: Album, Source URL, Filename, Status, Bytes, Hash, Asset ID, Error
func ReportToCSV(report *models.JobReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Album", "Source URL", "Filename", "Status", "Bytes", "Hash", "Asset ID", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	titles := albumTitles(report.Albums)
	for _, item := range report.Items {
		record := []string{
			titles[item.AlbumID],
			item.SourceMediaURL,
			item.SourceFilename,
			string(item.Status),
			strconv.FormatInt(item.Bytes, 10),
			item.ContentHash,
			item.TargetAssetID,
			item.Error,
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

// ReportToMarkdown renders a summary followed by one section per album
func ReportToMarkdown(report *models.JobReport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Import %s\n\n", report.Job.ID)
	fmt.Fprintf(&buf, "**Status**: %s\n", report.Job.Status)
	fmt.Fprintf(&buf, "**Albums**: %d/%d\n", report.Job.Progress.AlbumsProcessed, report.Job.Progress.TotalAlbums)
	fmt.Fprintf(&buf, "**Uploaded**: %d | **Skipped**: %d | **Failed**: %d | **Pending**: %d\n\n",
		report.Uploaded, report.Skipped, report.Failed, report.Pending)

	if report.Job.LastError != "" {
		fmt.Fprintf(&buf, "**Last error**: %s\n\n", report.Job.LastError)
	}

	byAlbum := make(map[int64][]*models.Item)
	for _, item := range report.Items {
		byAlbum[item.AlbumID] = append(byAlbum[item.AlbumID], item)
	}

	for _, album := range report.Albums {
		title := album.SourceTitle
		if title == "" {
			title = album.SourceURL
		}
		fmt.Fprintf(&buf, "## %s [%s]\n\n", title, album.Status)
		if album.Error != "" {
			fmt.Fprintf(&buf, "> %s\n\n", album.Error)
		}
		for i, item := range byAlbum[album.ID] {
			name := item.SourceFilename
			if name == "" {
				name = item.SourceMediaURL
			}
			line := fmt.Sprintf("%d. %s `%s`", i+1, name, item.Status)
			if item.Error != "" {
				line += " " + item.Error
			}
			buf.WriteString(line + "\n")
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ReportToText renders the job summary and its log tail as plain text
func ReportToText(report *models.JobReport) ([]byte, error) {
	var buf bytes.Buffer

	p := report.Job.Progress
	fmt.Fprintf(&buf, "Job: %s\n", report.Job.ID)
	fmt.Fprintf(&buf, "Status: %s (%s)\n", report.Job.Status, p.Stage)
	fmt.Fprintf(&buf, "Albums: %d/%d\n", p.AlbumsProcessed, p.TotalAlbums)
	fmt.Fprintf(&buf, "Items: %d/%d\n", p.ItemsProcessed, p.TotalItems)
	fmt.Fprintf(&buf, "Uploaded: %d  Skipped: %d  Failed: %d  Pending: %d\n",
		report.Uploaded, report.Skipped, report.Failed, report.Pending)
	if report.Job.LastError != "" {
		fmt.Fprintf(&buf, "Last error: %s\n", report.Job.LastError)
	}

	if len(report.Job.LogTail) > 0 {
		buf.WriteString("\nLog:\n")
		for _, line := range report.Job.LogTail {
			buf.WriteString("  " + line + "\n")
		}
	}

	return buf.Bytes(), nil
}

// WriteReport renders the report and writes it to path.
//
// Defaults to {job.ID}_report.{ext} as the filename.
func WriteReport(report *models.JobReport, format Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_report.%s", report.Job.ID, extension(format))
	}

	data, err := Render(report, format)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}

func extension(f Format) string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

func albumTitles(albums []*models.Album) map[int64]string {
	titles := make(map[int64]string, len(albums))
	for _, a := range albums {
		if a.SourceTitle != "" {
			titles[a.ID] = a.SourceTitle
		} else {
			titles[a.ID] = a.SourceURL
		}
	}
	return titles
}
