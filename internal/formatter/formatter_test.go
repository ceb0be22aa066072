package formatter

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/shared"
	th "github.com/desertthunder/immport/internal/testing"
)

func sampleReport() *models.JobReport {
	job := &models.Job{
		ID:     "job-1",
		Status: models.JobDone,
		Progress: models.Progress{
			Stage:           models.StageCompleted,
			AlbumsProcessed: 2,
			TotalAlbums:     2,
			ItemsProcessed:  3,
			TotalItems:      3,
		},
	}
	job.LogTail.Append("job started: 2 album link(s)")

	albums := []*models.Album{
		{ID: 1, JobID: "job-1", SourceURL: "https://photos.app.goo.gl/a", SourceTitle: "Summer", Status: models.AlbumDone},
		{ID: 2, JobID: "job-1", SourceURL: "https://photos.app.goo.gl/b", Status: models.AlbumFailed, Error: "1 item(s) failed"},
	}
	items := []*models.Item{
		{ID: 1, AlbumID: 1, SourceMediaURL: "https://lh3/1", SourceFilename: "beach.jpg", Status: models.ItemDone, Bytes: 2048, ContentHash: "abc", TargetAssetID: "asset-1"},
		{ID: 2, AlbumID: 1, SourceMediaURL: "https://lh3/2", SourceFilename: "dupe.jpg", Status: models.ItemSkipped, ContentHash: "abc"},
		{ID: 3, AlbumID: 2, SourceMediaURL: "https://lh3/3", Status: models.ItemFailed, Error: "upload failed"},
	}
	return models.NewJobReport(job, albums, items)
}

func TestRenderers(t *testing.T) {
	t.Run("ReportToJSON", func(t *testing.T) {
		data, err := ReportToJSON(sampleReport())
		if err != nil {
			t.Fatalf("ReportToJSON failed: %v", err)
		}

		var decoded models.JobReport
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded.Uploaded != 1 || decoded.Skipped != 1 || decoded.Failed != 1 {
			t.Errorf("unexpected tallies: %+v", decoded)
		}
		if len(decoded.Items) != 3 {
			t.Errorf("expected 3 items, got %d", len(decoded.Items))
		}
	})

	t.Run("ReportToCSV", func(t *testing.T) {
		data, err := ReportToCSV(sampleReport())
		if err != nil {
			t.Fatalf("ReportToCSV failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 4 {
			t.Fatalf("expected header and 3 rows, got %d lines", len(lines))
		}
		if lines[0] != "Album,Source URL,Filename,Status,Bytes,Hash,Asset ID,Error" {
			t.Errorf("CSV missing headers, got: %s", lines[0])
		}
		if !strings.HasPrefix(lines[1], "Summer,https://lh3/1,beach.jpg,DONE,2048,abc,asset-1,") {
			t.Errorf("unexpected first row: %s", lines[1])
		}
		if !strings.HasPrefix(lines[3], "https://photos.app.goo.gl/b,") {
			t.Errorf("untitled album should fall back to its link: %s", lines[3])
		}
		if !strings.Contains(lines[3], "upload failed") {
			t.Errorf("CSV missing item error: %s", lines[3])
		}
	})

	t.Run("ReportToMarkdown", func(t *testing.T) {
		data, err := ReportToMarkdown(sampleReport())
		if err != nil {
			t.Fatalf("ReportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Import job-1",
			"**Status**: DONE",
			"**Uploaded**: 1 | **Skipped**: 1 | **Failed**: 1 | **Pending**: 0",
			"## Summer [DONE]",
			"1. beach.jpg `DONE`",
			"2. dupe.jpg `SKIPPED`",
			"## https://photos.app.goo.gl/b [FAILED]",
			"> 1 item(s) failed",
			"1. https://lh3/3 `FAILED` upload failed",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ReportToText", func(t *testing.T) {
		data, err := ReportToText(sampleReport())
		if err != nil {
			t.Fatalf("ReportToText failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{"Job: job-1", "Status: DONE (completed)", "Albums: 2/2", "Items: 3/3", "Log:", "job started"} {
			if !strings.Contains(output, want) {
				t.Errorf("text missing %q, got:\n%s", want, output)
			}
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"json", FormatJSON},
		{"CSV", FormatCSV},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"", FormatText},
		{"txt", FormatText},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseFormat("yaml"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := Render(sampleReport(), Format("yaml")); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument from Render, got %v", err)
	}
}

func TestWriteReport(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		got, err := WriteReport(sampleReport(), FormatCSV, path)
		if err != nil {
			t.Fatalf("WriteReport failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
		if content := th.MustReadFile(t, path); !strings.Contains(content, "beach.jpg") {
			t.Errorf("report file missing content: %s", content)
		}
	})

	t.Run("default path", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)

		got, err := WriteReport(sampleReport(), FormatText, "")
		if err != nil {
			t.Fatalf("WriteReport failed: %v", err)
		}
		if got != "job-1_report.txt" {
			t.Errorf("unexpected default filename %s", got)
		}
		if _, err := os.Stat(filepath.Join(dir, got)); err != nil {
			t.Errorf("report file not created: %v", err)
		}
	})

	t.Run("unwritable path", func(t *testing.T) {
		_, err := WriteReport(sampleReport(), FormatJSON, filepath.Join(t.TempDir(), "missing", "out.json"))
		if err == nil {
			t.Error("expected error writing into a missing directory")
		}
	})
}
