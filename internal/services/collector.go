package services

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/desertthunder/immport/internal/shared"
)

var mediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".heic": true, ".heif": true, ".tif": true, ".tiff": true, ".dng": true,
	".mp4": true, ".mov": true, ".m4v": true, ".webm": true, ".3gp": true,
}

// HTMLCollector is a generic [SourceCollector] that reads album pages as HTML.
type HTMLCollector struct {
	fetcher     Fetcher
	pageTimeout time.Duration
}

// NewHTMLCollector creates a collector loading pages through fetcher.
func NewHTMLCollector(fetcher Fetcher) *HTMLCollector {
	return &HTMLCollector{fetcher: fetcher}
}

// WithPageTimeout bounds loading and parsing one album page. Zero leaves pages unbounded.
func (c *HTMLCollector) WithPageTimeout(d time.Duration) *HTMLCollector {
	c.pageTimeout = d
	return c
}

// Extract loads link and returns its title and media references in document order.
//
// The title comes from og:title, then the title element, then the link itself.
// Media come from og:image and og:video tags, img/video/source sources and anchors whose path has a media extension.
// A page without any media is reported as [shared.ErrCollectorFailed].
func (c *HTMLCollector) Extract(ctx context.Context, link string) (*AlbumSource, error) {
	const op = "collector.extract"

	base, err := url.Parse(link)
	if err != nil || !base.IsAbs() {
		return nil, shared.E(shared.KindValidation, op, fmt.Errorf("%w: invalid link %q", shared.ErrCollectorFailed, link))
	}

	if c.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.pageTimeout)
		defer cancel()
	}

	body, err := c.fetcher.Fetch(ctx, link)
	if err != nil {
		return nil, shared.E(shared.KindOf(err), op, fmt.Errorf("%w: %v", shared.ErrCollectorFailed, err))
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, shared.E(shared.KindValidation, op, fmt.Errorf("%w: failed to parse HTML: %v", shared.ErrCollectorFailed, err))
	}

	album := &AlbumSource{Title: pageTitle(doc, link)}
	seen := make(map[string]bool)
	add := func(raw string) {
		ref, ok := resolveMedia(base, raw)
		if !ok || seen[ref.MediaURL] {
			return
		}
		seen[ref.MediaURL] = true
		album.Items = append(album.Items, ref)
	}

	doc.Find("meta[property='og:image'], meta[property='og:video'], meta[property='og:video:url']").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("content"); ok {
			add(v)
		}
	})
	doc.Find("img[src], video[src], source[src]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("src")
		add(v)
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("href")
		if u, err := url.Parse(v); err == nil && mediaExtensions[strings.ToLower(path.Ext(u.Path))] {
			add(v)
		}
	})

	if len(album.Items) == 0 {
		return nil, shared.E(shared.KindValidation, op, fmt.Errorf("%w: no media found at %s", shared.ErrCollectorFailed, link))
	}
	return album, nil
}

func pageTitle(doc *goquery.Document, fallback string) string {
	if v, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(doc.Find("title").First().Text()); v != "" {
		return v
	}
	return fallback
}

func resolveMedia(base *url.URL, raw string) (MediaRef, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return MediaRef{}, false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return MediaRef{}, false
	}
	u = base.ResolveReference(u)
	if u.Scheme != "http" && u.Scheme != "https" {
		return MediaRef{}, false
	}
	u.Fragment = ""

	hint := path.Base(u.Path)
	if hint == "." || hint == "/" {
		hint = ""
	}
	return MediaRef{MediaURL: u.String(), FilenameHint: hint}, true
}
