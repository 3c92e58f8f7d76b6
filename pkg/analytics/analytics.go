// Package analytics derives summary statistics from the catalog's current
// contents for one owner. It is a pure read: deterministic given catalog
// state, no side effects, and an owner with zero entries yields an all-zero
// report rather than an error.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/filevault/filevault/pkg/catalog"
)

const (
	// DefaultRecentWindow is the trailing window the "recent uploads"
	// aggregate covers.
	DefaultRecentWindow = 7 * 24 * time.Hour

	// DefaultPreviewLimit caps the recent uploads preview list.
	DefaultPreviewLimit = 5
)

// Lister is the slice of the catalog the aggregator reads from.
type Lister interface {
	ListByOwner(ctx context.Context, owner string) ([]catalog.Entry, error)
}

// CategoryStat summarizes one category's share of an owner's storage.
type CategoryStat struct {
	Name          string  `json:"name"`
	Count         int     `json:"count"`
	Size          int64   `json:"size"`
	SizeFormatted string  `json:"sizeFormatted"`
	Percentage    float64 `json:"percentage"`
}

// RecentUpload is one entry of the recency preview.
type RecentUpload struct {
	Name       string    `json:"name"`
	Size       string    `json:"size"`
	Category   string    `json:"category"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Report is the full analytics summary for one owner.
type Report struct {
	TotalSize          int64          `json:"totalSize"`
	TotalSizeFormatted string         `json:"totalSizeFormatted"`
	FileCount          int            `json:"fileCount"`
	Categories         []CategoryStat `json:"categories"`
	RecentUploads      int            `json:"recentUploads"`
	RecentUploadsList  []RecentUpload `json:"recentUploadsList"`
}

// Aggregator computes analytics reports from the catalog.
type Aggregator struct {
	catalog      Lister
	window       time.Duration
	previewLimit int
	now          func() time.Time
}

// Config carries the aggregator's dependencies and tunables. Zero values
// fall back to the defaults.
type Config struct {
	Catalog      Lister
	Window       time.Duration
	PreviewLimit int
	Now          func() time.Time
}

// New creates an Aggregator over the given catalog.
func New(cfg Config) *Aggregator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultRecentWindow
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = DefaultPreviewLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		catalog:      cfg.Catalog,
		window:       cfg.Window,
		previewLimit: cfg.PreviewLimit,
		now:          cfg.Now,
	}
}

// Summarize builds the analytics report for one owner from a best-effort
// snapshot of the catalog.
func (a *Aggregator) Summarize(ctx context.Context, owner string) (*Report, error) {
	entries, err := a.catalog.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	report := &Report{
		FileCount:         len(entries),
		Categories:        []CategoryStat{},
		RecentUploadsList: []RecentUpload{},
	}

	grouped := make(map[string]*CategoryStat)
	for _, entry := range entries {
		report.TotalSize += entry.Size

		stat, ok := grouped[entry.Category]
		if !ok {
			stat = &CategoryStat{Name: entry.Category}
			grouped[entry.Category] = stat
		}
		stat.Count++
		stat.Size += entry.Size
	}

	for _, stat := range grouped {
		stat.SizeFormatted = humanize.IBytes(uint64(stat.Size))
		if report.TotalSize > 0 {
			stat.Percentage = math.Round(float64(stat.Size)/float64(report.TotalSize)*1000) / 10
		}
		report.Categories = append(report.Categories, *stat)
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		if report.Categories[i].Size != report.Categories[j].Size {
			return report.Categories[i].Size > report.Categories[j].Size
		}
		return report.Categories[i].Name < report.Categories[j].Name
	})

	cutoff := a.now().Add(-a.window)
	for _, entry := range entries {
		if entry.UploadedAt.Before(cutoff) {
			continue
		}
		report.RecentUploads++
		if len(report.RecentUploadsList) < a.previewLimit {
			// Entries arrive most recent first, so the preview keeps the
			// newest uploads.
			report.RecentUploadsList = append(report.RecentUploadsList, RecentUpload{
				Name:       entry.Name,
				Size:       humanize.IBytes(uint64(entry.Size)),
				Category:   entry.Category,
				UploadedAt: entry.UploadedAt,
			})
		}
	}

	report.TotalSizeFormatted = humanize.IBytes(uint64(report.TotalSize))
	return report, nil
}
