package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"phishguard/internal/docstore"
	"phishguard/internal/models"
	"phishguard/internal/realtime"
)

// CSVHeader is the column set of the export.
var CSVHeader = []string{"ID", "URL", "Reporter Email", "Scam Type", "Description", "Image URL", "Date Reported"}

const csvDateLayout = "01/02/2006, 03:04 PM"

// Dashboard keeps a live list of all reports, newest first.
type Dashboard struct {
	view *realtime.View[models.Report]
}

// OpenDashboard subscribes to the reports collection. Close releases it.
func OpenDashboard(ctx context.Context, store docstore.Store) (*Dashboard, error) {
	view, err := realtime.Subscribe(ctx, store, Query(), models.ReportFromDocument, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to reports: %w", err)
	}
	return &Dashboard{view: view}, nil
}

// Reports returns the current snapshot.
func (d *Dashboard) Reports() []models.Report {
	return d.view.Items()
}

// Ready is closed after the first snapshot.
func (d *Dashboard) Ready() <-chan struct{} {
	return d.view.Ready()
}

func (d *Dashboard) Close() {
	d.view.Close()
}

// Filter keeps reports whose url, reporter email or description contains
// search (case-insensitive) and whose category matches. An empty or "all"
// category matches everything.
func Filter(reports []models.Report, search, category string) []models.Report {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]models.Report, 0, len(reports))
	for _, r := range reports {
		if category != "" && category != "all" && r.Category != category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.URL), search) &&
			!strings.Contains(strings.ToLower(r.ReporterEmail), search) &&
			!strings.Contains(strings.ToLower(r.Description), search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Analytics summarizes the dashboard.
type Analytics struct {
	Total       int            `json:"totalReports"`
	ByCategory  map[string]int `json:"scamTypeCounts"`
	LastWeek    int            `json:"recentReports"`
	TopCategory string         `json:"topScamType"`
	Pending     int            `json:"pendingReports"`
	Reviewed    int            `json:"reviewedReports"`
}

// ComputeAnalytics counts reports per category and status, and those created
// in the seven days before now. Ties for the top category go to the name that
// sorts first; with no reports it is "None".
func ComputeAnalytics(reports []models.Report, now time.Time) Analytics {
	a := Analytics{Total: len(reports), ByCategory: map[string]int{}, TopCategory: "None"}
	cutoff := now.AddDate(0, 0, -7)
	for _, r := range reports {
		a.ByCategory[r.Category]++
		if r.Status == models.ReportReviewed {
			a.Reviewed++
		} else {
			a.Pending++
		}
		if r.CreatedAt.After(cutoff) {
			a.LastWeek++
		}
	}

	categories := make([]string, 0, len(a.ByCategory))
	for c := range a.ByCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	best := 0
	for _, c := range categories {
		if n := a.ByCategory[c]; n > best {
			best, a.TopCategory = n, c
		}
	}
	return a
}

// ExportCSV writes reports with CSVHeader in loc time.
func ExportCSV(w io.Writer, reports []models.Report, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range reports {
		email := r.ReporterEmail
		if email == "" {
			email = "Anonymous"
		}
		date := "Unknown"
		if !r.CreatedAt.IsZero() {
			date = r.CreatedAt.In(loc).Format(csvDateLayout)
		}
		if err := cw.Write([]string{r.ID, r.URL, email, r.Category, r.Description, r.EvidenceURL, date}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFilename is the download name for an export made at now.
func ExportFilename(now time.Time) string {
	return "phishguard-reports-" + now.UTC().Format("2006-01-02") + ".csv"
}
