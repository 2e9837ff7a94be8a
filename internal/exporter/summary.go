package exporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/takak2166/confluence2openwebui/internal/models"
)

// Counts tracks the outcomes of one kind of item
type Counts struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Canceled   int `json:"canceled"`
}

// Summary accumulates the results of one container group. It is owned by
// the goroutine processing that group.
type Summary struct {
	RunID             string    `json:"run_id"`
	SpaceKey          string    `json:"space_key"`
	KnowledgeBaseName string    `json:"knowledge_base_name"`
	KnowledgeBaseID   string    `json:"knowledge_base_id"`
	Pages             Counts    `json:"pages"`
	Attachments       Counts    `json:"attachments"`
	Filtered          int       `json:"filtered"`
	FilteredItems     []string  `json:"filtered_items,omitempty"`
	Registered        int       `json:"registered"`
	Duplicates        int       `json:"duplicates"`
	RegistrationFails int       `json:"registration_failures"`
	Aborted           bool      `json:"aborted"` // No items were processed
	Errors            []string  `json:"errors,omitempty"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
}

func newSummary(runID string, group models.ContainerGroup, start time.Time) *Summary {
	return &Summary{
		RunID:             runID,
		SpaceKey:          group.SpaceKey,
		KnowledgeBaseName: group.SpaceKey,
		Pages:             Counts{Total: len(group.Pages())},
		Attachments:       Counts{Total: len(group.Attachments())},
		StartTime:         start,
	}
}

func (s *Summary) counts(kind models.ItemKind) *Counts {
	if kind == models.KindAttachment {
		return &s.Attachments
	}
	return &s.Pages
}

func (s *Summary) addSuccess(kind models.ItemKind) {
	s.counts(kind).Successful++
}

func (s *Summary) addFailure(kind models.ItemKind, msg string) {
	s.counts(kind).Failed++
	label := "Page"
	if kind == models.KindAttachment {
		label = "Attachment"
	}
	s.Errors = append(s.Errors, label+": "+msg)
}

func (s *Summary) addCanceled(kind models.ItemKind) {
	s.counts(kind).Canceled++
}

func (s *Summary) addFiltered(name, reason string) {
	s.Filtered++
	s.FilteredItems = append(s.FilteredItems, fmt.Sprintf("Attachment: %s (filtered: %s)", name, reason))
}

func (s *Summary) addError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// TotalFiles counts every collected item, filtered attachments included
func (s *Summary) TotalFiles() int {
	return s.Pages.Total + s.Attachments.Total
}

// TotalSuccessful counts uploaded pages and attachments
func (s *Summary) TotalSuccessful() int {
	return s.Pages.Successful + s.Attachments.Successful
}

// TotalFailed counts items whose upload failed
func (s *Summary) TotalFailed() int {
	return s.Pages.Failed + s.Attachments.Failed
}

// TotalCanceled counts items skipped because the run was canceled
func (s *Summary) TotalCanceled() int {
	return s.Pages.Canceled + s.Attachments.Canceled
}

// Processed counts the items the filter let through
func (s *Summary) Processed() int {
	return s.TotalFiles() - s.Filtered
}

// SuccessRate is the percentage of processed items uploaded successfully.
// It is 0 when nothing was processed.
func (s *Summary) SuccessRate() float64 {
	processed := s.Processed()
	if processed <= 0 {
		return 0
	}
	return float64(s.TotalSuccessful()) / float64(processed) * 100
}

// HasFailures reports whether anything in the group did not complete
func (s *Summary) HasFailures() bool {
	return s.Aborted || s.TotalFailed() > 0 || s.TotalCanceled() > 0 || s.RegistrationFails > 0
}

// Duration renders the elapsed time as "1 hour, 2 minutes"
func (s *Summary) Duration() string {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return "Unknown duration"
	}
	d := s.EndTime.Sub(s.StartTime)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if len(parts) == 0 {
		return "Less than a minute"
	}
	return strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Report renders a multi-line summary with the last n errors
func (s *Summary) Report(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Export to %s (ID: %s) completed in %s\n", s.KnowledgeBaseName, orNone(s.KnowledgeBaseID), s.Duration())
	fmt.Fprintf(&b, "Total files: %d, Processed: %d, Successful: %d (%.1f%%), Failed: %d, Canceled: %d, Filtered: %d\n",
		s.TotalFiles(), s.Processed(), s.TotalSuccessful(), s.SuccessRate(), s.TotalFailed(), s.TotalCanceled(), s.Filtered)
	fmt.Fprintf(&b, "Pages: %d total, %d successful, %d failed\n", s.Pages.Total, s.Pages.Successful, s.Pages.Failed)
	fmt.Fprintf(&b, "Attachments: %d total, %d successful, %d failed, %d filtered\n",
		s.Attachments.Total, s.Attachments.Successful, s.Attachments.Failed, s.Filtered)
	fmt.Fprintf(&b, "Registered: %d, Already registered: %d, Registration failures: %d\n",
		s.Registered, s.Duplicates, s.RegistrationFails)

	if s.Aborted {
		b.WriteString("Export aborted before any items were processed\n")
	}
	if s.Filtered > 0 {
		b.WriteString("Note: filtered attachments were excluded by extension or size rules.\n")
	}

	if len(s.Errors) > 0 && n > 0 {
		errs := s.Errors
		if len(errs) > n {
			errs = errs[len(errs)-n:]
		}
		fmt.Fprintf(&b, "Last %d of %d errors:\n", len(errs), len(s.Errors))
		for _, e := range errs {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// Result aggregates the summaries of one run
type Result struct {
	RunID       string     `json:"run_id"`
	Description string     `json:"description"`
	Summaries   []*Summary `json:"summaries"`
	Canceled    bool       `json:"canceled"`
}

// HasFailures reports whether any group had failures
func (r *Result) HasFailures() bool {
	if r.Canceled {
		return true
	}
	for _, s := range r.Summaries {
		if s.HasFailures() {
			return true
		}
	}
	return false
}
