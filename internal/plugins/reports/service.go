package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roadwatch/roadwatch/internal/apperror"
	"github.com/roadwatch/roadwatch/internal/sanitize"
)

// ReportService is the business logic for pothole reports.
type ReportService interface {
	Create(ctx context.Context, input CreateReportRequest) (*PotholeReport, error)
	List(ctx context.Context) ([]PotholeReport, error)
	Resolve(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type reportService struct {
	repo ReportRepository
	now  func() time.Time
}

// NewReportService creates the report service.
func NewReportService(repo ReportRepository) ReportService {
	return &reportService{
		repo: repo,
		now:  time.Now,
	}
}

// Create validates and stores a new report. Free-text fields pass through
// the HTML sanitizer; reports come from anonymous citizens.
func (s *reportService) Create(ctx context.Context, input CreateReportRequest) (*PotholeReport, error) {
	location := sanitize.Text(input.Location)
	if location == "" {
		return nil, apperror.NewValidation("Location is required")
	}

	severity := strings.ToLower(strings.TrimSpace(input.Severity))
	switch severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return nil, apperror.NewValidation("Severity must be one of: low, medium, high")
	}

	report := &PotholeReport{
		ID:          uuid.NewString(),
		ImageURL:    strings.TrimSpace(input.ImageURL),
		Location:    location,
		Severity:    severity,
		Description: sanitize.Text(input.Description),
		Resolved:    false,
		ReportedAt:  s.now().UTC(),
	}

	if err := s.repo.Create(ctx, report); err != nil {
		return nil, apperror.NewDependencyFailure("Database error", fmt.Errorf("creating report: %w", err))
	}

	slog.Info("pothole report filed",
		slog.String("report_id", report.ID),
		slog.String("severity", report.Severity),
	)

	return report, nil
}

func (s *reportService) List(ctx context.Context) ([]PotholeReport, error) {
	reports, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperror.NewDependencyFailure("Database error", fmt.Errorf("listing reports: %w", err))
	}
	return reports, nil
}

func (s *reportService) Resolve(ctx context.Context, id string) error {
	if err := s.repo.MarkResolved(ctx, id); err != nil {
		if apperror.IsNotFound(err) {
			return err
		}
		return apperror.NewDependencyFailure("Database error", fmt.Errorf("resolving report: %w", err))
	}

	slog.Info("pothole report resolved", slog.String("report_id", id))
	return nil
}

func (s *reportService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if apperror.IsNotFound(err) {
			return err
		}
		return apperror.NewDependencyFailure("Database error", fmt.Errorf("deleting report: %w", err))
	}

	slog.Info("pothole report deleted", slog.String("report_id", id))
	return nil
}
