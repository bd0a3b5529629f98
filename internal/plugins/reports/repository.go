package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roadwatch/roadwatch/internal/apperror"
)

// ReportRepository defines data access for pothole reports.
type ReportRepository interface {
	Create(ctx context.Context, report *PotholeReport) error
	List(ctx context.Context) ([]PotholeReport, error)
	FindByID(ctx context.Context, id string) (*PotholeReport, error)

	// MarkResolved flips the resolved flag. NotFound when no such report.
	MarkResolved(ctx context.Context, id string) error

	// Delete removes the report. NotFound when no such report.
	Delete(ctx context.Context, id string) error
}

type reportRepository struct {
	db *sql.DB
}

// NewReportRepository creates a MariaDB-backed report repository.
func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(ctx context.Context, report *PotholeReport) error {
	query := `INSERT INTO pothole_reports (id, image_url, location, severity, description, resolved, reported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		report.ID,
		report.ImageURL,
		report.Location,
		report.Severity,
		report.Description,
		report.Resolved,
		report.ReportedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}
	return nil
}

// List returns all reports, newest first.
func (r *reportRepository) List(ctx context.Context) ([]PotholeReport, error) {
	query := `SELECT id, image_url, location, severity, description, resolved, reported_at
		FROM pothole_reports ORDER BY reported_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var reports []PotholeReport
	for rows.Next() {
		var report PotholeReport
		if err := rows.Scan(
			&report.ID,
			&report.ImageURL,
			&report.Location,
			&report.Severity,
			&report.Description,
			&report.Resolved,
			&report.ReportedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}

	return reports, nil
}

func (r *reportRepository) FindByID(ctx context.Context, id string) (*PotholeReport, error) {
	query := `SELECT id, image_url, location, severity, description, resolved, reported_at
		FROM pothole_reports WHERE id = ?`

	report := &PotholeReport{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&report.ID,
		&report.ImageURL,
		&report.Location,
		&report.Severity,
		&report.Description,
		&report.Resolved,
		&report.ReportedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("Report not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying report by id: %w", err)
	}

	return report, nil
}

func (r *reportRepository) MarkResolved(ctx context.Context, id string) error {
	query := `UPDATE pothole_reports SET resolved = TRUE WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("resolving report: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NewNotFound("Report not found")
	}
	return nil
}

func (r *reportRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM pothole_reports WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NewNotFound("Report not found")
	}
	return nil
}
