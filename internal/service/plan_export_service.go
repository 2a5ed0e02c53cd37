package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/studyflow-app/planner-api/internal/models"
	appErrors "github.com/studyflow-app/planner-api/pkg/errors"
	"github.com/studyflow-app/planner-api/pkg/export"
	"github.com/studyflow-app/planner-api/pkg/storage"
)

// Supported export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type planReader interface {
	GetPlan(ctx context.Context, userID, planID string) (*models.StudyPlan, error)
	GetSessions(ctx context.Context, userID, planID string) ([]models.StudySession, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

// PlanExportConfig tunes export behaviour.
type PlanExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// PlanExportResult captures successful generation metadata.
type PlanExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       string
	ExpiresAt    time.Time
}

// PlanExportService renders saved plans to downloadable files.
type PlanExportService struct {
	plans   planReader
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     PlanExportConfig
}

// NewPlanExportService constructs a PlanExportService.
func NewPlanExportService(plans planReader, files fileStorage, signer *storage.SignedURLSigner, cfg PlanExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *PlanExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &PlanExportService{
		plans:   plans,
		storage: files,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders one of the caller's plans and stores the export file.
func (s *PlanExportService) Generate(ctx context.Context, userID, planID, format string) (*PlanExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %s", format))
	}

	plan, err := s.plans.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.plans.GetSessions(ctx, userID, planID)
	if err != nil {
		return nil, err
	}

	dataset := buildSessionDataset(sessions)
	title := "Study Plan"
	subtitle := fmt.Sprintf("Reference week of %s", plan.ReferenceDate.Format("2006-01-02"))

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title, subtitle)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render plan export")
	}

	filename := fmt.Sprintf("plan-%s-%d.%s", sanitizeFilename(plan.ID), time.Now().UTC().Unix(), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store plan export")
	}

	token, expiresAt, err := s.signer.Generate(plan.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign plan export")
	}

	s.logger.Sugar().Infow("plan export generated", "plan_id", plan.ID, "format", format, "path", relPath)

	return &PlanExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token.
func (s *PlanExportService) ParseToken(token string, allowExpired bool) (planID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns the stored export file for streaming.
func (s *PlanExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes export files older than the configured TTL.
func (s *PlanExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func buildSessionDataset(sessions []models.StudySession) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"Course", "Date", "Start", "End", "Minutes", "Kind"},
		Rows:    make([]map[string]string, 0, len(sessions)),
	}
	for _, session := range sessions {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Course":  session.CourseName,
			"Date":    session.StartTime.Format("2006-01-02"),
			"Start":   session.StartTime.Format("15:04"),
			"End":     session.EndTime.Format("15:04"),
			"Minutes": fmt.Sprintf("%d", session.DurationMinutes),
			"Kind":    session.Kind,
		})
	}
	return dataset
}

func sanitizeFilename(raw string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "_", "..", "-")
	cleaned := replacer.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return "export"
	}
	return cleaned
}
