package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
	"soctel/pkg/cache"
	apperrors "soctel/pkg/errors"
	"soctel/pkg/utils"
)

// exportService renders a finished session for offline analysis. JSON is
// the lossless form, CSV is spreadsheet-friendly with fixed precision, the
// text report is for humans.
type exportService struct {
	sessions ports.SessionRepository
	samples  ports.SampleRepository
	rendered *cache.Cache
}

func NewExportService(sessions ports.SessionRepository, samples ports.SampleRepository) ports.ExportService {
	return &exportService{
		sessions: sessions,
		samples:  samples,
		rendered: cache.NewCache(10 * time.Minute),
	}
}

// cachedRender returns the cached rendering for an ended session, or renders
// and caches it. Active sessions are never cached: their sample set is still
// growing.
func (s *exportService) cachedRender(key string, session *domain.Session, render func() ([]byte, error)) ([]byte, error) {
	if session.State != domain.StateEnded {
		return render()
	}
	if v, ok := s.rendered.Get(key); ok {
		return v.([]byte), nil
	}
	data, err := render()
	if err != nil {
		return nil, err
	}
	s.rendered.Set(key, data)
	return data, nil
}

// jsonExport is the on-disk shape: the session with its rollup, then every
// stored sample in arrival order.
type jsonExport struct {
	Session *domain.Session `json:"session"`
	Records []domain.Sample `json:"records"`
}

func (s *exportService) load(ctx context.Context, sessionID domain.SessionID) (*domain.Session, []domain.Sample, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, apperrors.NewNotFoundError("session")
	}
	samples, err := s.samples.Get(ctx, sessionID, domain.TimeRange{})
	if err != nil {
		return nil, nil, apperrors.NewExportFailedError("read samples", err)
	}
	return session, samples, nil
}

func (s *exportService) ExportJSON(ctx context.Context, sessionID domain.SessionID) ([]byte, error) {
	session, samples, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if samples == nil {
		samples = []domain.Sample{}
	}

	return s.cachedRender("json:"+string(sessionID), session, func() ([]byte, error) {
		data, err := json.MarshalIndent(jsonExport{Session: session, Records: samples}, "", "  ")
		if err != nil {
			return nil, apperrors.NewExportFailedError("encode json", err)
		}
		return data, nil
	})
}

func (s *exportService) ExportCSV(ctx context.Context, sessionID domain.SessionID) ([]byte, error) {
	session, samples, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return s.cachedRender("csv:"+string(sessionID), session, func() ([]byte, error) {
		return renderCSV(session, samples)
	})
}

func renderCSV(session *domain.Session, samples []domain.Sample) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	buf.WriteString("# Session Info\n")
	w.Write([]string{"id", "device_id", "scenario", "state", "start_time", "end_time", "sample_count", "health_score"})
	endTime := ""
	if session.EndTime != nil {
		endTime = utils.FormatTimestamp(*session.EndTime)
	}
	sampleCount, healthScore := "", ""
	if session.Rollup != nil {
		sampleCount = strconv.Itoa(session.Rollup.SampleCount)
		healthScore = strconv.Itoa(session.Rollup.HealthScore)
	}
	w.Write([]string{
		string(session.ID),
		string(session.DeviceID),
		session.Scenario,
		string(session.State),
		utils.FormatTimestamp(session.StartTime),
		endTime,
		sampleCount,
		healthScore,
	})
	w.Flush()

	buf.WriteString("\n# Sample Records\n")
	w.Write([]string{"timestamp", "level", "temperature", "voltage", "current", "fps", "frame_time", "source"})
	for _, sample := range samples {
		w.Write([]string{
			utils.FormatTimestamp(sample.Timestamp),
			strconv.Itoa(sample.Level),
			fmt.Sprintf("%.1f", sample.Temperature),
			strconv.Itoa(sample.Voltage),
			strconv.Itoa(sample.Current),
			fmt.Sprintf("%.1f", sample.FPS),
			fmt.Sprintf("%.2f", sample.FrameTime),
			string(sample.Source),
		})
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return nil, apperrors.NewExportFailedError("encode csv", err)
	}
	return buf.Bytes(), nil
}

// TextReport summarizes the session's rollup in plain text.
func (s *exportService) TextReport(ctx context.Context, sessionID domain.SessionID) (string, error) {
	session, _, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s\n", session.ID)
	fmt.Fprintf(&b, "Device:   %s\n", session.DeviceID)
	if session.Scenario != "" {
		fmt.Fprintf(&b, "Scenario: %s\n", session.Scenario)
	}
	fmt.Fprintf(&b, "Started:  %s\n", utils.FormatTimestamp(session.StartTime))
	if session.EndTime != nil {
		fmt.Fprintf(&b, "Ended:    %s\n", utils.FormatTimestamp(*session.EndTime))
	}

	r := session.Rollup
	if r == nil {
		b.WriteString("\nNo samples recorded.\n")
		return b.String(), nil
	}

	fmt.Fprintf(&b, "Duration: %s\n", r.DurationText())
	fmt.Fprintf(&b, "\nBattery\n")
	fmt.Fprintf(&b, "  avg discharge:  %s\n", r.DischargeRateText())
	fmt.Fprintf(&b, "  peak discharge: %.1f%%/h\n", r.PeakDischargeRate)
	fmt.Fprintf(&b, "\nThermal\n")
	fmt.Fprintf(&b, "  avg: %.1f°C  min: %.1f°C  max: %.1f°C\n", r.AvgTemperature, r.MinTemperature, r.MaxTemperature)
	if r.AvgFPS > 0 {
		fmt.Fprintf(&b, "\nPerformance\n")
		fmt.Fprintf(&b, "  avg fps: %.1f  min: %.1f  max: %.1f\n", r.AvgFPS, r.MinFPS, r.MaxFPS)
		fmt.Fprintf(&b, "  jank: %d frames (%.1f%%)\n", r.JankCount, r.JankRate)
	}
	fmt.Fprintf(&b, "\nHealth score: %d/100\n", r.HealthScore)
	for _, note := range r.HealthNotes {
		fmt.Fprintf(&b, "  - %s\n", note)
	}
	return b.String(), nil
}

// FileName stamps an export name so repeated exports never collide.
func (s *exportService) FileName(base, ext string) string {
	return fmt.Sprintf("%s_%s.%s", base, time.Now().Format("20060102_150405"), ext)
}
