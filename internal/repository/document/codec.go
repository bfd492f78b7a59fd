package document

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ishan121028/RadiologyAI/internal/domain/report"
	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
)

// Hash field layout for one entry. The vector is stored as little-endian
// float32 bytes, the format FT.SEARCH expects for KNN.
func marshalEntry(e *report.Entry) map[string]string {
	conditions, _ := json.Marshal(e.Classification.Conditions)
	actions, _ := json.Marshal(e.Classification.Actions)

	return map[string]string{
		"path":             e.Record.Identity.Path,
		"fingerprint":      e.Record.Identity.Fingerprint,
		"patient_id":       e.Record.PatientID,
		"study_type":       e.Record.StudyType,
		"study_date":       e.Record.StudyDate,
		"clinical_history": e.Record.ClinicalHistory,
		"technique":        e.Record.Technique,
		"findings":         e.Record.Findings,
		"impression":       e.Record.Impression,
		"radiologist":      e.Record.Radiologist,
		"raw_text":         e.Record.RawText,
		"confidence":       strconv.FormatFloat(e.Record.Confidence, 'f', -1, 64),
		"degraded":         boolField(e.Record.Degraded),
		"observed_at":      formatTime(e.Record.ObservedAt),
		"processed_at":     formatTime(e.Record.ProcessedAt),
		"duration_ms":      strconv.FormatInt(e.Record.Duration.Milliseconds(), 10),
		"severity":         string(e.Classification.Severity),
		"conditions":       string(conditions),
		"actions":          string(actions),
		"classified_at":    formatTime(e.Classification.ClassifiedAt),
		"last_seen":        formatTime(e.LastSeen),
		"vector":           string(vectorToBytes(e.Vector)),
	}
}

// ParseFields reconstructs an entry from raw hash fields. Shared with the
// search repository, which receives the same field layout from FT.SEARCH.
func ParseFields(fields map[string]string) (report.Entry, error) {
	return unmarshalEntry(fields)
}

// MarshalFields renders an entry into the stored hash field layout.
func MarshalFields(e *report.Entry) map[string]string {
	return marshalEntry(e)
}

func unmarshalEntry(fields map[string]string) (report.Entry, error) {
	severity, err := triage.ParseSeverity(fields["severity"])
	if err != nil {
		return report.Entry{}, fmt.Errorf("severity: %w", err)
	}

	confidence, _ := strconv.ParseFloat(fields["confidence"], 64)
	durationMS, _ := strconv.ParseInt(fields["duration_ms"], 10, 64)

	var conditions, actions []string
	if raw := fields["conditions"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &conditions); err != nil {
			return report.Entry{}, fmt.Errorf("conditions: %w", err)
		}
	}
	if raw := fields["actions"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &actions); err != nil {
			return report.Entry{}, fmt.Errorf("actions: %w", err)
		}
	}

	return report.Entry{
		Record: report.Record{
			Identity: report.Identity{
				Path:        fields["path"],
				Fingerprint: fields["fingerprint"],
			},
			PatientID:       fields["patient_id"],
			StudyType:       fields["study_type"],
			StudyDate:       fields["study_date"],
			ClinicalHistory: fields["clinical_history"],
			Technique:       fields["technique"],
			Findings:        fields["findings"],
			Impression:      fields["impression"],
			Radiologist:     fields["radiologist"],
			RawText:         fields["raw_text"],
			Confidence:      confidence,
			Degraded:        fields["degraded"] == "1",
			ObservedAt:      parseTime(fields["observed_at"]),
			ProcessedAt:     parseTime(fields["processed_at"]),
			Duration:        time.Duration(durationMS) * time.Millisecond,
		},
		Classification: triage.Result{
			Severity:     severity,
			Conditions:   conditions,
			Actions:      actions,
			ClassifiedAt: parseTime(fields["classified_at"]),
		},
		Vector:   bytesToVector([]byte(fields["vector"])),
		LastSeen: parseTime(fields["last_seen"]),
	}, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTime(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
