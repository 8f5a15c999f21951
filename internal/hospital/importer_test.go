package hospital

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/modelstate"
	"github.com/hcc-mvi-risk-server/internal/patient"
	"github.com/hcc-mvi-risk-server/internal/scoring"
	"github.com/hcc-mvi-risk-server/internal/service"
)

const csvExport = "\ufeffpatient_id,assessment_date,AFP,PIVKA-II,tumor_burden,mvi\n" +
	"C1,2024-02-01,25,40,7,yes\n" +
	"C2,02/03/2024,5,10,2,\n" +
	"C3,2024-02-05,,10,2,no\n"

const jsonExport = `[
  {"patientId": "J1", "afp": 30, "pivka": 50, "tumorBurden": 8, "actual_mvi": true},
  {"patientId": "J2", "afp": 1.5, "pivka": 2, "tumorBurden": 1}
]`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func newTestImporter(t *testing.T, client *Client) (*Importer, *patient.SQLiteStore) {
	t.Helper()
	logger, _ := test.NewNullLogger()

	store, err := patient.NewSQLiteStore(filepath.Join(t.TempDir(), "patients.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	predictor := service.NewPredictor(logger, scoring.DefaultScorer(), modelstate.NewHolder(nil), nil)
	importer := NewImporter(logger, service.NewAssessmentService(logger, predictor, store), client)
	importer.now = func() time.Time { return fixedNow }
	return importer, store
}

func TestReadFile_CSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "export.csv", csvExport)

	records, err := ReadFile(filepath.Join(dir, "export.csv"))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "C1", records[0]["patient_id"])
	_, hasMVI := records[1]["mvi"]
	assert.False(t, hasMVI, "empty cells are omitted")
}

func TestReadDirectory_SkipsOtherFilesAndReportsBadOnes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", jsonExport)
	writeFile(t, dir, "a.csv", csvExport)
	writeFile(t, dir, "c.json", "{broken")
	writeFile(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0755))

	batches, err := ReadDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	assert.Equal(t, "a.csv", batches[0].Name)
	assert.Len(t, batches[0].Records, 3)
	assert.Equal(t, "b.json", batches[1].Name)
	assert.Len(t, batches[1].Records, 2)
	assert.Equal(t, "c.json", batches[2].Name)
	assert.Error(t, batches[2].Err)
}

func TestReadDirectory_Missing(t *testing.T) {
	_, err := ReadDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestImporter_ImportDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", csvExport)
	writeFile(t, dir, "b.json", jsonExport)
	writeFile(t, dir, "c.json", "{broken")

	importer, store := newTestImporter(t, nil)
	ctx := context.Background()

	report, err := importer.ImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 4, report.Imported)
	// C3 has no AFP; c.json does not parse.
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, report.Errors, 2)

	rec, err := store.Get(ctx, "C1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, SourceFileImport, rec.Source)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), rec.AssessmentDate.UTC())
	assert.Equal(t, 4, rec.Points)
	assert.Equal(t, domain.HIGH, rec.RiskLevel)
	require.NotNil(t, rec.ActualMVI)
	assert.True(t, *rec.ActualMVI)

	rec, err = store.Get(ctx, "C2")
	require.NoError(t, err)
	assert.Nil(t, rec.ActualMVI)
	assert.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), rec.AssessmentDate.UTC())

	labeled, err := store.LabeledCases(ctx)
	require.NoError(t, err)
	assert.Len(t, labeled, 2)
}

func TestImporter_ImportFromAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 501, "afp": "21", "pivka_ii": "36", "tumor_burden": "6.4", "mvi": "positive"},
			{"id": 502, "afp": "oops", "pivka_ii": "1", "tumor_burden": "1"}]`))
	}))
	t.Cleanup(server.Close)

	logger, _ := test.NewNullLogger()
	client, err := NewClient(domain.HospitalConfig{BaseURL: server.URL, APIKey: "k", RateLimit: 100}, logger)
	require.NoError(t, err)

	importer, store := newTestImporter(t, client)
	ctx := context.Background()

	report, err := importer.ImportFromAPI(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.Failed)

	rec, err := store.Get(ctx, "501")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, SourceHospitalAPI, rec.Source)
	assert.Equal(t, 4, rec.Points)
	assert.Equal(t, fixedNow, rec.AssessmentDate.UTC())
}

func TestImporter_ImportFromAPINotConfigured(t *testing.T) {
	importer, _ := newTestImporter(t, nil)
	_, err := importer.ImportFromAPI(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
