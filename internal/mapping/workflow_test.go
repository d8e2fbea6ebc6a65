package mapping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/talent-admin/internal/models"
)

func newTestWorkflow(t *testing.T) *Workflow {
	t.Helper()
	ds := &models.SourceDataset{
		Filename: "people.csv",
		Headers:  []string{"Full Name", "Mobile", "Email ID", "City", "Skills", "Years", "Notes"},
		AllRows:  [][]string{{"Jane", "1", "j@x.com", "Paris", "Go", "4", "-"}},
	}
	return NewWorkflow(models.DefaultCatalog(), ds)
}

func TestWorkflow_HappyPath(t *testing.T) {
	w := newTestWorkflow(t)
	assert.Equal(t, StateAnalyzing, w.State())

	require.NoError(t, w.Analyzed(fullMapping(), nil))
	assert.Equal(t, StateMapping, w.State())
	assert.Empty(t, w.Warnings())

	require.NoError(t, w.Review())
	assert.Equal(t, StateReview, w.State())

	// read-only in review
	err := w.SetMapping("Notes", models.FieldCompany)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	final, err := w.Complete()
	require.NoError(t, err)
	assert.Equal(t, fullMapping(), final)
	assert.Equal(t, StateComplete, w.State())
}

func TestWorkflow_MissingTechBlocksReview(t *testing.T) {
	w := newTestWorkflow(t)
	m := fullMapping()
	delete(m, "Skills")
	require.NoError(t, w.Analyzed(m, nil))

	assert.False(t, RequiredFieldsMapped(w.Mapping(), w.Catalog()))

	err := w.Review()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequiredFieldsUnmapped))
	var mfe *MissingFieldsError
	require.True(t, errors.As(err, &mfe))
	assert.Equal(t, []string{models.FieldTech}, mfe.Missing)
	assert.Equal(t, StateMapping, w.State())

	require.NoError(t, w.SetMapping("Skills", models.FieldTech))
	require.NoError(t, w.Review())
}

func TestWorkflow_FailedSuggestionStillReachesMapping(t *testing.T) {
	w := newTestWorkflow(t)
	require.NoError(t, w.Analyzed(nil, errors.New("mapping suggestion failed")))
	assert.Equal(t, StateMapping, w.State())
	assert.Empty(t, w.Mapping())
	assert.Equal(t, []string{"mapping suggestion failed"}, w.Warnings())

	require.NoError(t, w.SetMapping("Full Name", models.FieldName))
	assert.Equal(t, models.ColumnMapping{"Full Name": models.FieldName}, w.Mapping())
}

func TestWorkflow_AnalyzedDropsUnknownEntries(t *testing.T) {
	w := newTestWorkflow(t)
	require.NoError(t, w.Analyzed(models.ColumnMapping{
		"Full Name": models.FieldName,
		"Ghost":     models.FieldEmail,
		"Mobile":    "Shoe Size",
		"City":      models.FieldDataSource,
		"Notes":     models.DoNotImport,
	}, nil))
	assert.Equal(t, models.ColumnMapping{"Full Name": models.FieldName}, w.Mapping())

	assert.Error(t, w.Analyzed(nil, nil), "analyzing happens once")
}

func TestWorkflow_SetMapping(t *testing.T) {
	w := newTestWorkflow(t)
	require.NoError(t, w.Analyzed(nil, nil))

	require.NoError(t, w.SetMapping("Mobile", models.FieldPhone))
	assert.ErrorIs(t, w.SetMapping("Unknown", models.FieldPhone), ErrInvalidMapping)
	assert.Error(t, w.SetMapping("Mobile", models.FieldUpdatedAt))
	assert.Error(t, w.SetMapping("Mobile", "Nope"))

	require.NoError(t, w.SetMapping("Mobile", models.DoNotImport))
	assert.Empty(t, w.Mapping())
}

func TestWorkflow_DuplicatesAreWarningsOnly(t *testing.T) {
	w := newTestWorkflow(t)
	m := fullMapping()
	m["Notes"] = models.FieldEmail
	require.NoError(t, w.Analyzed(m, nil))

	dups := w.Duplicates()
	require.Len(t, dups, 1)
	assert.Equal(t, []string{"Email ID", "Notes"}, dups[0].Headers)

	require.NoError(t, w.Review())
	assert.Len(t, w.Duplicates(), 1)
}

func TestWorkflow_EditReturnsToMapping(t *testing.T) {
	w := newTestWorkflow(t)
	require.NoError(t, w.Analyzed(fullMapping(), nil))
	require.NoError(t, w.Review())
	require.NoError(t, w.Edit())
	assert.Equal(t, StateMapping, w.State())
	assert.Equal(t, fullMapping(), w.Mapping())

	assert.Error(t, w.Edit())
	_, err := w.Complete()
	assert.Error(t, err)
}

func TestWorkflow_RematchResets(t *testing.T) {
	w := newTestWorkflow(t)
	require.NoError(t, w.Analyzed(models.ColumnMapping{"Notes": models.FieldCompany}, nil))
	require.NoError(t, w.Rematch())

	m := w.Mapping()
	_, kept := m["Notes"]
	assert.False(t, kept)
	assert.Equal(t, models.FieldName, m["Full Name"])
	assert.Equal(t, models.FieldEmail, m["Email ID"])
}

func TestWorkflow_Cancel(t *testing.T) {
	w := newTestWorkflow(t)
	assert.Error(t, w.Cancel(), "cannot cancel while analyzing")

	require.NoError(t, w.Analyzed(fullMapping(), nil))
	require.NoError(t, w.Cancel())
	assert.Equal(t, StateCancelled, w.State())
	assert.Nil(t, w.Dataset())
	assert.Empty(t, w.Mapping())
	assert.Empty(t, w.Duplicates())

	assert.Error(t, w.Review())
	assert.Error(t, w.Cancel())
}

func TestWorkflow_ReopenOnlyFromComplete(t *testing.T) {
	w := newTestWorkflow(t)
	require.NoError(t, w.Analyzed(fullMapping(), nil))
	assert.ErrorIs(t, w.Reopen(), ErrInvalidTransition)

	require.NoError(t, w.Review())
	_, err := w.Complete()
	require.NoError(t, err)

	require.NoError(t, w.Reopen())
	assert.Equal(t, StateReview, w.State())
	assert.Equal(t, fullMapping(), w.Mapping())

	_, err = w.Complete()
	require.NoError(t, err)
}
