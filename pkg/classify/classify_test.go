package classify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleResultIsValid(t *testing.T) {
	r := SampleResult()
	require.NoError(t, r.Validate())
	require.NoError(t, r.CheckLabels())

	assert.Equal(t, AfricanBushElephant, r.Species.Class)
	assert.Equal(t, 92.3, r.Species.Confidence)
	assert.Equal(t, Female, r.Gender.Class)
	assert.Equal(t, 78.6, r.Gender.Confidence)
	assert.Equal(t, Adult, r.Age.Class)
	assert.Equal(t, 88.9, r.Age.Confidence)
}

func TestResultJSONShape(t *testing.T) {
	data, err := json.Marshal(SampleResult())
	require.NoError(t, err)

	var raw map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	for _, key := range []string{"species", "gender", "age"} {
		head, ok := raw[key]
		require.True(t, ok, "missing %s", key)
		assert.Contains(t, head, "class")
		assert.Contains(t, head, "confidence")
		probs, ok := head["probabilities"].([]interface{})
		require.True(t, ok)
		first := probs[0].(map[string]interface{})
		assert.Contains(t, first, "class")
		assert.Contains(t, first, "probability")
	}

	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	assert.NoError(t, back.Validate())
}

func TestOutcomeValidate(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		wantErr bool
	}{
		{
			name: "valid with rounding gap",
			outcome: Outcome{Class: Male, Confidence: 60.1, Probabilities: []Probability{
				{Male, 60.1}, {Female, 39.8},
			}},
		},
		{
			name:    "empty distribution",
			outcome: Outcome{Class: Male, Confidence: 60},
			wantErr: true,
		},
		{
			name: "chosen class missing",
			outcome: Outcome{Class: Calf, Confidence: 50, Probabilities: []Probability{
				{Adult, 50}, {Juvenile, 50},
			}},
			wantErr: true,
		},
		{
			name: "confidence disagrees with distribution",
			outcome: Outcome{Class: Adult, Confidence: 70, Probabilities: []Probability{
				{Adult, 69}, {Calf, 31},
			}},
			wantErr: true,
		},
		{
			name: "probability above 100",
			outcome: Outcome{Class: Adult, Confidence: 100, Probabilities: []Probability{
				{Adult, 100}, {Calf, 101},
			}},
			wantErr: true,
		},
		{
			name: "negative confidence",
			outcome: Outcome{Class: Adult, Confidence: -1, Probabilities: []Probability{
				{Adult, -1},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.outcome.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResult)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResultValidateNamesHead(t *testing.T) {
	r := SampleResult()
	r.Age.Probabilities = nil
	err := r.Validate()
	require.ErrorIs(t, err, ErrInvalidResult)
	assert.Contains(t, err.Error(), "age")

	var nilResult *Result
	assert.ErrorIs(t, nilResult.Validate(), ErrInvalidResult)
}

func TestNewOutcomePicksTop(t *testing.T) {
	o := NewOutcome([]Probability{{Female, 40}, {Male, 60}})
	assert.Equal(t, Male, o.Class)
	assert.Equal(t, 60.0, o.Confidence)
	assert.NoError(t, o.Validate())
}

func TestCheckLabels(t *testing.T) {
	r := SampleResult()
	r.Species.Probabilities[2].Class = "Woolly Mammoth"
	assert.ErrorIs(t, r.CheckLabels(), ErrInvalidResult)

	label, ok := CanonicalLabel(SpeciesLabels, " asian elephant ")
	assert.True(t, ok)
	assert.Equal(t, AsianElephant, label)
}

func TestCatalogDescribe(t *testing.T) {
	c := DefaultCatalog()

	d := c.Describe(AfricanBushElephant)
	assert.True(t, d.Known)
	assert.Contains(t, d.Text, "largest living terrestrial animal")

	d = c.Describe("asian elephant")
	assert.False(t, d.Known)
	assert.Equal(t, AsianElephant, d.Species)
	assert.Equal(t, FallbackDescription(AsianElephant), d.Text)

	list := c.List()
	require.Len(t, list, 3)
	assert.Equal(t, AfricanBushElephant, list[0].Species)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "species.yaml")
	data := `
species:
  - name: Asian Elephant
    scientific_name: Elephas maximus
    description: Smaller ears and a rounded back.
  - name: Woolly Mammoth
    description: Extinct.
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	d := c.Describe(AsianElephant)
	assert.True(t, d.Known)
	assert.Equal(t, "Elephas maximus", d.ScientificName)

	// built-in entries survive
	assert.True(t, c.Describe(AfricanBushElephant).Known)
	assert.Len(t, c.List(), 4)

	_, err = ParseCatalog([]byte("species:\n  - description: nameless\n"))
	assert.Error(t, err)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	c, err = LoadCatalog("")
	require.NoError(t, err)
	assert.Len(t, c.List(), 3)
}
