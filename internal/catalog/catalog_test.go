package catalog

import (
	"testing"

	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Len(t, c.Counselors, 3)
	assert.Len(t, c.Resources, 5)
	assert.Len(t, c.AnswerOptions, 4)

	phq, ok := c.QuestionBank(models.ScreeningPHQ9)
	require.True(t, ok)
	assert.Len(t, phq.Questions, 9)

	gad, ok := c.QuestionBank(models.ScreeningGAD7)
	require.True(t, ok)
	assert.Len(t, gad.Questions, 7)

	co, ok := c.Counselor(2)
	require.True(t, ok)
	assert.Equal(t, "Dr. Rajesh Kumar", co.Name)
	_, ok = c.Counselor(99)
	assert.False(t, ok)

	assert.Contains(t, c.CopingNames(), "grounding")
}

func TestFilterResources(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter models.ResourceFilter
		ids    []int
	}{
		{"no filter", models.ResourceFilter{}, []int{1, 2, 3, 4, 5}},
		{"language", models.ResourceFilter{Language: "Hindi"}, []int{2, 4}},
		{"category", models.ResourceFilter{Category: "Academic Stress"}, []int{3}},
		{"search title", models.ResourceFilter{Search: "SLEEP"}, []int{2}},
		{"search description", models.ResourceFilter{Search: "college"}, []int{4}},
		{"combined miss", models.ResourceFilter{Language: "English", Search: "mindfulness"}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.FilterResources(tt.filter)
			ids := make([]int, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestParseRejectsDuplicateCounselor(t *testing.T) {
	_, err := Parse([]byte(`
counselors:
  - id: 1
    name: A
  - id: 1
    name: B
answer_options: [x]
`))
	assert.Error(t, err)
}
