package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReport_Finalize_SummaryAndUTC(t *testing.T) {
	r := RunReport{
		SDRoot:     "/abs/sd",
		DryRun:     false,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []ItemResult{
			{GameID: "GZLE", Status: StatusMoved},
			{GameID: "GAFE", Status: StatusSkipped},
			{GameID: "GALP", Status: StatusFailed},
			{GameID: "GMSE", Status: StatusNotRun},
		},
	}

	r.Finalize()

	// items 保持原顺序。
	assert.Equal(t, "GZLE", r.Items[0].GameID)
	assert.Equal(t, ReportSummary{Moved: 1, Skipped: 1, Failed: 1, NotRun: 1}, r.Summary)
	assert.False(t, r.OK())

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"started_at":"2026-02-09T02:00:00Z"`)
}

func TestRunReport_OK(t *testing.T) {
	r := RunReport{Items: []ItemResult{{Status: StatusPlanned}, {Status: StatusSkipped}}}
	r.Finalize()
	assert.True(t, r.OK())

	r.Aborted = true
	assert.False(t, r.OK())
}

func TestPlan_SummarizeAndBlocked(t *testing.T) {
	p := Plan{Items: []PlanItem{
		{Action: ActionCreate},
		{Action: ActionCreate, Overwrite: true},
		{Action: ActionSkip},
		{Action: ActionError},
	}}
	p.Summarize()

	assert.Equal(t, PlanSummary{Create: 2, Skip: 1, Error: 1, Overwrite: 1}, p.Summary)
	assert.True(t, p.Blocked(false))
	assert.False(t, p.Blocked(true))

	p.Items = append(p.Items, PlanItem{Action: ActionConflict})
	p.Summarize()
	// conflict 不受 allowPartial 影响。
	assert.True(t, p.Blocked(true))
}

func TestParseGameID(t *testing.T) {
	g, ok := ParseGameID("GAFE")
	require.True(t, ok)
	assert.Equal(t, "E", g.RegionLetter())

	for _, bad := range []string{"GAF", "GAFEX", "gafe", "GA-E", ""} {
		_, ok := ParseGameID(bad)
		assert.False(t, ok, "期望 %q 非法", bad)
	}
}

func TestScheme_Opposite(t *testing.T) {
	assert.Equal(t, SchemeGCMCE, SchemeMCGCP.Opposite())
	assert.Equal(t, SchemeMCGCP, SchemeGCMCE.Opposite())

	_, err := ParseScheme("vmc")
	assert.Error(t, err)
}
