package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datashield-labs/warden_api/model"
)

func TestValidateTransitionForwardOnly(t *testing.T) {
	valid := []struct{ from, to model.IncidentStatus }{
		{model.StatusDetected, model.StatusInvestigating},
		{model.StatusInvestigating, model.StatusContained},
		{model.StatusContained, model.StatusResolved},
		{model.StatusDetected, model.StatusResolved}, // skipping ahead is legal
		{model.StatusDetected, model.StatusContained},
	}
	for _, tc := range valid {
		assert.NoError(t, validateTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	invalid := []struct{ from, to model.IncidentStatus }{
		{model.StatusInvestigating, model.StatusDetected},
		{model.StatusResolved, model.StatusContained},
		{model.StatusResolved, model.StatusDetected},
		{model.StatusContained, model.StatusInvestigating},
		{model.StatusDetected, model.StatusDetected}, // no self-loops
	}
	for _, tc := range invalid {
		assert.Error(t, validateTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestValidateTransitionUnknownStatus(t *testing.T) {
	assert.Error(t, validateTransition("bogus", model.StatusResolved))
	assert.Error(t, validateTransition(model.StatusDetected, "bogus"))
}

func TestRequiresAuthorityReport(t *testing.T) {
	svc := &IncidentService{breachUserThreshold: 100}

	// Only data breaches qualify.
	assert.False(t, svc.RequiresAuthorityReport(model.IncidentUnauthorizedAccess, model.SeverityCritical, 100000))
	assert.False(t, svc.RequiresAuthorityReport(model.IncidentSystemCompromise, model.SeverityHigh, 500))

	// High or critical severity triggers regardless of count.
	assert.True(t, svc.RequiresAuthorityReport(model.IncidentDataBreach, model.SeverityHigh, 0))
	assert.True(t, svc.RequiresAuthorityReport(model.IncidentDataBreach, model.SeverityCritical, 1))

	// Lower severities need the affected-user threshold crossed.
	assert.False(t, svc.RequiresAuthorityReport(model.IncidentDataBreach, model.SeverityLow, 100))
	assert.True(t, svc.RequiresAuthorityReport(model.IncidentDataBreach, model.SeverityLow, 101))
	assert.False(t, svc.RequiresAuthorityReport(model.IncidentDataBreach, model.SeverityMedium, 50))
}

func TestSummarizeIncidents(t *testing.T) {
	detected := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	resolved := detected.Add(6 * time.Hour)

	incidents := []model.SecurityIncident{
		{
			IncidentType:        model.IncidentDataBreach,
			Severity:            model.SeverityCritical,
			Status:              model.StatusResolved,
			AffectedUsersCount:  300,
			DetectionDate:       detected,
			ResolutionDate:      &resolved,
			ReportedToAuthority: true,
		},
		{
			IncidentType:       model.IncidentUnauthorizedAccess,
			Severity:           model.SeverityHigh,
			Status:             model.StatusInvestigating,
			AffectedUsersCount: 2,
			DetectionDate:      detected,
		},
		{
			IncidentType:  model.IncidentOther,
			Severity:      model.SeverityLow,
			Status:        model.StatusDetected,
			DetectionDate: detected,
		},
	}

	summary := summarizeIncidents(incidents)

	assert.Equal(t, int64(3), summary.TotalIncidents)
	assert.Equal(t, int64(2), summary.OpenIncidents)
	assert.Equal(t, int64(1), summary.CriticalIncidents)
	assert.Equal(t, int64(1), summary.HighIncidents)
	assert.Equal(t, int64(302), summary.TotalAffectedUsers)
	assert.Equal(t, int64(1), summary.ByType["data_breach"])
	assert.Equal(t, int64(1), summary.ByType["unauthorized_access"])
	assert.Zero(t, summary.PendingAuthorityCount) // the reported breach is resolved

	require.NotNil(t, summary.AvgResolutionHours)
	assert.InDelta(t, 6.0, *summary.AvgResolutionHours, 0.01)
}

func TestSummarizeIncidentsPendingAuthority(t *testing.T) {
	incidents := []model.SecurityIncident{
		{
			IncidentType:        model.IncidentDataBreach,
			Severity:            model.SeverityHigh,
			Status:              model.StatusInvestigating,
			ReportedToAuthority: true,
			DetectionDate:       time.Now().UTC(),
		},
	}

	summary := summarizeIncidents(incidents)
	assert.Equal(t, int64(1), summary.PendingAuthorityCount)
	assert.Nil(t, summary.AvgResolutionHours)
}

func TestAuthorityReportWindowIs72Hours(t *testing.T) {
	assert.Equal(t, 72*time.Hour, authorityReportWindow)
}
