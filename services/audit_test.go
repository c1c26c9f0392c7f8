package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/datashield-labs/warden_api/model"
)

func auditEntry(action model.AuditAction, category model.DataCategory, at time.Time) model.AuditLog {
	return model.AuditLog{Action: action, DataCategory: category, CreatedAt: at}
}

func TestSummarizeEntriesEmpty(t *testing.T) {
	summary := summarizeEntries(nil)

	assert.Zero(t, summary.TotalCount)
	assert.Empty(t, summary.ByAction)
	assert.Empty(t, summary.ByCategory)
	assert.Empty(t, summary.ByDay)
}

func TestSummarizeEntriesCounts(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)

	entries := []model.AuditLog{
		auditEntry(model.ActionRead, model.CategoryPersonalInfo, day1),
		auditEntry(model.ActionRead, model.CategoryPersonalInfo, day1.Add(time.Hour)),
		auditEntry(model.ActionUpdate, model.CategoryProfileData, day1),
		auditEntry(model.ActionAccessDenied, model.CategorySystemData, day2),
	}

	summary := summarizeEntries(entries)

	assert.Equal(t, int64(4), summary.TotalCount)
	assert.Equal(t, int64(2), summary.ByAction["read"])
	assert.Equal(t, int64(1), summary.ByAction["update"])
	assert.Equal(t, int64(1), summary.ByAction["access_denied"])
	assert.Equal(t, int64(2), summary.ByCategory["personal_info"])
	assert.Equal(t, int64(3), summary.ByDay["2026-03-01"])
	assert.Equal(t, int64(1), summary.ByDay["2026-03-02"])
}

func TestSummarizeEntriesDayBucketsAreUTC(t *testing.T) {
	// 23:30 in UTC-5 is 04:30 next day UTC; buckets follow UTC.
	est := time.FixedZone("EST", -5*3600)
	entries := []model.AuditLog{
		auditEntry(model.ActionRead, model.CategoryPersonalInfo, time.Date(2026, 3, 1, 23, 30, 0, 0, est)),
	}

	summary := summarizeEntries(entries)
	assert.Equal(t, int64(1), summary.ByDay["2026-03-02"])
}

func TestStrOrEmpty(t *testing.T) {
	s := "abc"
	assert.Equal(t, "abc", strOrEmpty(&s))
	assert.Equal(t, "", strOrEmpty(nil))
}
