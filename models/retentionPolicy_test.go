package models

import (
	"testing"
	"time"
)

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func TestRetentionPolicyActiveWindow(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	from := now.AddDate(0, -1, 0)
	until := now.AddDate(0, 1, 0)

	policy := RetentionPolicy{IsActive: boolPtr(true), EffectiveFrom: &from, EffectiveUntil: &until}
	if !policy.IsCurrentlyActive(now) {
		t.Error("policy inside its window reported inactive")
	}
	if policy.IsCurrentlyActive(from.AddDate(0, 0, -1)) {
		t.Error("policy active before effective_from")
	}
	if policy.IsCurrentlyActive(until.AddDate(0, 0, 1)) {
		t.Error("policy active after effective_until")
	}

	policy.IsActive = boolPtr(false)
	if policy.IsCurrentlyActive(now) {
		t.Error("deactivated policy reported active")
	}

	open := RetentionPolicy{IsActive: boolPtr(true)}
	if !open.IsCurrentlyActive(now) {
		t.Error("open-ended active policy reported inactive")
	}
}

func TestRetentionPolicyWindowConsistent(t *testing.T) {
	ok := RetentionPolicy{ArchiveAfterDays: intPtr(30), DeleteAfterDays: intPtr(90)}
	if !ok.WindowConsistent() {
		t.Error("archive 30 / delete 90 reported inconsistent")
	}
	bad := RetentionPolicy{ArchiveAfterDays: intPtr(90), DeleteAfterDays: intPtr(30)}
	if bad.WindowConsistent() {
		t.Error("archive after delete reported consistent")
	}
	partial := RetentionPolicy{ArchiveAfterDays: intPtr(30)}
	if !partial.WindowConsistent() {
		t.Error("partial window reported inconsistent")
	}
}

func TestRetentionPolicyDates(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	policy := RetentionPolicy{RetentionDays: 90, ArchiveAfterDays: intPtr(30)}

	archiveDate := policy.CalculateArchiveDate(created)
	if archiveDate == nil || !archiveDate.Equal(created.AddDate(0, 0, 30)) {
		t.Errorf("archive date = %v", archiveDate)
	}

	retention := policy.CalculateRetentionUntil(created)
	if !retention.Equal(created.AddDate(0, 0, 90)) {
		t.Errorf("retention until = %v", retention)
	}

	noArchive := RetentionPolicy{RetentionDays: 90}
	if noArchive.CalculateArchiveDate(created) != nil {
		t.Error("policy without archive window produced an archive date")
	}
}
