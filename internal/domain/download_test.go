package domain

import (
	"testing"
	"time"
)

func newTestDownload(status Status) *Download {
	d := NewDownload("id-1", "https://example.com/a.jpg", "board/a.jpg", Metadata{Group: "thread-1"}, time.Unix(100, 0))
	d.Status = status
	return d
}

func TestDownload_Transitions(t *testing.T) {
	now := time.Unix(200, 0)

	tests := []struct {
		name   string
		from   Status
		apply  func(d *Download) bool
		want   Status
		wantOK bool
	}{
		{"dispatch pending", StatusPending, func(d *Download) bool { return d.MarkDownloading(now) }, StatusDownloading, true},
		{"dispatch paused", StatusPaused, func(d *Download) bool { return d.MarkDownloading(now) }, StatusPaused, false},
		{"complete downloading", StatusDownloading, func(d *Download) bool { return d.MarkCompleted(now, 10) }, StatusCompleted, true},
		{"complete pending", StatusPending, func(d *Download) bool { return d.MarkCompleted(now, 10) }, StatusPending, false},
		{"fail downloading", StatusDownloading, func(d *Download) bool { return d.MarkFailed("boom") }, StatusFailed, true},
		{"fail paused", StatusPaused, func(d *Download) bool { return d.MarkFailed("boom") }, StatusPaused, false},
		{"pause pending", StatusPending, func(d *Download) bool { return d.RequestPause(now) }, StatusPaused, true},
		{"pause paused", StatusPaused, func(d *Download) bool { return d.RequestPause(now) }, StatusPaused, false},
		{"pause completed", StatusCompleted, func(d *Download) bool { return d.RequestPause(now) }, StatusCompleted, false},
		{"resume paused", StatusPaused, func(d *Download) bool { return d.Resume() }, StatusPending, true},
		{"resume pending", StatusPending, func(d *Download) bool { return d.Resume() }, StatusPending, false},
		{"resume failed", StatusFailed, func(d *Download) bool { return d.Resume() }, StatusPending, true},
		{"retry failed", StatusFailed, func(d *Download) bool { return d.Retry() }, StatusPending, true},
		{"retry cancelled", StatusCancelled, func(d *Download) bool { return d.Retry() }, StatusPending, true},
		{"retry completed", StatusCompleted, func(d *Download) bool { return d.Retry() }, StatusCompleted, false},
		{"cancel downloading", StatusDownloading, func(d *Download) bool { return d.MarkCancelled() }, StatusCancelled, true},
		{"cancel completed", StatusCompleted, func(d *Download) bool { return d.MarkCancelled() }, StatusCompleted, false},
		{"reset downloading", StatusDownloading, func(d *Download) bool { return d.ResetInterrupted(now) }, StatusPending, true},
		{"reset failed", StatusFailed, func(d *Download) bool { return d.ResetInterrupted(now) }, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDownload(tt.from)
			if got := tt.apply(d); got != tt.wantOK {
				t.Errorf("applied = %v, want %v", got, tt.wantOK)
			}
			if d.Status != tt.want {
				t.Errorf("Status = %s, want %s", d.Status, tt.want)
			}
		})
	}
}

func TestDownload_PauseIntent(t *testing.T) {
	now := time.Unix(300, 0)
	d := newTestDownload(StatusDownloading)

	if !d.RequestPause(now) {
		t.Fatal("RequestPause() = false")
	}
	if d.Status != StatusDownloading || !d.PauseRequested {
		t.Fatalf("after RequestPause status=%s requested=%v", d.Status, d.PauseRequested)
	}
	if d.RequestPause(now) {
		t.Error("second RequestPause() should be a no-op")
	}

	if !d.MarkPaused(now, []byte("abc")) {
		t.Fatal("MarkPaused() = false")
	}
	if string(d.ResumeToken) != "abc" {
		t.Errorf("ResumeToken = %q, want abc", d.ResumeToken)
	}
	if d.PausedAt == nil || !d.PausedAt.Equal(now) {
		t.Errorf("PausedAt = %v, want %v", d.PausedAt, now)
	}
	if d.PauseRequested {
		t.Error("PauseRequested should be cleared")
	}
}

func TestDownload_ResetInterruptedWithPauseInFlight(t *testing.T) {
	d := newTestDownload(StatusDownloading)
	d.RequestPause(time.Now())

	d.ResetInterrupted(time.Now())

	if d.Status != StatusPaused {
		t.Errorf("Status = %s, want paused", d.Status)
	}
}

func TestDownload_RetryResetsProgress(t *testing.T) {
	d := newTestDownload(StatusFailed)
	d.BytesDownloaded = 512
	d.TotalBytes = 1024
	d.ErrorMessage = "connection reset"
	d.ResumeToken = []byte("tok")
	d.RetryCount = 2

	d.Retry()

	if d.BytesDownloaded != 0 {
		t.Errorf("BytesDownloaded = %d, want 0", d.BytesDownloaded)
	}
	if d.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", d.RetryCount)
	}
	if d.ResumeToken != nil || d.ErrorMessage != "" {
		t.Errorf("token=%q error=%q, want both cleared", d.ResumeToken, d.ErrorMessage)
	}
}

func TestDownload_UpdateProgressClampsToTotal(t *testing.T) {
	d := newTestDownload(StatusDownloading)

	d.UpdateProgress(50, 100)
	if d.BytesDownloaded != 50 || d.TotalBytes != 100 {
		t.Fatalf("got %d/%d, want 50/100", d.BytesDownloaded, d.TotalBytes)
	}

	d.UpdateProgress(150, -1)
	if d.BytesDownloaded != 100 {
		t.Errorf("BytesDownloaded = %d, want clamp at 100", d.BytesDownloaded)
	}
}

func TestDownload_MarkCompletedUnknownTotal(t *testing.T) {
	d := newTestDownload(StatusDownloading)

	d.MarkCompleted(time.Now(), 4096)

	if d.TotalBytes != 4096 || d.BytesDownloaded != 4096 {
		t.Errorf("got %d/%d, want 4096/4096", d.BytesDownloaded, d.TotalBytes)
	}
	if d.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestDownload_CloneIsDeep(t *testing.T) {
	d := newTestDownload(StatusPaused)
	d.ResumeToken = []byte("abc")
	d.Validators = map[string]string{"etag": `"x"`}
	started := time.Now()
	d.StartedAt = &started

	c := d.Clone()
	c.ResumeToken[0] = 'z'
	c.Validators["etag"] = "changed"
	*c.StartedAt = time.Time{}

	if string(d.ResumeToken) != "abc" {
		t.Error("token shared between clone and original")
	}
	if d.Validators["etag"] != `"x"` {
		t.Error("validators shared between clone and original")
	}
	if d.StartedAt.IsZero() {
		t.Error("StartedAt shared between clone and original")
	}
}

func TestMetadata_GroupKey(t *testing.T) {
	tests := []struct {
		meta Metadata
		want string
	}{
		{Metadata{Group: "g", Collection: "c"}, "g"},
		{Metadata{Collection: "c"}, "c"},
		{Metadata{}, UngroupedKey},
	}
	for _, tt := range tests {
		if got := tt.meta.GroupKey(); got != tt.want {
			t.Errorf("GroupKey(%+v) = %q, want %q", tt.meta, got, tt.want)
		}
	}
}

func TestBuildGroups(t *testing.T) {
	a := newTestDownload(StatusCompleted)
	b := newTestDownload(StatusDownloading)
	b.BytesDownloaded, b.TotalBytes = 50, 100
	c := newTestDownload(StatusFailed)
	c.Metadata = Metadata{Collection: "other"}

	groups := BuildGroups([]*Download{a, b, c})

	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if groups[0].Key != "other" || groups[0].Failed != 1 {
		t.Errorf("groups[0] = %+v", groups[0])
	}
	g := groups[1]
	if g.Key != "thread-1" || g.Total != 2 || g.Completed != 1 || g.Active != 1 {
		t.Errorf("groups[1] = %+v", g)
	}
	if g.Progress != 0.75 {
		t.Errorf("Progress = %v, want 0.75", g.Progress)
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("paused"); err != nil || s != StatusPaused {
		t.Errorf("ParseStatus(paused) = %v, %v", s, err)
	}
	if _, err := ParseStatus("in_progress"); err == nil {
		t.Error("ParseStatus(in_progress) should fail")
	}
}
