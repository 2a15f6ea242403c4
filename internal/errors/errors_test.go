package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	reported []*EnhancedError
}

func (f *fakeReporter) ReportError(ee *EnhancedError) {
	f.reported = append(f.reported, ee)
	ee.MarkReported()
}

func (f *fakeReporter) IsEnabled() bool { return true }

func TestBuildFastPathDefaults(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestCategorySentinelMatching(t *testing.T) {
	t.Parallel()

	sentinel := Newf("stream connection failed").Category(CategoryConnection).Build()
	err := New(fmt.Errorf("dial tcp: refused")).
		Component("playback").
		Category(CategoryConnection).
		Context("url_category", "http-endpoint").
		Build()

	assert.ErrorIs(t, err, sentinel)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), sentinel)

	other := Newf("sample too small").Category(CategoryInsufficientAudio).Build()
	assert.NotErrorIs(t, err, other)
	assert.True(t, IsCategory(err, CategoryConnection))
	assert.Equal(t, CategoryConnection, CategoryOf(fmt.Errorf("x: %w", err)))
	assert.Equal(t, CategoryGeneric, CategoryOf(fmt.Errorf("plain")))
}

func TestUnderlyingErrorStillMatches(t *testing.T) {
	t.Parallel()

	base := NewStd("boom")
	ee := New(base).Category(CategoryAudio).Build()
	assert.ErrorIs(t, ee, base)
}

func TestContextIsCopied(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Context("k", "v").Build()
	ctx := ee.GetContext()
	ctx["k"] = "changed"
	assert.Equal(t, "v", ee.GetContext()["k"])
}

func TestPriorityFallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PriorityHigh, New(NewStd("x")).Priority(PriorityHigh).Build().GetPriority())
	assert.Equal(t, PriorityMedium, New(NewStd("x")).Priority("urgent").Build().GetPriority())
	assert.Empty(t, New(NewStd("x")).Build().GetPriority())
}

func TestDetectCategoryHeuristics(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CategoryTimeout, detectCategory(NewStd("context deadline exceeded")))
	assert.Equal(t, CategoryNetwork, detectCategory(NewStd("connection reset by peer")))
	assert.Equal(t, CategoryValidation, detectCategory(NewStd("invalid volume")))
	assert.Equal(t, CategoryGeneric, detectCategory(nil))
}

func TestReporterReceivesBuiltErrors(t *testing.T) {
	rep := &fakeReporter{}
	SetTelemetryReporter(rep)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("upload failed")).Category(CategoryIdentificationService).Build()

	require.Len(t, rep.reported, 1)
	assert.Same(t, ee, rep.reported[0])
	assert.True(t, ee.IsReported())
}

func TestScrubMessage(t *testing.T) {
	t.Parallel()

	got := scrubMessage("POST https://identify.acrcloud.com/v1/identify?access_key=abc failed")
	assert.Equal(t, "POST https://identify.acrcloud.com/v1/identify?[REDACTED] failed", got)

	got = scrubMessage("bad api_token=deadbeef and signature=xyz")
	assert.NotContains(t, got, "deadbeef")
	assert.NotContains(t, got, "xyz")
}

func TestErrorTitle(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Component("recorder").Category(CategoryUnsupportedFormat).Context("operation", "negotiate_format").Build()
	assert.Equal(t, "Recorder Unsupported Format Error Negotiate Format", errorTitle(ee))
}
