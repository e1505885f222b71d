package core

import (
	"context"
	"testing"
	"time"
)

func TestActivityCounters(t *testing.T) {
	_, client := newThrottleClient(t)
	recorder := NewActivityRecorder(client)
	ctx := context.Background()

	recorder.RecordLoginSuccess(ctx)
	recorder.RecordLoginSuccess(ctx)
	recorder.RecordLoginFailure(ctx)
	recorder.RecordTokenRejected(ctx)

	overview, err := recorder.Overview(ctx, 1)
	if err != nil {
		t.Fatalf("Overview error: %v", err)
	}
	if len(overview) != 1 {
		t.Fatalf("got %d days, want 1", len(overview))
	}
	today := overview[0]
	if today.Date != time.Now().Format("2006-01-02") {
		t.Errorf("date = %q", today.Date)
	}
	if today.LoginSuccess != 2 || today.LoginFailure != 1 || today.TokenRejected != 1 {
		t.Errorf("counters = %+v, want 2/1/1", today)
	}
}

func TestActivityOverviewMissingDaysReadZero(t *testing.T) {
	_, client := newThrottleClient(t)
	recorder := NewActivityRecorder(client)
	ctx := context.Background()

	recorder.RecordLoginFailure(ctx)

	overview, err := recorder.Overview(ctx, 3)
	if err != nil {
		t.Fatalf("Overview error: %v", err)
	}
	if len(overview) != 3 {
		t.Fatalf("got %d days, want 3", len(overview))
	}
	if overview[0].LoginFailure != 1 {
		t.Errorf("today failure count = %d, want 1", overview[0].LoginFailure)
	}
	for _, day := range overview[1:] {
		if day.LoginSuccess != 0 || day.LoginFailure != 0 || day.TokenRejected != 0 {
			t.Errorf("day %s has nonzero counters: %+v", day.Date, day)
		}
	}
}

func TestNilActivityRecorderIsNoop(t *testing.T) {
	var recorder *ActivityRecorder
	ctx := context.Background()

	recorder.RecordLoginSuccess(ctx)
	recorder.RecordLoginFailure(ctx)
	recorder.RecordTokenRejected(ctx)

	overview, err := recorder.Overview(ctx, 7)
	if err != nil {
		t.Fatalf("Overview error: %v", err)
	}
	if overview != nil {
		t.Errorf("overview = %v, want nil", overview)
	}
}
