package main

import "testing"

func TestAnalyticsFlushOnStop(t *testing.T) {
	db := openTestDB(t)
	a := NewAnalytics(db)

	a.Track(EvtAnswer, 1, "sess-1", `{"correct":true}`)
	a.Track(EvtAnswer, 2, "sess-1", `{"correct":false}`)
	a.Track(EvtRaceEnd, 0, "sess-1", "")
	a.Stop()

	counts, err := a.EventCounts(1)
	if err != nil {
		t.Fatalf("EventCounts: %v", err)
	}
	if counts[EvtAnswer] != 2 || counts[EvtRaceEnd] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestAnalyticsDAUCount(t *testing.T) {
	db := openTestDB(t)
	a := NewAnalytics(db)

	a.Track(EvtAnswer, 7, "s", "")
	a.Track(EvtAnswer, 7, "s", "")
	a.Track(EvtAnswer, 8, "s", "")
	a.Track(EvtRaceEnd, 0, "s", "") // guest events don't count toward DAU
	a.Stop()

	dau, err := a.DAUCount()
	if err != nil {
		t.Fatalf("DAUCount: %v", err)
	}
	if dau != 2 {
		t.Errorf("dau = %d, want 2", dau)
	}
}

func TestAnalyticsTrackAfterStop(t *testing.T) {
	db := openTestDB(t)
	a := NewAnalytics(db)
	a.Track(EvtAnswer, 1, "s", "")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			a.Track(EvtAnswer, 2, "s", "")
		}
	}()
	a.Stop()
	<-done

	// Late events after shutdown are dropped, never a panic
	a.Track(EvtRaceEnd, 3, "s", "")
	a.Track(EvtRaceEnd, 3, "s", "")
}

func TestAnalyticsNilDB(t *testing.T) {
	a := NewAnalytics(nil)
	a.Track(EvtAnswer, 1, "s", "")
	a.Stop()

	if dau, err := a.DAUCount(); dau != 0 || err != nil {
		t.Errorf("nil-db DAU = %d, %v", dau, err)
	}
	if counts, err := a.EventCounts(1); counts != nil || err != nil {
		t.Errorf("nil-db counts = %v, %v", counts, err)
	}
}
