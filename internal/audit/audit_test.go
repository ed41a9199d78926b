package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("os.Open(%s) failed: %v", path, err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("json.Unmarshal(%q) failed: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestWriterPartitionsByEventDate(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 16, 1)

	day1 := time.Date(2024, 6, 20, 23, 59, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Minute)
	for _, ev := range []Event{
		{Time: day1, Kind: KindRegister, Email: "a@example.com"},
		{Time: day1, Kind: KindForecast, Email: "a@example.com", Ticker: "HUBC", Detail: map[string]any{"trend": "up"}},
		{Time: day2, Kind: KindLogout, Email: "a@example.com"},
	} {
		if err := w.Record(ev); err != nil {
			t.Fatalf("Record() = %v; want nil", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v; want nil", err)
	}

	first := readEvents(t, filepath.Join(dir, "2024-06-20", "audit.jsonl"))
	if len(first) != 2 || first[1].Ticker != "HUBC" || first[1].Detail["trend"] != "up" {
		t.Fatalf("2024-06-20 events = %+v; want register and forecast", first)
	}
	second := readEvents(t, filepath.Join(dir, "2024-06-21", "audit.jsonl"))
	if len(second) != 1 || second[0].Kind != KindLogout {
		t.Fatalf("2024-06-21 events = %+v; want logout", second)
	}
}

func TestRecordAfterCloseFails(t *testing.T) {
	w := NewWriter(t.TempDir(), 4, 1)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := w.Record(Event{Kind: KindLogin}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Record() after Close = %v; want ErrClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() = %v; want nil", err)
	}
}

func TestRecordStampsTime(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 4, 1)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	w.now = func() time.Time { return fixed }
	if err := w.Record(Event{Kind: KindLogin, Email: "b@example.com"}); err != nil {
		t.Fatalf("Record() = %v", err)
	}
	_ = w.Close()

	events := readEvents(t, filepath.Join(dir, "2025-01-02", "audit.jsonl"))
	if len(events) != 1 || !events[0].Time.Equal(fixed) {
		t.Fatalf("events = %+v; want one stamped %v", events, fixed)
	}
}
