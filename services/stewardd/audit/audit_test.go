package audit

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestMemorySinkNewestFirst(t *testing.T) {
	sink := NewMemorySink()
	for i := 0; i < 3; i++ {
		if err := sink.Append(Entry{ProgramID: int64(i), Type: TypeInfo, Message: fmt.Sprintf("entry %d", i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entries, err := sink.Recent(0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "entry 2" || entries[2].Message != "entry 0" {
		t.Fatalf("entries not newest first: %+v", entries)
	}
	for _, entry := range entries {
		if entry.ID == "" || entry.Timestamp.IsZero() {
			t.Fatalf("entry missing id or timestamp: %+v", entry)
		}
	}
}

func TestMemorySinkCap(t *testing.T) {
	sink := NewMemorySinkWithCap(5)
	for i := 0; i < 12; i++ {
		if err := sink.Append(Entry{Type: TypeInfo, Message: fmt.Sprintf("entry %d", i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entries, err := sink.Recent(0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected cap of 5, got %d", len(entries))
	}
	if entries[0].Message != "entry 11" || entries[4].Message != "entry 7" {
		t.Fatalf("wrong retained window: %+v", entries)
	}
}

func TestSQLiteSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer sink.Close()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		err := sink.Append(Entry{
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			ProgramID:   7,
			Type:        TypeSuccess,
			Message:     fmt.Sprintf("payout %d", i),
			Description: "executed",
			TxHash:      fmt.Sprintf("0xhash%d", i),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	entries, err := sink.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "payout 2" || entries[1].Message != "payout 1" {
		t.Fatalf("entries not newest first: %+v", entries)
	}
	if entries[0].TxHash != "0xhash2" || entries[0].ProgramID != 7 {
		t.Fatalf("entry fields lost: %+v", entries[0])
	}
}

func TestSQLiteSinkEnforcesCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer sink.Close()
	sink.cap = 4

	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		err := sink.Append(Entry{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Type:      TypeInfo,
			Message:   fmt.Sprintf("entry %d", i),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	entries, err := sink.Recent(0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 retained entries, got %d", len(entries))
	}
	if entries[0].Message != "entry 9" {
		t.Fatalf("newest entry missing: %+v", entries[0])
	}
}
