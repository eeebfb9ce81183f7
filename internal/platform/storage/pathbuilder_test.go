package storage

import (
	"testing"
	"time"
)

func TestBuildReceiptPathPartitionsByMonth(t *testing.T) {
	placed := time.Date(2026, 3, 31, 23, 30, 0, 0, time.FixedZone("JST", 9*3600))
	path, err := BuildObjectPath(PurposeReceipt, PathParams{OrderID: "01JORDER", PlacedAt: placed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "receipts/2026/03/01JORDER/receipt.json"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	placed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := []PathParams{
		{OrderID: "../bad", PlacedAt: placed},
		{OrderID: "a/b", PlacedAt: placed},
		{OrderID: "ok", PlacedAt: placed, FileName: "..\\x"},
		{OrderID: "ok"},
	}
	for _, params := range cases {
		if _, err := BuildObjectPath(PurposeReceipt, params); err == nil {
			t.Fatalf("expected error for %+v", params)
		}
	}
}

func TestBuildObjectPathUnknownPurpose(t *testing.T) {
	if _, err := BuildObjectPath(ObjectPurpose("avatar"), PathParams{}); err == nil {
		t.Fatalf("expected error for unknown purpose")
	}
}

func TestBuildReceiptPathHonoursPrefix(t *testing.T) {
	placed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	path, err := BuildObjectPath(PurposeReceipt, PathParams{OrderID: "01JORDER", PlacedAt: placed, Prefix: "/shop/eu/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "shop/eu/2026/03/01JORDER/receipt.json" {
		t.Fatalf("unexpected path %s", path)
	}
	if _, err := BuildObjectPath(PurposeReceipt, PathParams{OrderID: "01JORDER", PlacedAt: placed, Prefix: "../up"}); err == nil {
		t.Fatalf("expected traversal prefix to be rejected")
	}
}
