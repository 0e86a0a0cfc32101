package detector

import "testing"

func TestDeduperMarkAndReconcile(t *testing.T) {
	d := NewDeduper()

	if d.Marked("KRW-BTC") {
		t.Error("fresh deduper should have nothing marked")
	}

	d.Mark("KRW-BTC")
	d.Mark("KRW-ETH")
	if !d.Marked("KRW-BTC") || !d.Marked("KRW-ETH") {
		t.Error("marked symbols should read as marked")
	}
	if d.Size() != 2 {
		t.Errorf("expected 2 marked symbols, got %d", d.Size())
	}

	// BTC is still hot, ETH cooled off and becomes eligible again
	d.Reconcile(map[string]bool{"KRW-BTC": true})
	if !d.Marked("KRW-BTC") {
		t.Error("still-hot symbol must stay marked")
	}
	if d.Marked("KRW-ETH") {
		t.Error("cooled-off symbol must be evicted so it can alert again")
	}
}

func TestDeduperReset(t *testing.T) {
	d := NewDeduper()
	d.Mark("KRW-XRP")
	d.Reset()
	if d.Size() != 0 {
		t.Errorf("reset should clear all marks, got %d", d.Size())
	}
}
