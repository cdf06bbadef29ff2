package tradingview

import (
	"encoding/json"
	"testing"

	"github.com/apershukov/allocator/internal/adapters/config"
)

func TestQualify(t *testing.T) {
	client := NewClient(&config.TradingViewConfig{Exchange: "AMEX"})

	cases := []struct {
		symbol string
		want   string
	}{
		{"SPY", "AMEX:SPY"},
		{"VIX", "CBOE:VIX"},
		{"SPX", "SP:SPX"},
		{"MMTH", "INDEX:MMTH"},
		{"NASDAQ:QQQ", "NASDAQ:QQQ"},
	}

	for _, tc := range cases {
		if got := client.qualify(tc.symbol); got != tc.want {
			t.Errorf("qualify(%s) = %s, want %s", tc.symbol, got, tc.want)
		}
	}
}

func TestSplitFrames(t *testing.T) {
	t.Run("multiple frames in one payload", func(t *testing.T) {
		raw := "~m~4~m~abcd~m~2~m~xy"
		frames := splitFrames(raw)
		if len(frames) != 2 || frames[0] != "abcd" || frames[1] != "xy" {
			t.Fatalf("unexpected frames: %v", frames)
		}
	})

	t.Run("heartbeat frame", func(t *testing.T) {
		frames := splitFrames("~m~4~m~~h~1")
		if len(frames) != 1 || frames[0] != "~h~1" {
			t.Fatalf("unexpected frames: %v", frames)
		}
	})

	t.Run("truncated payload yields nothing", func(t *testing.T) {
		if frames := splitFrames("~m~100~m~short"); len(frames) != 0 {
			t.Fatalf("expected no frames, got %v", frames)
		}
	})
}

func TestParseUpdate(t *testing.T) {
	frame := `{"m":"timescale_update","p":["cs_x",{"series_1":{"s":[` +
		`{"i":0,"v":[1735689600,100,102,99,101,5000]},` +
		`{"i":1,"v":[1735776000,101,103,100,102]}]}}]}`

	var msg seriesMessage
	if err := json.Unmarshal([]byte(frame), &msg); err != nil {
		t.Fatalf("fixture unmarshal: %v", err)
	}

	bars, err := parseUpdate(msg)
	if err != nil {
		t.Fatalf("parseUpdate: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].CloseF() != 101 {
		t.Errorf("first close = %v, want 101", bars[0].CloseF())
	}
	if bars[0].Volume.InexactFloat64() != 5000 {
		t.Errorf("first volume = %v, want 5000", bars[0].Volume)
	}
	if !bars[1].Volume.IsZero() {
		t.Errorf("volume-less bar should default to zero, got %v", bars[1].Volume)
	}
	if !bars[0].Date.Before(bars[1].Date) {
		t.Error("bars should be chronological")
	}
}
