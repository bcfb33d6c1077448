package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

type captureSender struct {
	name string
	got  []Alert
	err  error
}

func (s *captureSender) Send(_ context.Context, a Alert) error {
	s.got = append(s.got, a)
	return s.err
}

func (s *captureSender) Name() string { return s.name }

func testNotifier(senders ...Sender) *Notifier {
	return NewNotifier(senders, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunFinishedCarriesSummaryFields(t *testing.T) {
	s := &captureSender{name: "capture"}
	n := testNotifier(s)

	rs := domain.ResultSet{
		RunID: "8d5a3f2e-1111-2222-3333-444455556666",
		Records: []domain.TradeRecord{
			{RealizedR: 1.2},
			{RealizedR: -1},
		},
		Equity: []domain.EquityPoint{{CumR: 0.2}},
		Events: []domain.GovernanceEvent{
			{Kind: domain.EventLockout, Instrument: "ESH4"},
			{Kind: domain.EventSessionSkip, Instrument: "NQH4"},
		},
	}
	if err := n.RunFinished(context.Background(), rs); err != nil {
		t.Fatalf("RunFinished: %v", err)
	}
	if len(s.got) != 1 {
		t.Fatalf("sent %d alerts, want 1", len(s.got))
	}

	a := s.got[0]
	if !strings.Contains(a.Title, "8d5a3f2e") {
		t.Fatalf("title %q missing the short run id", a.Title)
	}
	want := map[string]string{
		"Trades":           "2 (wins 1)",
		"Total":            "+0.20R",
		"Lockouts":         "1",
		"Skipped sessions": "1",
	}
	for _, f := range a.Fields {
		if v, ok := want[f.Label]; ok && f.Value != v {
			t.Fatalf("field %s = %q, want %q", f.Label, f.Value, v)
		}
		delete(want, f.Label)
	}
	if len(want) != 0 {
		t.Fatalf("missing fields: %v", want)
	}
}

func TestLockoutCarriesDetail(t *testing.T) {
	s := &captureSender{name: "capture"}
	n := testNotifier(s)

	ev := domain.GovernanceEvent{
		Ts:         time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC),
		Instrument: "ESH4",
		Kind:       domain.EventLockout,
		Detail:     "Consecutive losses: 2",
	}
	if err := n.Lockout(context.Background(), ev); err != nil {
		t.Fatalf("Lockout: %v", err)
	}

	a := s.got[0]
	if a.Title != "Lockout: ESH4" {
		t.Fatalf("title = %q", a.Title)
	}
	if a.Body != "Consecutive losses: 2" {
		t.Fatalf("body = %q", a.Body)
	}
}

func TestFailingSenderDoesNotBlockOthers(t *testing.T) {
	bad := &captureSender{name: "bad", err: errors.New("rate limited")}
	good := &captureSender{name: "good"}
	n := testNotifier(bad, good)

	err := n.Lockout(context.Background(), domain.GovernanceEvent{Instrument: "ESH4"})
	if err == nil {
		t.Fatal("expected the failing sender's error to surface")
	}
	if len(good.got) != 1 {
		t.Fatal("healthy sender skipped after a sibling failure")
	}
}

func TestNoSendersIsNoOp(t *testing.T) {
	n := testNotifier()
	if err := n.RunFinished(context.Background(), domain.ResultSet{}); err != nil {
		t.Fatalf("empty notifier errored: %v", err)
	}
}
