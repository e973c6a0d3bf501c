package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/keelhq/keel/internal/codec"
)

// TraceSnapshot is the golden-file form of a scenario run: the name and
// the full trace, serialized canonically. The state hash is deliberately
// not part of the snapshot; hash stability is asserted programmatically by
// running the scenario twice.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) *Result {
	t.Helper()

	res, err := Run(sc)
	if err != nil {
		t.Fatalf("run scenario %s: %v", sc.Name, err)
	}
	for _, f := range res.Failures {
		t.Errorf("scenario %s: %s", sc.Name, f)
	}

	snap := TraceSnapshot{ScenarioName: sc.Name, Trace: res.Trace}
	raw, err := codec.Marshal(snap)
	if err != nil {
		t.Fatalf("encode trace snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, raw)
	return res
}
