package handlers

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/validatekit/scenario/internal/scenario/registry"
)

var checkLastSampleParams = []registry.Parameter{
	{Name: "sink-name", Types: "string"},
	{Name: "sink-factory-name", Types: "string"},
	{Name: "sinkpad-caps", Types: "string"},
	{Name: "checksum", Mandatory: true, Types: "string", Description: "hex SHA-1 of the expected buffer"},
}

// execCheckLastSample resolves at most one sink, reads its last buffer, and
// compares its SHA-1 against the expected checksum (spec.md §4.8:
// "Duplicate matches, missing sample, or mismatch -> reported error"). This
// is the one handler whose checksum is specified as SHA-1 rather than the
// domain stack's BLAKE3 (see DESIGN.md), so it is the sole user of
// crypto/sha1.
func execCheckLastSample(ctx registry.Context) (registry.Outcome, error) {
	pl, err := resolvePipeline(ctx)
	if err != nil {
		return registry.OutcomeError, err
	}
	sink, err := pl.FindSinkForCheck(
		stringField(ctx.Structure, "sink-name", ""),
		stringField(ctx.Structure, "sink-factory-name", ""),
		stringField(ctx.Structure, "sinkpad-caps", ""),
	)
	if err != nil {
		return registry.OutcomeError, fmt.Errorf("check-last-sample: %w", err)
	}
	sample, ok := pl.LastSample(sink)
	if !ok {
		return registry.OutcomeError, fmt.Errorf("check-last-sample: no sample available on %s", sink.Name())
	}
	sum := sha1.Sum(sample.Bytes)
	got := hex.EncodeToString(sum[:])
	want := stringField(ctx.Structure, "checksum", "")
	if got != want {
		return registry.OutcomeError, fmt.Errorf("check-last-sample: checksum mismatch on %s: got %s want %s", sink.Name(), got, want)
	}
	return registry.OutcomeOK, nil
}
