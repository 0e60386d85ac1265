package settings

import "testing"

func TestLoadMissingReturnsZeroValue(t *testing.T) {
	t.Parallel()

	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.RegionOverride != nil || s.LastObservedRegion != nil {
		t.Fatalf("got %+v, want zero value for missing file", s)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	override := "EUW"
	observed := "NA"
	want := Settings{RegionOverride: &override, LastObservedRegion: &observed}

	if err := Save(dir, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RegionOverride == nil || *got.RegionOverride != override {
		t.Fatalf("got region_override %v, want %q", got.RegionOverride, override)
	}
	if got.LastObservedRegion == nil || *got.LastObservedRegion != observed {
		t.Fatalf("got last_observed_region %v, want %q", got.LastObservedRegion, observed)
	}
}
