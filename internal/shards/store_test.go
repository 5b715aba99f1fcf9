package shards

import (
	"os"
	"testing"
	"time"

	"tapedeck/internal/remote"
)

func desc(id, date string, downloads int) remote.Descriptor {
	return remote.Descriptor{
		Identifier: id,
		Date:       remote.FlexString(date),
		Downloads:  remote.FlexInt(downloads),
		AddedDate:  "2020-06-01T00:00:00Z",
	}
}

func TestWriteAndReadByDecade(t *testing.T) {
	dir := t.TempDir()

	added, err := Write(dir, []remote.Descriptor{
		desc("gd1972-05-03", "1972-05-03", 10),
		desc("gd1977-05-08", "1977-05-08", 20),
		desc("gd1983-10-21", "1983-10-21", 30),
	}, ByDecade)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if added != 3 {
		t.Errorf("added = %d, want 3", added)
	}

	periods, err := Periods(dir)
	if err != nil {
		t.Fatalf("Periods: %v", err)
	}
	if len(periods) != 2 || periods[0] != 1970 || periods[1] != 1980 {
		t.Errorf("periods = %v", periods)
	}

	all, maxAdded, err := Read(dir, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d descriptors, want 3", len(all))
	}
	want := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	if !maxAdded.Equal(want) {
		t.Errorf("maxAdded = %v, want %v", maxAdded, want)
	}

	seventies, _, err := Read(dir, func(period int) bool { return period == 1970 })
	if err != nil {
		t.Fatalf("filtered Read: %v", err)
	}
	if len(seventies) != 2 {
		t.Errorf("filtered read = %d descriptors, want 2", len(seventies))
	}
}

func TestWriteMergePreservesAndReplaces(t *testing.T) {
	dir := t.TempDir()

	if _, err := Write(dir, []remote.Descriptor{
		desc("A", "1970-02-13", 1),
		desc("B", "1970-02-14", 1),
	}, ByDecade); err != nil {
		t.Fatalf("initial Write: %v", err)
	}

	added, err := Write(dir, []remote.Descriptor{
		desc("B", "1970-02-14", 9999),
		desc("C", "1970-06-24", 1),
	}, ByDecade)
	if err != nil {
		t.Fatalf("merge Write: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}

	all, _, err := Read(dir, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d descriptors, want 3", len(all))
	}
	byID := map[string]remote.Descriptor{}
	for _, d := range all {
		byID[d.Identifier] = d
	}
	if int(byID["B"].Downloads) != 9999 {
		t.Errorf("B not replaced, downloads = %d", int(byID["B"].Downloads))
	}
	if _, ok := byID["A"]; !ok {
		t.Error("A lost in merge")
	}
}

func TestWriteUnchangedShardNotRewritten(t *testing.T) {
	dir := t.TempDir()
	descriptors := []remote.Descriptor{desc("A", "1970-02-13", 1)}

	if _, err := Write(dir, descriptors, ByDecade); err != nil {
		t.Fatalf("Write: %v", err)
	}
	before, err := os.Stat(shardPath(dir, 1970))
	if err != nil {
		t.Fatalf("stat shard: %v", err)
	}

	descriptors[0].Downloads = 500
	added, err := Write(dir, descriptors, ByDecade)
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
	after, err := os.Stat(shardPath(dir, 1970))
	if err != nil {
		t.Fatalf("stat shard: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
		t.Error("unchanged shard was rewritten")
	}
}

func TestWriteSkipsUndatedDescriptors(t *testing.T) {
	dir := t.TempDir()
	added, err := Write(dir, []remote.Descriptor{
		desc("", "1970-02-13", 1),
		desc("undated", "", 1),
		desc("ok", "1970-02-13", 1),
	}, ByYear)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
}

func TestReadMissingDirectory(t *testing.T) {
	all, maxAdded, err := Read(t.TempDir()+"/nope", nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(all) != 0 || !maxAdded.IsZero() {
		t.Errorf("missing dir read = %d descriptors, maxAdded %v", len(all), maxAdded)
	}
}
