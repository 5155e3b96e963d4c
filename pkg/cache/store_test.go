package cache

import (
	"errors"
	"testing"

	"github.com/Sternrassler/parkrun-harvester/pkg/results"
)

func TestEncodeArtifact_Compact(t *testing.T) {
	page := results.NewPageResult(3, []results.ResultRecord{
		{Position: 1, Name: "Jane Doe", Time: "17:45", Club: "Bristol & West"},
		{},
		{Position: 3, Gender: "Male", AgeGroup: "VM40-44", Runs: "120", Vols: "8", AgeGrade: "71.2%", Achievement: "New PB!"},
	})

	got, err := EncodeArtifact(page)
	if err != nil {
		t.Fatalf("EncodeArtifact() error = %v", err)
	}

	want := `{"week":3,"results":[` +
		`{"position":1,"name":"Jane Doe","time":"17:45","club":"Bristol & West"},` +
		`{},` +
		`{"position":3,"gender":"Male","age_group":"VM40-44","runs":"120","vols":"8","age_grade":"71.2%","achievement":"New PB!"}]}`
	if string(got) != want {
		t.Errorf("EncodeArtifact() =\n%s\nwant\n%s", got, want)
	}
}

func TestEncodeArtifact_Idempotent(t *testing.T) {
	page := results.NewPageResult(1, []results.ResultRecord{{Position: 1, Name: "A"}, {Position: 2, Name: "B"}})

	first, err := EncodeArtifact(page)
	if err != nil {
		t.Fatalf("EncodeArtifact() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := EncodeArtifact(page)
		if err != nil {
			t.Fatalf("EncodeArtifact() error = %v", err)
		}
		if string(again) != string(first) {
			t.Fatalf("EncodeArtifact() not reproducible: %s != %s", again, first)
		}
	}
}

func TestEncodeArtifact_EmptyPage(t *testing.T) {
	got, err := EncodeArtifact(&results.PageResult{Index: 5})
	if err != nil {
		t.Fatalf("EncodeArtifact() error = %v", err)
	}
	if string(got) != `{"week":5,"results":[]}` {
		t.Errorf("EncodeArtifact() = %s", got)
	}

	if _, err := EncodeArtifact(nil); err == nil {
		t.Error("EncodeArtifact(nil) should fail")
	}
}

func TestDecodeArtifact(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		index       int
		wantRecords int
		wantCorrupt bool
	}{
		{name: "valid", data: `{"week":2,"results":[{"position":1},{"name":"x"}]}`, index: 2, wantRecords: 2},
		{name: "valid empty", data: `{"week":2,"results":[]}`, index: 2, wantRecords: 0},
		{name: "not json", data: `<html>`, index: 2, wantCorrupt: true},
		{name: "truncated", data: `{"week":2,"results":[{"posi`, index: 2, wantCorrupt: true},
		{name: "missing results", data: `{"week":2}`, index: 2, wantCorrupt: true},
		{name: "null results", data: `{"week":2,"results":null}`, index: 2, wantCorrupt: true},
		{name: "missing week", data: `{"results":[]}`, index: 2, wantCorrupt: true},
		{name: "wrong week", data: `{"week":3,"results":[]}`, index: 2, wantCorrupt: true},
		{name: "wrong field type", data: `{"week":2,"results":[{"position":"first"}]}`, index: 2, wantCorrupt: true},
		{name: "trailing data", data: `{"week":2,"results":[]}{"week":2}`, index: 2, wantCorrupt: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := DecodeArtifact([]byte(tt.data), tt.index)
			if tt.wantCorrupt {
				if !errors.Is(err, results.ErrCorruptArtifact) {
					t.Fatalf("DecodeArtifact() error = %v, want ErrCorruptArtifact", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeArtifact() error = %v", err)
			}
			if page.Index != tt.index {
				t.Errorf("Index = %d, want %d", page.Index, tt.index)
			}
			if len(page.Records) != tt.wantRecords {
				t.Errorf("len(Records) = %d, want %d", len(page.Records), tt.wantRecords)
			}
		})
	}
}

func TestDecodeArtifact_RoundTripStable(t *testing.T) {
	page := results.NewPageResult(8, []results.ResultRecord{{Position: 4, Name: "Ann", Time: "22:10"}})

	data, err := EncodeArtifact(page)
	if err != nil {
		t.Fatalf("EncodeArtifact() error = %v", err)
	}
	decoded, err := DecodeArtifact(data, 8)
	if err != nil {
		t.Fatalf("DecodeArtifact() error = %v", err)
	}
	again, err := EncodeArtifact(decoded)
	if err != nil {
		t.Fatalf("EncodeArtifact() error = %v", err)
	}
	if string(again) != string(data) {
		t.Errorf("re-encoded artifact differs: %s != %s", again, data)
	}
}
