package record

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewEntry_MissingFields(t *testing.T) {
	start := date(2021, 3, 1)
	end := date(2021, 3, 10)

	tests := []struct {
		name    string
		build   func() (Entry, error)
		wantErr bool
	}{
		{
			name: "complete entry",
			build: func() (Entry, error) {
				return NewEntry(start, end, "staff", "Home A", "EMS", "Bulle")
			},
		},
		{
			name: "missing start",
			build: func() (Entry, error) {
				return NewEntry(time.Time{}, end, "staff", "Home A", "EMS", "Bulle")
			},
			wantErr: true,
		},
		{
			name: "missing end",
			build: func() (Entry, error) {
				return NewEntry(start, time.Time{}, "staff", "Home A", "EMS", "Bulle")
			},
			wantErr: true,
		},
		{
			name: "missing role",
			build: func() (Entry, error) {
				return NewEntry(start, end, "", "Home A", "EMS", "Bulle")
			},
			wantErr: true,
		},
		{
			name: "missing institution",
			build: func() (Entry, error) {
				return NewEntry(start, end, "staff", "", "EMS", "Bulle")
			},
			wantErr: true,
		},
		{
			name: "missing institution type",
			build: func() (Entry, error) {
				return NewEntry(start, end, "staff", "Home A", "", "Bulle")
			},
			wantErr: true,
		},
		{
			name: "missing location",
			build: func() (Entry, error) {
				return NewEntry(start, end, "staff", "Home A", "EMS", "")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			if tt.wantErr {
				if !errors.Is(err, ErrMissingField) {
					t.Errorf("expected ErrMissingField, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewEntry_NormalisesDates(t *testing.T) {
	start := time.Date(2021, 3, 1, 17, 45, 0, 0, time.FixedZone("CET", 3600))
	e, err := NewEntry(start, start.Add(48*time.Hour), "staff", "Home A", "EMS", "Bulle")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.DateStart.Equal(date(2021, 3, 1)) {
		t.Errorf("DateStart = %v", e.DateStart)
	}
	if e.DurationDays() != 3 {
		t.Errorf("DurationDays = %d, want 3", e.DurationDays())
	}
}

func TestEntry_Field(t *testing.T) {
	e, err := NewEntry(date(2021, 3, 1), date(2021, 3, 2), "resident", "Home A", "EMS", "Bulle")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e = e.WithDistrict("Gruyère")

	want := map[string]string{
		ColumnDateStart:       "2021-03-01",
		ColumnDateEnd:         "2021-03-02",
		ColumnRole:            "resident",
		ColumnInstitution:     "Home A",
		ColumnInstitutionType: "EMS",
		ColumnLocation:        "Bulle",
		ColumnDistrict:        "Gruyère",
	}
	for col, v := range want {
		got, ok := e.Field(col)
		if !ok || got != v {
			t.Errorf("Field(%q) = %q, %v; want %q", col, got, ok, v)
		}
	}
	if _, ok := e.Field("unknown"); ok {
		t.Error("expected unknown column to be rejected")
	}
	if !IsColumn(ColumnDistrict) || IsColumn("age") {
		t.Error("IsColumn mismatch")
	}
}

func TestDataReport_CopyIsIndependent(t *testing.T) {
	base := NewDataReport().WithSplitter("by type", "EMS")
	a := base.WithSplitter("by role", "staff")
	b := base.WithSplitter("by role", "resident")

	if a.Splitters["by role"] != "staff" || b.Splitters["by role"] != "resident" {
		t.Fatalf("siblings share state: a=%v b=%v", a.Splitters, b.Splitters)
	}
	if _, ok := base.Splitters["by role"]; ok {
		t.Error("parent report was mutated")
	}

	c := a.Copy()
	c.Splitters["by type"] = "hospital"
	c.SplitterOrder[0] = "changed"
	if a.Splitters["by type"] != "EMS" || a.SplitterOrder[0] != "by type" {
		t.Error("Copy shares memory with the original")
	}
}

func TestDataReport_SplitterNames(t *testing.T) {
	r := NewDataReport().WithSplitter("z", "1").WithSplitter("a", "2")
	got := r.SplitterNames()
	if len(got) != 2 || got[0] != "z" || got[1] != "a" {
		t.Errorf("SplitterNames = %v, want [z a]", got)
	}

	manual := DataReport{Splitters: map[string]string{"b": "1", "a": "2"}}
	got = manual.SplitterNames()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("SplitterNames without order = %v, want [a b]", got)
	}
}

func TestSeries_Label(t *testing.T) {
	s := Series{Description: "New cases", Report: NewDataReport()}
	if s.Label() != "New cases" {
		t.Errorf("Label = %q", s.Label())
	}
	s.Report = s.Report.WithFinalLabel("EMS")
	if s.Label() != "EMS" {
		t.Errorf("Label = %q", s.Label())
	}
}
