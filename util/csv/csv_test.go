package csv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")
	content := "f1,f2\n1.5,2\n-3,0.25\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	samples, err := ReadSamples(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 {
		t.Fatalf("read %d samples", len(samples))
	}
	if samples[0][0] != 1.5 || samples[1][1] != 0.25 {
		t.Errorf("samples %v", samples)
	}
}

func TestReadSamplesBadCell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")
	if err := os.WriteFile(path, []byte("1,2\n3,oops\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSamples(path); err == nil {
		t.Error("expected error for non-numeric cell")
	}
}

func TestReadSamplesMissing(t *testing.T) {
	if _, err := ReadSamples("no-such-file.csv"); err == nil {
		t.Error("expected error for missing file")
	}
}
