package rowcache

import "testing"

func TestTreeChecksumDeterministic(t *testing.T) {
	node := map[string]any{
		"op":      "MapDataset",
		"workers": 4,
		"columns": []string{"image", "label"},
	}
	a, err := TreeChecksum("ImageFolderDataset", node)
	if err != nil {
		t.Fatalf("TreeChecksum: %v", err)
	}
	for i := 0; i < 10; i++ {
		b, err := TreeChecksum("ImageFolderDataset", map[string]any{
			"columns": []string{"image", "label"},
			"workers": 4,
			"op":      "MapDataset",
		})
		if err != nil {
			t.Fatalf("TreeChecksum: %v", err)
		}
		if b != a {
			t.Fatalf("checksum varies across map orderings: %d vs %d", a, b)
		}
	}
}

func TestTreeChecksumSensitivity(t *testing.T) {
	base, err := TreeChecksum("ImageFolderDataset", "MapDataset")
	if err != nil {
		t.Fatalf("TreeChecksum: %v", err)
	}

	reordered, err := TreeChecksum("MapDataset", "ImageFolderDataset")
	if err != nil {
		t.Fatalf("TreeChecksum: %v", err)
	}
	if reordered == base {
		t.Fatal("checksum blind to node order")
	}

	changed, err := TreeChecksum("ImageFolderDataset", "BatchDataset")
	if err != nil {
		t.Fatalf("TreeChecksum: %v", err)
	}
	if changed == base {
		t.Fatal("checksum blind to node content")
	}
}

func TestTreeChecksumEmpty(t *testing.T) {
	crc, err := TreeChecksum()
	if err != nil {
		t.Fatalf("TreeChecksum: %v", err)
	}
	if crc != 0 {
		t.Fatalf("empty checksum = %d, want 0", crc)
	}
}
