package wia

import "testing"

func TestFormatVersion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		v    uint32
		want string
	}{
		{0x01_00_00_00, "1.00"},
		{0x00_08_00_00, "0.08"},
		{0x00_02_00_00, "0.02"},
		{0x01_02_03_04, "1.02.3.4"},
	}
	for _, tc := range cases {
		if got := FormatVersion(tc.v); got != tc.want {
			t.Errorf("FormatVersion(%#08x) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestCheckVersionCompatible(t *testing.T) {
	t.Parallel()

	if err := checkVersionCompatible(VersionWIA, VersionWIAWriteCompatible, VersionWIA, VersionWIAReadCompatible); err != nil {
		t.Errorf("same-version check failed: %v", err)
	}

	if err := checkVersionCompatible(0, VersionWIAWriteCompatible, VersionWIA, VersionWIAReadCompatible); err == nil {
		t.Errorf("expected error for a version below the read-compatible floor")
	}

	if err := checkVersionCompatible(VersionWIA, 0xffffffff, VersionWIA, VersionWIAReadCompatible); err == nil {
		t.Errorf("expected error when the file demands a newer reader than we are")
	}
}

func TestBlobTypeString(t *testing.T) {
	t.Parallel()

	if BlobWIA.String() != "WIA" {
		t.Errorf("BlobWIA.String() = %q, want WIA", BlobWIA.String())
	}
	if BlobRVZ.String() != "RVZ" {
		t.Errorf("BlobRVZ.String() = %q, want RVZ", BlobRVZ.String())
	}
}
