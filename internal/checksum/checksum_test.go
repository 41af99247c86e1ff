package checksum

import "testing"

func TestFooterDeterministic(t *testing.T) {
	data := []byte("0000000000000001-0000000000000004-deadbeef.ref")
	a := Footer(data)
	b := Footer(data)
	if a != b {
		t.Fatalf("checksum not deterministic: %d != %d", a, b)
	}
}

func TestVerifyFooter(t *testing.T) {
	data := []byte("some table bytes")
	sum := Footer(data)

	if !VerifyFooter(data, sum) {
		t.Fatalf("VerifyFooter rejected a matching checksum")
	}
	if VerifyFooter(append(data, 0x01), sum) {
		t.Fatalf("VerifyFooter accepted checksum for mutated data")
	}
}
