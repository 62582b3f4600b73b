package bpsv

import "testing"

func sampleDoc() *Document {
	return &Document{
		Columns: []Column{
			{Name: "Region", Type: String, Size: 0},
			{Name: "BuildConfig", Type: Hex, Size: 32},
			{Name: "VersionsName", Type: String, Size: 0},
		},
		Rows: [][]string{
			{"us", "deadbeefdeadbeefdeadbeefdeadbeef", "1.0.0.12345"},
			{"eu", "cafebabecafebabecafebabecafebabe", "1.0.0.12345"},
		},
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	enc := Encode(sampleDoc())
	doc, err := Parse(enc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Columns) != 3 || len(doc.Rows) != 2 {
		t.Fatalf("Parse = %+v", doc)
	}
	if doc.RowsIndexed()[0].Get("Region") != "us" {
		t.Fatalf("Get(Region) = %q", doc.RowsIndexed()[0].Get("Region"))
	}
}

func TestParseRejectsBadChecksum(t *testing.T) {
	enc := Encode(sampleDoc())
	// Replace one hex digit of the trailing checksum with another hex digit.
	i := len(enc) - 5
	if enc[i] == '0' {
		enc[i] = '1'
	} else {
		enc[i] = '0'
	}
	_, err := Parse(enc)
	if _, ok := err.(*ChecksumMismatchError); !ok {
		t.Fatalf("expected checksum mismatch error, got %v", err)
	}
}

func TestParseRejectsRowShapeMismatch(t *testing.T) {
	raw := "Region!STRING:0|BuildConfig!HEX:32\nus|deadbeef|extra\n"
	if _, err := Parse([]byte(raw)); err == nil {
		t.Fatal("expected row shape error")
	}
}

func TestParseRejectsUnknownType(t *testing.T) {
	raw := "Region!WEIRD:0\nus\n"
	if _, err := Parse([]byte(raw)); err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestParseWithoutChecksumStillWorks(t *testing.T) {
	raw := "Region!STRING:0|Name!STRING:0\nus|foo\neu|bar\n"
	doc, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Rows) != 2 {
		t.Fatalf("Rows = %v", doc.Rows)
	}
}

func TestParseSeqnComment(t *testing.T) {
	d := sampleDoc()
	d.Sequence = 42
	doc, err := Parse(Encode(d))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Sequence != 42 {
		t.Fatalf("Sequence = %d, want 42", doc.Sequence)
	}
}
