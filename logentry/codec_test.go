package logentry

import "testing"

func TestRoundTripGetPart(t *testing.T) {
	l := &LogEntry{
		Type:          GetPart,
		NewPartName:   "201901_1_1_0",
		CreateTime:    1000,
		SourceReplica: "replica-1",
	}
	out, err := Parse(Serialize(l))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Type != l.Type || out.NewPartName != l.NewPartName ||
		out.CreateTime != l.CreateTime || out.SourceReplica != l.SourceReplica {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, l)
	}
}

func TestRoundTripMergeParts(t *testing.T) {
	l := &LogEntry{
		Type:         MergeParts,
		NewPartName:  "201901_1_3_1",
		PartsToMerge: []string{"201901_1_1_0", "201901_2_2_0", "201901_3_3_0"},
		CreateTime:   2000,
	}
	out, err := Parse(Serialize(l))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out.PartsToMerge) != 3 {
		t.Fatalf("expected 3 parts to merge, got %d", len(out.PartsToMerge))
	}
	for i, p := range l.PartsToMerge {
		if out.PartsToMerge[i] != p {
			t.Fatalf("parts_to_merge[%d] = %q, want %q", i, out.PartsToMerge[i], p)
		}
	}
}

func TestSerializeDeterministic(t *testing.T) {
	l := &LogEntry{Type: AttachPart, NewPartName: "p_1_1_0", CreateTime: 5}
	a := Serialize(l)
	b := Serialize(l)
	if string(a) != string(b) {
		t.Fatalf("serialize is not deterministic")
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("garbage"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseUnknownType(t *testing.T) {
	payload := []byte("version: 1\ntype: FROBNICATE\nnew_part_name: p_1_1_0\ncreate_time: 0\nsource_replica: \n")
	_, err := Parse(payload)
	if err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestParseToleratesTrailingUnknownFields(t *testing.T) {
	payload := []byte("version: 1\ntype: GET_PART\nnew_part_name: p_1_1_0\ncreate_time: 7\nsource_replica: r1\nfuture_field: 42\n")
	l, err := Parse(payload)
	if err != nil {
		t.Fatalf("expected forward-compatible parse, got %v", err)
	}
	if l.NewPartName != "p_1_1_0" {
		t.Fatalf("got %+v", l)
	}
}
