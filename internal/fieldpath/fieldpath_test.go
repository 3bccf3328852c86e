package fieldpath

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestGet_Nested(t *testing.T) {
	data := decode(t, `{"a":{"b":{"c":"deep"}}}`)
	if got := Get(data, "a.b.c"); got != "deep" {
		t.Errorf("Get(a.b.c) = %v, want deep", got)
	}
}

func TestGet_MissingSegment(t *testing.T) {
	data := decode(t, `{"a":{"b":1}}`)
	if got := Get(data, "a.x.y"); got != nil {
		t.Errorf("Get(a.x.y) = %v, want nil", got)
	}
}

func TestGet_NonContainerIntermediate(t *testing.T) {
	data := decode(t, `{"a":1}`)
	if got := Get(data, "a.b"); got != nil {
		t.Errorf("Get(a.b) = %v, want nil", got)
	}
}

func TestGet_EmptyPath(t *testing.T) {
	data := decode(t, `{"a":1}`)
	if got := Get(data, ""); got != nil {
		t.Errorf("Get(\"\") = %v, want nil", got)
	}
}

func TestGet_FalsyValuesReturned(t *testing.T) {
	data := decode(t, `{"flag":false,"zero":0,"empty":""}`)
	if got := Get(data, "flag"); got != false {
		t.Errorf("Get(flag) = %v, want false", got)
	}
	if got := Get(data, "zero"); got != float64(0) {
		t.Errorf("Get(zero) = %v, want 0", got)
	}
	if got := Get(data, "empty"); got != "" {
		t.Errorf("Get(empty) = %v, want empty string", got)
	}
}

func TestGet_NumericSegmentAgainstList(t *testing.T) {
	data := decode(t, `{"items":[{"v":1}]}`)
	if got := Get(data, "items.0.v"); got != nil {
		t.Errorf("Get(items.0.v) = %v, want nil (no array indexing)", got)
	}
}
