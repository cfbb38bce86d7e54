package notify

import (
	"testing"
)

func TestFromValue(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		ok    bool
		want  Notification
	}{
		{"reload", `{"type":"reload"}`, true, Notification{Type: TypeReload}},
		{"html diff", `{"type":"diff","resource":"html","path":"/about/"}`, true,
			Notification{Type: TypeDiff, Resource: ResourceHTML, Path: "/about/"}},
		{"empty path", `{"type":"diff","resource":"css","path":""}`, true,
			Notification{Type: TypeDiff, Resource: ResourceCSS}},
		{"non-string path", `{"type":"diff","resource":"css","path":7}`, true,
			Notification{Type: TypeDiff, Resource: ResourceCSS}},
		{"unknown type kept", `{"type":"ping"}`, true, Notification{Type: "ping"}},
		{"array", `[1,2]`, false, Notification{}},
		{"string", `"reload"`, false, Notification{}},
		{"null", `null`, false, Notification{}},
		{"numeric type", `{"type":1}`, false, Notification{}},
		{"missing type", `{"resource":"html"}`, false, Notification{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Decode([]byte(tc.frame))
			if err != nil {
				t.Fatal(err)
			}
			got, ok := FromValue(v)
			if ok != tc.ok {
				t.Fatalf("ok: got %v, want %v", ok, tc.ok)
			}
			if got != tc.want {
				t.Errorf("notification: got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte(`{"type":`)); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}

func TestEncode_MatchesServerShape(t *testing.T) {
	data, err := Encode(Notification{Type: TypeDiff, Resource: ResourceHTML, Path: "/"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"diff","resource":"html","path":"/"}`
	if string(data) != want {
		t.Errorf("Encode: got %s, want %s", data, want)
	}
}
