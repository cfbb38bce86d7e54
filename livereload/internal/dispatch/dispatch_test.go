package dispatch

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/devlive/livereload/internal/patch"
	"github.com/hazyhaar/devlive/livereload/notify"
)

type fakeApplier struct {
	mu      sync.Mutex
	calls   []string
	htmlErr error
	cssErr  error
}

func (f *fakeApplier) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeApplier) Reload(context.Context) error {
	f.record("reload")
	return nil
}

func (f *fakeApplier) ApplyHTML(_ context.Context, path string) (notify.Action, error) {
	f.record("html " + path)
	if f.htmlErr != nil {
		return notify.ActionReload, f.htmlErr
	}
	return notify.ActionPatchHTML, nil
}

func (f *fakeApplier) ApplyCSS(_ context.Context, path string) (notify.Action, error) {
	f.record("css " + path)
	if f.cssErr != nil {
		return notify.ActionReload, f.cssErr
	}
	return notify.ActionPatchCSS, nil
}

type fixedLocation string

func (l fixedLocation) Location(context.Context) (*url.URL, error) {
	return url.Parse(string(l))
}

func decode(t *testing.T, frame string) any {
	t.Helper()
	v, err := notify.Decode([]byte(frame))
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func newDispatcher(patchMode bool, loc string) (*Dispatcher, *fakeApplier, *[]notify.Outcome) {
	app := &fakeApplier{}
	var outcomes []notify.Outcome
	d := New(Config{
		Applier:   app,
		Locator:   fixedLocation(loc),
		PatchMode: patchMode,
		Emit:      func(_ context.Context, o notify.Outcome) { outcomes = append(outcomes, o) },
		NewID:     func() string { return "id-1" },
		Now:       func() time.Time { return time.UnixMilli(42) },
	})
	return d, app, &outcomes
}

func TestDispatch_Routing(t *testing.T) {
	cases := []struct {
		name      string
		patchMode bool
		location  string
		frame     string
		want      notify.Action
		calls     []string
	}{
		// Scenario A: reload always reloads.
		{"reload", true, "http://localhost:8000/", `{"type":"reload"}`, notify.ActionReload, []string{"reload"}},
		{"reload without patch mode", false, "http://localhost:8000/", `{"type":"reload"}`, notify.ActionReload, []string{"reload"}},
		// Scenario B: diff with patch mode off reloads.
		{"diff patch mode off", false, "http://localhost:8000/", `{"type":"diff","resource":"html","path":"/"}`, notify.ActionReload, []string{"reload"}},
		{"html match", true, "http://localhost:8000/about/", `{"type":"diff","resource":"html","path":"/about/index.html"}`, notify.ActionPatchHTML, []string{"html /about/index.html"}},
		{"html match trailing slash", true, "http://localhost:8000/about", `{"type":"diff","resource":"html","path":"/about/"}`, notify.ActionPatchHTML, []string{"html /about/"}},
		{"html mismatch", true, "http://localhost:8000/about/", `{"type":"diff","resource":"html","path":"/contact/"}`, notify.ActionSkip, nil},
		{"html missing path", true, "http://localhost:8000/", `{"type":"diff","resource":"html"}`, notify.ActionReload, []string{"reload"}},
		{"css no gating", true, "http://localhost:8000/about/", `{"type":"diff","resource":"css","path":"/styles/app.css"}`, notify.ActionPatchCSS, []string{"css /styles/app.css"}},
		{"other resource", true, "http://localhost:8000/", `{"type":"diff","resource":"js","path":"/app.js"}`, notify.ActionReload, []string{"reload"}},
		{"missing resource", true, "http://localhost:8000/", `{"type":"diff","path":"/app.js"}`, notify.ActionReload, []string{"reload"}},
		{"unknown type", true, "http://localhost:8000/", `{"type":"ping"}`, notify.ActionIgnore, nil},
		{"array", true, "http://localhost:8000/", `[{"type":"reload"}]`, notify.ActionIgnore, nil},
		{"numeric type", true, "http://localhost:8000/", `{"type":3}`, notify.ActionIgnore, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, app, outcomes := newDispatcher(tc.patchMode, tc.location)
			got := d.Dispatch(context.Background(), decode(t, tc.frame))
			if got != tc.want {
				t.Errorf("action: got %s, want %s", got, tc.want)
			}
			if len(app.calls) != len(tc.calls) {
				t.Fatalf("calls: got %v, want %v", app.calls, tc.calls)
			}
			for i := range tc.calls {
				if app.calls[i] != tc.calls[i] {
					t.Errorf("call %d: got %q, want %q", i, app.calls[i], tc.calls[i])
				}
			}
			if tc.want == notify.ActionIgnore {
				if len(*outcomes) != 0 {
					t.Errorf("ignored notification emitted %+v", *outcomes)
				}
				return
			}
			if len(*outcomes) != 1 || (*outcomes)[0].Action != tc.want {
				t.Errorf("outcomes: got %+v", *outcomes)
			}
		})
	}
}

func TestDispatch_OutcomeFields(t *testing.T) {
	d, _, outcomes := newDispatcher(true, "http://localhost:8000/about/")
	d.Dispatch(context.Background(), decode(t, `{"type":"diff","resource":"html","path":"/contact/"}`))

	want := notify.Outcome{
		ID:        "id-1",
		Action:    notify.ActionSkip,
		Trigger:   notify.TypeDiff,
		Resource:  notify.ResourceHTML,
		Path:      "/contact/",
		Reason:    "path mismatch",
		Timestamp: 42,
	}
	if len(*outcomes) != 1 || (*outcomes)[0] != want {
		t.Errorf("outcome: got %+v, want %+v", *outcomes, want)
	}
}

func TestDispatch_FallbackReason(t *testing.T) {
	d, app, outcomes := newDispatcher(true, "http://localhost:8000/")
	app.cssErr = &patch.ErrFallback{Reason: patch.ReasonNoStyle}

	if got := d.Dispatch(context.Background(), decode(t, `{"type":"diff","resource":"css","path":"/x.css"}`)); got != notify.ActionReload {
		t.Errorf("action: got %s", got)
	}
	if (*outcomes)[0].Reason != patch.ReasonNoStyle {
		t.Errorf("reason: got %q", (*outcomes)[0].Reason)
	}
}

func TestDispatch_Superseded(t *testing.T) {
	d, app, outcomes := newDispatcher(true, "http://localhost:8000/")
	app.htmlErr = patch.ErrSuperseded

	if got := d.Dispatch(context.Background(), decode(t, `{"type":"diff","resource":"html","path":"/"}`)); got != notify.ActionSkip {
		t.Errorf("action: got %s", got)
	}
	if (*outcomes)[0].Reason != "superseded" {
		t.Errorf("reason: got %q", (*outcomes)[0].Reason)
	}
}
