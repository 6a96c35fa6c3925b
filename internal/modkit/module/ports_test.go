package module

import (
	"strings"
	"testing"

	"devflow/internal/modkit/httpkit"
)

type computePort interface{ Windows() []int }

type windows []int

func (w windows) Windows() []int { return w }

type fakeModule struct {
	name  string
	ports any
}

func (m fakeModule) Name() string               { return m.name }
func (m fakeModule) Ports() any                 { return m.ports }
func (m fakeModule) MountRoutes(httpkit.Router) {}

func TestPortsOf(t *testing.T) {
	t.Parallel()

	type bundle struct {
		Compute computePort
		Other   int
	}
	type hidden struct {
		compute computePort
	}

	tests := []struct {
		name  string
		ports any
		ok    bool
	}{
		{"nil", nil, false},
		{"direct", computePort(windows{14, 28}), true},
		{"struct field", bundle{Compute: windows{14}}, true},
		{"pointer to struct", &bundle{Compute: windows{14}}, true},
		{"unexported field", hidden{compute: windows{14}}, false},
		{"unrelated", 42, false},
	}
	for _, tc := range tests {
		_, ok := PortsOf[computePort](fakeModule{name: tc.name, ports: tc.ports})
		if ok != tc.ok {
			t.Fatalf("%s: ok = %v want %v", tc.name, ok, tc.ok)
		}
	}
}

func TestMustPortsOf(t *testing.T) {
	t.Parallel()

	got := MustPortsOf[computePort](fakeModule{name: "metrics", ports: windows{90}})
	if w := got.Windows(); len(w) != 1 || w[0] != 90 {
		t.Fatalf("windows = %v", w)
	}

	defer func() {
		msg, _ := recover().(string)
		if !strings.Contains(msg, "quality") {
			t.Fatalf("panic should name the module, got %q", msg)
		}
	}()
	MustPortsOf[computePort](fakeModule{name: "quality"})
}
