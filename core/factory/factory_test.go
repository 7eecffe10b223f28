package factory

import (
	"strings"
	"testing"
	"time"
)

type sink struct {
	URL   string
	Batch int
}

type sinkConf struct {
	URL     string        `json:"url"`
	Batch   int           `json:"batch"`
	Timeout time.Duration `json:"timeout"`
}

func newSink(conf map[string]any) (*sink, error) {
	var c sinkConf
	if err := Decode(conf, &c); err != nil {
		return nil, err
	}
	return &sink{URL: c.URL, Batch: c.Batch}, nil
}

func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry[*sink]()
	if err := reg.Register("influx", newSink); err != nil {
		t.Fatalf("register: %v", err)
	}
	inst, err := reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{"url": "http://influx:8086", "batch": 3}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.URL != "http://influx:8086" || inst.Batch != 3 {
		t.Fatalf("unexpected sink %+v", inst)
	}
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry[*sink]()
	if err := reg.Register("nop", newSink); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("nop", newSink); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.Register("x", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
	if err := reg.Register("", newSink); err == nil {
		t.Fatal("expected empty name error")
	}
	_, err := reg.Create(ModuleConfig{Type: "prom"})
	if err == nil || !strings.Contains(err.Error(), "known: [nop]") {
		t.Fatalf("expected unknown type error listing types, got %v", err)
	}
	_, err = reg.Create(ModuleConfig{Type: "nop", Conf: map[string]any{"urll": "typo"}})
	if err == nil || !strings.HasPrefix(err.Error(), "nop: ") {
		t.Fatalf("expected unused key error prefixed with type, got %v", err)
	}
}

func TestDecode_WeakStrings(t *testing.T) {
	var c sinkConf
	if err := Decode(map[string]any{"batch": "25", "timeout": "2s"}, &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Batch != 25 || c.Timeout != 2*time.Second {
		t.Fatalf("unexpected conf %+v", c)
	}
}

func TestRegistry_Types(t *testing.T) {
	reg := NewRegistry[int]()
	for _, n := range []string{"prometheus", "influx", "nop"} {
		if err := reg.Register(n, func(map[string]any) (int, error) { return 0, nil }); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}
	got := strings.Join(reg.Types(), ",")
	if got != "influx,nop,prometheus" {
		t.Fatalf("unexpected types %s", got)
	}
}
