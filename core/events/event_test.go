package events

import "testing"

type collector struct{ got []string }

func (c *collector) Emit(evt Event) { c.got = append(c.got, evt.EventType()) }

func TestBufferFlushPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(&Record{Type: "a"})
	buf.Emit(&Record{Type: "b"})
	buf.Emit(nil)

	sink := &collector{}
	if n := buf.Flush(sink); n != 2 {
		t.Fatalf("expected 2 flushed events, got %d", n)
	}
	if len(sink.got) != 2 || sink.got[0] != "a" || sink.got[1] != "b" {
		t.Fatalf("unexpected order: %v", sink.got)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("buffer not emptied")
	}
}

func TestBufferResetDiscards(t *testing.T) {
	var buf Buffer
	buf.Emit(&Record{Type: "a"})
	buf.Reset()
	sink := &collector{}
	if n := buf.Flush(sink); n != 0 || len(sink.got) != 0 {
		t.Fatalf("expected nothing after reset, got %d", n)
	}
}

func TestFanoutSkipsNil(t *testing.T) {
	first, second := &collector{}, &collector{}
	Fanout{first, nil, second}.Emit(&Record{Type: "x"})
	if len(first.got) != 1 || len(second.got) != 1 {
		t.Fatalf("fanout did not reach every emitter")
	}
}

func TestRecordKeysSorted(t *testing.T) {
	rec := &Record{Type: "t", Attributes: map[string]string{"b": "2", "a": "1", "c": "3"}}
	keys := rec.Keys()
	if len(keys) != 3 || keys[0] != "a" || keys[2] != "c" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}
