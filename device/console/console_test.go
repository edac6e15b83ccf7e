package console

import (
	"bytes"
	"testing"
)

func TestWriteForwardsToSink(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)

	n, err := c.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("expected a full write; got n=%d err=%v", n, err)
	}
	c.WriteString(" world")

	if got := buf.String(); got != "hello world" {
		t.Fatalf("unexpected console output: %q", got)
	}
}

func TestWriteWithNilSink(t *testing.T) {
	c := New(nil)

	// Output is discarded but the write must still report success.
	n, err := c.Write([]byte("dropped"))
	if err != nil || n != 7 {
		t.Fatalf("expected the write to be swallowed; got n=%d err=%v", n, err)
	}
}
