package audio

import (
	"context"
	"testing"
	"time"
)

func TestCapture_RecordAfterClose(t *testing.T) {
	// 未初始化上下文的实例与 Close 之后的状态相同
	c := &Capture{sampleRate: 16000, channels: 1, frameSize: 512}
	c.Close()

	buf, err := c.Record(context.Background(), time.Second)
	if err == nil {
		t.Fatal("expected error when recording after Close")
	}
	if buf != nil {
		t.Errorf("expected nil buffer, got %d samples", len(buf.Samples))
	}
}
