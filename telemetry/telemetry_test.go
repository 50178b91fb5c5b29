package telemetry

import (
	"bytes"
	"context"
	"log"
	"math"
	"os"
	"strings"
	"testing"
	"time"
)

func TestFailuresAreOneShot(t *testing.T) {
	tel := New()
	tel.Fail(StructuralCycle, 0)
	tel.Fail(StructuralCycle, 0)
	tel.Fail(Underrun, 1)

	got := tel.Poll()
	if want := 2; len(got) != want {
		t.Fatalf("want %d failures, got %d", want, len(got))
	}
	if want := StructuralCycle; got[0].Kind != want {
		t.Fatalf("want %s, got %s", want, got[0].Kind)
	}
	if len(tel.Poll()) != 0 {
		t.Fatal("failures should be drained")
	}

	tel.Fail(StructuralCycle, 0)
	if len(tel.Poll()) != 0 {
		t.Fatal("unacknowledged kind reported twice")
	}
	tel.Ack(StructuralCycle)
	tel.Fail(StructuralCycle, 0)
	if want, got := 1, len(tel.Poll()); want != got {
		t.Fatalf("want %d failure after ack, got %d", want, got)
	}
}

func TestCounters(t *testing.T) {
	tel := New()
	tel.Fail(Underrun, 0)
	tel.Fail(Overrun, 0)
	tel.Fail(Xrun, 0)
	tel.Fail(DroppedEvents, 5)
	tel.Block(time.Now(), 2*time.Millisecond, 256, 48000)
	tel.Block(time.Now(), time.Millisecond, 128, 48000)

	st := tel.Snapshot()
	if want, got := uint64(3), st.Xruns; want != got {
		t.Errorf("want %d xruns, got %d", want, got)
	}
	if st.Underruns != 1 || st.Overruns != 1 {
		t.Errorf("want one underrun and overrun, got %+v", st)
	}
	if want, got := uint64(5), st.Dropped; want != got {
		t.Errorf("want %d dropped, got %d", want, got)
	}
	if want, got := uint64(2), st.Blocks; want != got {
		t.Errorf("want %d blocks, got %d", want, got)
	}
	if want, got := 2*time.Millisecond, st.MaxElapsed; want != got {
		t.Errorf("want max %v, got %v", want, got)
	}
	if want, got := 128, st.LastFrames; want != got {
		t.Errorf("want %d frames, got %d", want, got)
	}
}

func TestLoad(t *testing.T) {
	tel := New()
	// 256 frames at 48kHz is 5.333ms; spending half of it gives 0.5
	budget := 256 * time.Second / 48000
	for i := 0; i < 200; i++ {
		tel.Block(time.Now(), budget/2, 256, 48000)
	}
	tel.Poll()
	if got := tel.Load(); math.Abs(got-0.5) > 0.01 {
		t.Fatalf("want load near 0.5, got %v", got)
	}
}

func TestRun(t *testing.T) {
	var logged bytes.Buffer
	log.SetOutput(&logged)
	defer log.SetOutput(os.Stderr)

	tel := New()
	ctx, cancel := context.WithCancel(context.Background())
	reports := make(chan Failure, 1)
	done := make(chan struct{})
	go func() {
		tel.Run(ctx, func(f Failure) { reports <- f })
		close(done)
	}()
	tel.Fail(Panic, 0)
	select {
	case f := <-reports:
		if f.Kind != Panic {
			t.Fatalf("want %s, got %s", Panic, f.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no failure reported")
	}
	cancel()
	<-done
	if want, got := 1, strings.Count(logged.String(), "panic in audio callback"); want != got {
		t.Fatalf("want failure logged %d time, got %d: %q", want, got, logged.String())
	}
}

func TestParseKind(t *testing.T) {
	for k := Xrun; k < numKinds; k++ {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != k {
			t.Fatalf("want %v, got %v", k, got)
		}
	}
	if _, err := ParseKind("meltdown"); err == nil {
		t.Fatal("want error for unknown kind")
	}
}
