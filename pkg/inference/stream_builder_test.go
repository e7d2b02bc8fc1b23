package inference

import (
	"errors"
	"testing"
)

func drain(t *testing.T, s Stream) ([]string, error) {
	t.Helper()
	var out []string
	for {
		text, err := s.Next()
		if err != nil {
			return out, err
		}
		out = append(out, text)
	}
}

func TestStreamBuilder_Done(t *testing.T) {
	sb := NewStreamBuilder(4)
	go func() {
		sb.Add("<svg>")
		sb.Add("")
		sb.Add("</svg>")
		sb.Done()
	}()
	got, err := drain(t, sb.Stream())
	if !errors.Is(err, ErrDone) {
		t.Fatalf("err = %v, want ErrDone", err)
	}
	if len(got) != 2 || got[0] != "<svg>" || got[1] != "</svg>" {
		t.Fatalf("fragments = %q", got)
	}
	if !IsEnd(err) {
		t.Fatal("IsEnd(ErrDone) = false")
	}
}

func TestStreamBuilder_Truncated(t *testing.T) {
	sb := NewStreamBuilder(1)
	go func() {
		sb.Add("partial")
		sb.Truncated()
	}()
	_, err := drain(t, sb.Stream())
	if !errors.Is(err, ErrTruncated) || !IsEnd(err) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

func TestStreamBuilder_Abort(t *testing.T) {
	boom := errors.New("connection reset")
	sb := NewStreamBuilder(1)
	go sb.Abort(boom)
	_, err := drain(t, sb.Stream())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if IsEnd(err) {
		t.Fatal("transport error must not be an end of stream")
	}

	sb = NewStreamBuilder(1)
	sb.Abort(nil)
	if _, err := sb.Stream().Next(); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Abort(nil) err = %v, want ErrInterrupted", err)
	}
}

func TestStreamBuilder_FinishOnce(t *testing.T) {
	sb := NewStreamBuilder(1)
	sb.Done()
	sb.Abort(errors.New("late"))
	if _, err := sb.Stream().Next(); !errors.Is(err, ErrDone) {
		t.Fatalf("err = %v, want ErrDone", err)
	}
}

func TestStreamBuilder_CloseUnblocksProducer(t *testing.T) {
	sb := NewStreamBuilder(1)
	closed := make(chan struct{})
	sb.OnClose(func() { close(closed) })

	s := sb.Stream()
	if err := sb.Add("a"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	addErr := make(chan error, 1)
	go func() { addErr <- sb.Add("b") }()

	s.Close()
	s.Close()
	<-closed
	if err := <-addErr; !errors.Is(err, ErrClosed) {
		t.Fatalf("blocked Add err = %v, want ErrClosed", err)
	}
	if _, err := s.Next(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Next after Close err = %v, want ErrClosed", err)
	}
}
