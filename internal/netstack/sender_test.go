package netstack

import "testing"

func TestTCPSenderSynOnFirstFillWindow(t *testing.T) {
	s := NewTCPSender(1000, 1000, WrappingInt32(5))
	s.window = 1
	s.FillWindow()

	segs := s.SegmentsOut()
	if len(segs) != 1 || !segs[0].Header.Syn {
		t.Fatalf("expected a single bare SYN segment, got %+v", segs)
	}
	if segs[0].Header.Seqno != WrappingInt32(5) {
		t.Fatalf("SYN seqno = %v, want isn", segs[0].Header.Seqno)
	}
	if s.NextSeqnoAbsolute() != 1 {
		t.Fatalf("next_seqno_absolute = %d, want 1", s.NextSeqnoAbsolute())
	}
}

func TestTCPSenderDataAfterSyn(t *testing.T) {
	s := NewTCPSender(1000, 1000, WrappingInt32(0))
	s.window = 10
	s.FillWindow()
	s.SegmentsOut()

	// SYN is acked; window opens for data.
	s.AckReceived(WrappingInt32(1), 10)
	s.SegmentsOut()

	s.stream.Write([]byte("hi"))
	s.FillWindow()
	segs := s.SegmentsOut()
	if len(segs) != 1 || segs[0].Header.Syn {
		t.Fatalf("expected one non-SYN data segment, got %+v", segs)
	}
	if string(segs[0].Payload) != "hi" {
		t.Fatalf("payload = %q, want hi", segs[0].Payload)
	}
}

func TestTCPSenderFinOnEof(t *testing.T) {
	s := NewTCPSender(1000, 1000, WrappingInt32(0))
	s.window = 100
	s.FillWindow()
	s.SegmentsOut()
	s.AckReceived(WrappingInt32(1), 100)
	s.SegmentsOut()

	s.stream.Write([]byte("bye"))
	s.stream.EndInput()
	s.FillWindow()
	segs := s.SegmentsOut()
	if len(segs) != 1 || !segs[0].Header.Fin {
		t.Fatalf("expected a FIN-bearing segment, got %+v", segs)
	}
	if !s.finSent {
		t.Fatalf("finSent should be latched once FIN is sent")
	}
}

func TestTCPSenderZeroWindowProbe(t *testing.T) {
	s := NewTCPSender(1000, 1000, WrappingInt32(0))
	s.window = 100
	s.FillWindow()
	s.SegmentsOut()
	s.AckReceived(WrappingInt32(1), 0) // peer now advertises a zero window

	s.stream.Write([]byte("x"))
	s.FillWindow()
	segs := s.SegmentsOut()
	if len(segs) != 1 || len(segs[0].Payload) != 1 {
		t.Fatalf("expected a single one-byte probe segment, got %+v", segs)
	}
}

func TestTCPSenderRetransmissionBackoff(t *testing.T) {
	s := NewTCPSender(1000, 50, WrappingInt32(0))
	s.window = 10
	s.FillWindow()
	s.SegmentsOut()

	s.Tick(49)
	if s.HasSegmentsOut() {
		t.Fatalf("must not retransmit before RTO elapses")
	}

	s.Tick(1)
	if !s.HasSegmentsOut() {
		t.Fatalf("expected a retransmission once RTO elapses")
	}
	s.SegmentsOut()
	if s.ConsecutiveRetransmissions() != 1 {
		t.Fatalf("consecutive_retransmissions = %d, want 1", s.ConsecutiveRetransmissions())
	}
	if s.currentRTO != 100 {
		t.Fatalf("currentRTO after one backoff = %d, want 100 (doubled)", s.currentRTO)
	}

	s.Tick(100)
	if s.ConsecutiveRetransmissions() != 2 {
		t.Fatalf("consecutive_retransmissions = %d, want 2", s.ConsecutiveRetransmissions())
	}
	if s.currentRTO != 200 {
		t.Fatalf("currentRTO after two backoffs = %d, want 200", s.currentRTO)
	}
}

func TestTCPSenderAckResetsBackoffAndCounter(t *testing.T) {
	s := NewTCPSender(1000, 50, WrappingInt32(0))
	s.window = 10
	s.FillWindow()
	s.SegmentsOut()
	s.Tick(50)
	s.SegmentsOut()
	if s.currentRTO != 100 {
		t.Fatalf("expected backoff before ack")
	}

	s.AckReceived(WrappingInt32(1), 10)
	if s.currentRTO != 50 {
		t.Fatalf("ack with new progress should reset currentRTO to initial, got %d", s.currentRTO)
	}
	if s.ConsecutiveRetransmissions() != 0 {
		t.Fatalf("ack with new progress should reset the retransmission counter")
	}
}
