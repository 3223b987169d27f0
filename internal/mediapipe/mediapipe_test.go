package mediapipe

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		payloadType uint8
	}{
		{"PCMU", 0},
		{"PCMA", 8},
	}

	samples := []int16{0, 100, -100, 1000, -1000, 10000, -10000, 30000, -30000}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.payloadType, samples)
			if len(encoded) != len(samples) {
				t.Fatalf("encoded length = %d, want %d", len(encoded), len(samples))
			}
			decoded := Decode(tt.payloadType, encoded)
			if len(decoded) != len(samples) {
				t.Fatalf("decoded length = %d, want %d", len(decoded), len(samples))
			}
			for i, s := range samples {
				diff := int(decoded[i]) - int(s)
				if diff < 0 {
					diff = -diff
				}
				if diff > 1024 {
					t.Errorf("sample %d: decode(encode(%d)) = %d, diff %d exceeds tolerance", i, s, decoded[i], diff)
				}
			}
		})
	}
}

func TestPadWithSilenceUsesCodecSilenceValueNotZero(t *testing.T) {
	short := []int16{100, 200}
	padded := padWithSilence(short, 5, 0)
	if len(padded) != 5 {
		t.Fatalf("len(padded) = %d, want 5", len(padded))
	}
	if padded[0] != 100 || padded[1] != 200 {
		t.Error("padWithSilence must not alter the real leading samples")
	}
	wantFill := int16(0)
	if padded[2] == wantFill {
		t.Error("padWithSilence should not fill with raw PCM zero")
	}
}

func TestPadWithSilenceNoOpWhenLongEnough(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	if got := padWithSilence(samples, 4, 0); len(got) != 4 {
		t.Errorf("len(got) = %d, want 4 (no padding needed)", len(got))
	}
}

func TestEncodeUnknownPayloadTypeFallsBackToPCMU(t *testing.T) {
	want := Encode(0, []int16{1234})
	got := Encode(99, []int16{1234})
	if want[0] != got[0] {
		t.Errorf("unknown payload type did not fall back to PCMU: got %x, want %x", got[0], want[0])
	}
}
