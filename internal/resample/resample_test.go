package resample

import "testing"

func TestDownsample(t *testing.T) {
	r := New(48000, 8000)

	input := make([]int16, 960)
	for i := range input {
		input[i] = int16(i * 100)
	}

	output := r.Downsample(input)
	if len(output) < 150 || len(output) > 170 {
		t.Fatalf("len(output) = %d, want in [150, 170]", len(output))
	}
}

func TestDownsampleVariableSizes(t *testing.T) {
	r := New(48000, 8000)

	input1 := make([]int16, 480)
	for i := range input1 {
		input1[i] = int16(i * 100)
	}
	out1 := r.Downsample(input1)
	if len(out1) < 75 || len(out1) > 85 {
		t.Errorf("len(out1) = %d, want in [75, 85]", len(out1))
	}

	input2 := make([]int16, 240)
	for i := range input2 {
		input2[i] = int16(i * 100)
	}
	out2 := r.Downsample(input2)
	if len(out2) < 35 || len(out2) > 45 {
		t.Errorf("len(out2) = %d, want in [35, 45]", len(out2))
	}
}

func TestUpsample(t *testing.T) {
	r := New(48000, 8000)

	input := make([]int16, 160)
	for i := range input {
		input[i] = int16(i * 100)
	}

	output := r.Upsample(input)
	if len(output) < 900 || len(output) > 1000 {
		t.Fatalf("len(output) = %d, want in [900, 1000]", len(output))
	}
}

func TestEmptyInput(t *testing.T) {
	r := New(48000, 8000)

	if out := r.Downsample(nil); len(out) != 0 {
		t.Errorf("Downsample(nil) = %v, want empty", out)
	}
	if out := r.Upsample(nil); len(out) != 0 {
		t.Errorf("Upsample(nil) = %v, want empty", out)
	}
}

func TestDownsamplePhaseCarriesAcrossChunks(t *testing.T) {
	r := New(48000, 8000)

	input := make([]int16, 960)
	for i := range input {
		input[i] = int16(i % 1000)
	}

	total := 0
	for i := 0; i < 10; i++ {
		total += len(r.Downsample(input))
	}
	// Over many chunks the running total should track the 6:1 ratio closely,
	// not drift, since phase position persists between calls.
	want := 10 * 960 / 6
	if diff := total - want; diff < -10 || diff > 10 {
		t.Errorf("total output samples = %d, want near %d", total, want)
	}
}
