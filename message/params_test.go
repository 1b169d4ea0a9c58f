package message_test

import (
	"testing"

	"github.com/openrobo/openrobo/message"
)

func TestSetGetParamInt(t *testing.T) {
	buf := message.NewBuffer()
	m := message.MakeWriteMessage(buf, "Pose")
	m.SetParamInt("x", 1, 2, 3)

	got, err := m.GetParamInt("x")
	if err != nil {
		t.Fatalf("GetParamInt: %v", err)
	}
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("GetParamInt() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GetParamInt()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSetGetParamDouble(t *testing.T) {
	buf := message.NewBuffer()
	m := message.MakeWriteMessage(buf, "Pose")
	m.SetParamDouble("x", 1.5, -2.25)

	got, err := m.GetParamDouble("x")
	if err != nil {
		t.Fatalf("GetParamDouble: %v", err)
	}
	if len(got) != 2 || got[0] != 1.5 || got[1] != -2.25 {
		t.Errorf("GetParamDouble() = %v, want [1.5 -2.25]", got)
	}
}

func TestSetGetParamBytes(t *testing.T) {
	buf := message.NewBuffer()
	m := message.MakeWriteMessage(buf, "Blob")
	data := []byte{0x00, 0x0f, 0xff, 0x7a}
	m.SetParamBytes("payload", data)

	got, err := m.GetParamBytes("payload")
	if err != nil {
		t.Fatalf("GetParamBytes: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("GetParamBytes() = %x, want %x", got, data)
	}
}

func TestSetGetParamChars(t *testing.T) {
	buf := message.NewBuffer()
	m := message.MakeWriteMessage(buf, "Labels")
	m.SetParamChars("names", 4, []string{"ab", "wxyz", "c"})

	got, err := m.GetParamChars("names")
	if err != nil {
		t.Fatalf("GetParamChars: %v", err)
	}
	want := []string{"ab  ", "wxyz", "c   "}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GetParamChars()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSetGetParamTMatrix(t *testing.T) {
	buf := message.NewBuffer()
	m := message.MakeWriteMessage(buf, "Tool")

	var mat [4][4]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			mat[r][c] = float64(r*4 + c)
		}
	}
	m.SetParamTMatrix("transform", mat)

	got, err := m.GetParamTMatrix("transform")
	if err != nil {
		t.Fatalf("GetParamTMatrix: %v", err)
	}
	if got != mat {
		t.Errorf("GetParamTMatrix() = %v, want %v", got, mat)
	}
}

func TestGetParamWrongTypeTagIsMalformed(t *testing.T) {
	buf := message.NewBuffer()
	m := message.MakeWriteMessage(buf, "Pose")
	m.SetParamInt("x", 1)

	if _, err := m.GetParamDouble("x"); err != message.ErrMalformedParameter {
		t.Errorf("GetParamDouble on an int param: err = %v, want ErrMalformedParameter", err)
	}
}

func TestGetParamMissingIsNotFound(t *testing.T) {
	buf := message.NewBuffer()
	m := message.MakeWriteMessage(buf, "Pose")

	if _, err := m.GetParamInt("missing"); err != message.ErrParamNotFound {
		t.Errorf("err = %v, want ErrParamNotFound", err)
	}
}

func TestEmptyParameterList(t *testing.T) {
	buf := message.NewBuffer()
	m := message.MakeStartMessage(buf, "Grasp")

	// Only #subject is present; no other params set.
	subject, ok := m.Subject()
	if !ok || subject != "Grasp" {
		t.Errorf("Subject() = %q, %v; want Grasp, true", subject, ok)
	}
	if m.HasParam("anything-else") {
		t.Error("did not expect any other parameter")
	}
}

func TestSetParamIntEmptyArray(t *testing.T) {
	buf := message.NewBuffer()
	m := message.MakeWriteMessage(buf, "Pose")
	m.SetParamInt("empty")

	got, err := m.GetParamInt("empty")
	if err != nil {
		t.Fatalf("GetParamInt: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetParamInt() = %v, want empty", got)
	}
}
