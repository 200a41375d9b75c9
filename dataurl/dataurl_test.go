package dataurl

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))

	cases := map[string][]byte{
		"empty":  {},
		"single": {0xff},
		"gif":    []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"),
		"random": func() []byte {
			b := make([]byte, 4097)
			for i := range b {
				b[i] = byte(rnd.IntN(256))
			}
			return b
		}(),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			u := Encode("image/jpeg", data)
			mimeType, out, err := Decode(u)
			if err != nil {
				t.Fatalf("Unexpected error %s", err)
			}
			if expected, actual := "image/jpeg", mimeType; expected != actual {
				t.Errorf("Expected MIME type %q, got %q", expected, actual)
			}
			if !bytes.Equal(data, out) {
				t.Errorf("Decoded payload differs from original (%d vs %d bytes)", len(data), len(out))
			}
		})
	}
}

func TestEncodeFormat(t *testing.T) {
	if expected, actual := "data:image/png;base64,aGk=", Encode("image/png", []byte("hi")); expected != actual {
		t.Errorf("Expected %q, got %q", expected, actual)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"image/png;base64,aGk=",
		"data:image/png,aGk=",
		"data:;base64,aGk=",
		"data:image/png;base64,!!!",
	} {
		if _, _, err := Decode(s); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q): expected ErrMalformed, got %v", s, err)
		}
	}
}
