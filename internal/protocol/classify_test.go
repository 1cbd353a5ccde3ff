package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		pageB bool
		want  FrameKind
	}{
		{"radar page A", []byte{0x57, 0x09, 0x00, 0x30, 0x00}, false, FrameRadar},
		{"radar page B not routed", []byte{0x57, 0x09, 0x00, 0x31, 0x00}, false, FrameUnknown},
		{"radar page B routed", []byte{0x57, 0x09, 0x00, 0x31, 0x00}, true, FrameRadar},
		{"light", []byte{0x57, 0x0A, 0x00, 0x03, 0x00, 0x00}, false, FrameLight},
		{"short light still light", []byte{0x57, 0x0A}, false, FrameLight},
		{"ant manufacturer", []byte{0x57, 0x09, 0x00, 0x50, 0x01}, false, FrameANTCommon},
		{"ant product", []byte{0x57, 0x09, 0x00, 0x51}, false, FrameANTCommon},
		{"ant battery", []byte{0x57, 0x09, 0x00, 0x52, 0xFF}, false, FrameANTCommon},
		{"ant page 83 unknown", []byte{0x57, 0x09, 0x00, 0x53}, false, FrameUnknown},
		{"truncated radar", []byte{0x57, 0x09, 0x00}, false, FrameUnknown},
		{"other", []byte{0x01, 0x02}, false, FrameUnknown},
		{"empty", nil, false, FrameUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classifier{PageB: tt.pageB}.Classify(tt.frame))
		})
	}
}

func TestHex(t *testing.T) {
	assert.Equal(t, "57 09 00 30", Hex([]byte{0x57, 0x09, 0x00, 0x30}))
	assert.Equal(t, "0A", Hex([]byte{0x0a}))
	assert.Equal(t, "", Hex(nil))
}

func TestCommandsAreCopies(t *testing.T) {
	cmd := LightInitCommand()
	cmd[0] = 0x00
	assert.Equal(t, []byte{0x57, 0x0A, 0x00}, LightInitCommand())
	assert.Equal(t, []byte{0x57, 0x09, 0x01}, RadarInitCommand())
	assert.Equal(t, []byte{0x57, 0x0A, 0x01}, NextModeCommand())
}

func TestError_IsAndWrap(t *testing.T) {
	err := NewError(KindValidation, "unexpected model (%s)", "999")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrConnection))
	assert.Equal(t, "unexpected model (999)", err.Error())

	wrapped := fmt.Errorf("connect: %w", err)
	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.Same(t, err, Wrap(KindConnection, "ignored", wrapped))
	assert.Equal(t, "unexpected model (999)", Wrap(KindConnection, "ignored", wrapped).Error(), "outer context is not kept")

	cause := errors.New("gatt: operation failed")
	conn := Wrap(KindConnection, "error connecting to bluetooth device", cause)
	require.NotNil(t, conn)
	assert.Equal(t, KindConnection, conn.Kind)
	assert.ErrorIs(t, conn, cause)
	assert.ErrorIs(t, conn, ErrConnection)
	assert.Equal(t, "error connecting to bluetooth device: gatt: operation failed", conn.Error())

	assert.Nil(t, Wrap(KindRadar, "nothing", nil))
	assert.Equal(t, KindLight, KindOf(fmt.Errorf("x: %w", ErrLight)))
	assert.Equal(t, Kind(0), KindOf(cause))
	assert.Equal(t, "radar", KindRadar.String())
}

func TestError_MarshalJSON(t *testing.T) {
	err := Wrap(KindConnection, "could not connect to GATT server", errors.New("timeout"))
	b, jerr := json.Marshal(err)
	require.NoError(t, jerr)
	assert.JSONEq(t, `{"kind":"connection","message":"could not connect to GATT server: timeout"}`, string(b))
}
