package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// responseFrame builds an agent response for cmd with the given response
// code and data.
func responseFrame(cmd Command, code byte, data []byte) []byte {
	payload := append([]byte{code}, data...)
	return EncodePacket(cmd|ResponseBit, payload)
}

func TestEncodePacketLayout(t *testing.T) {
	b := EncodePacket(CmdRun, []byte{0xAA, 0xBB})
	require.Len(t, b, 8)

	assert.Equal(t, byte(CmdRun), b[0])
	assert.Equal(t, 8, int(b[1])|int(b[2])<<8|int(b[3])<<16)
	assert.Equal(t, []byte{0xAA, 0xBB}, b[4:6])
	assert.Equal(t, Checksum16(b[:6]), Uint16At(b, 6))
}

func TestDecoderRoundTrip(t *testing.T) {
	payload := []byte{ResponseOK, 0x01, 0x02, 0x03}
	frame := EncodePacket(CmdReadStatus|ResponseBit, payload)

	var d Decoder
	resps, err := d.Feed(frame)
	require.NoError(t, err)
	require.Len(t, resps, 1)

	assert.Equal(t, CmdReadStatus, resps[0].Cmd)
	assert.Equal(t, byte(ResponseOK), resps[0].ResponseCode)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, resps[0].Data)
	assert.True(t, resps[0].OK())
}

func TestDecoderChunkedDelivery(t *testing.T) {
	frame := responseFrame(CmdReadConsole, ResponseOK, []byte("hello"))

	var d Decoder
	for i := 0; i < len(frame)-1; i++ {
		resps, err := d.Feed(frame[i : i+1])
		require.NoError(t, err)
		require.Empty(t, resps, "frame complete after %d of %d bytes", i+1, len(frame))
	}
	resps, err := d.Feed(frame[len(frame)-1:])
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, []byte("hello"), resps[0].Data)
}

func TestDecoderMultipleFramesInOneChunk(t *testing.T) {
	chunk := append(responseFrame(CmdRun, ResponseOK, nil),
		responseFrame(CmdStop, ResponseError, nil)...)

	var d Decoder
	resps, err := d.Feed(chunk)
	require.NoError(t, err)
	require.Len(t, resps, 2)
	assert.Equal(t, CmdRun, resps[0].Cmd)
	assert.Equal(t, CmdStop, resps[1].Cmd)
	assert.False(t, resps[1].OK())
}

func TestDecoderDropsBadChecksum(t *testing.T) {
	bad := responseFrame(CmdRun, ResponseOK, []byte{0x01})
	bad[4] ^= 0xFF // corrupt the response code, CRC no longer matches

	var d Decoder
	resps, err := d.Feed(bad)
	require.NoError(t, err)
	assert.Empty(t, resps)

	// The stream recovers on the next good frame.
	resps, err = d.Feed(responseFrame(CmdStop, ResponseOK, nil))
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, CmdStop, resps[0].Cmd)
}

func TestDecoderRejectsInvalidLength(t *testing.T) {
	var d Decoder
	_, err := d.Feed([]byte{byte(CmdRun), 0x01, 0x00, 0x00})
	assert.Error(t, err)

	// Reset leaves the decoder usable.
	resps, err := d.Feed(responseFrame(CmdRun, ResponseOK, nil))
	require.NoError(t, err)
	assert.Len(t, resps, 1)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "READ_STATUS", CmdReadStatus.String())
	assert.Equal(t, "READ_STATUS", (CmdReadStatus | ResponseBit).String())
	assert.Equal(t, "UNKNOWN", Command(0x7F).String())
}
