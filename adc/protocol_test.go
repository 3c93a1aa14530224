package adc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateCRC(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{name: "empty data", data: []byte{}, expected: 0},
		{name: "ping-shaped packet without CRC", data: []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x01}, expected: 0x4E19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, updateCRC(0, tt.data))
		})
	}
}

func TestStuffAndDestuffParamsRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "no stuffing needed", input: []byte{0x01, 0x02, 0x03}},
		{name: "header pattern in body", input: []byte{0xFF, 0xFF, 0xFD, 0x01}},
		{name: "header pattern at end", input: []byte{0x01, 0xFF, 0xFF, 0xFD}},
		{name: "empty", input: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stuffed := stuffParams(tt.input)
			got := destuffParams(stuffed)
			assert.Equal(t, tt.input, got)
		})
	}
}

func TestStuffParamsInsertsEscapeByte(t *testing.T) {
	stuffed := stuffParams([]byte{0xFF, 0xFF, 0xFD})
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFD, 0xFD}, stuffed)
}

func TestFindPacketStart(t *testing.T) {
	assert.Equal(t, -1, findPacketStart([]byte{0x01, 0x02}))
	assert.Equal(t, 0, findPacketStart([]byte{0xFF, 0xFF, 0xFD, 0x00}))
	assert.Equal(t, 2, findPacketStart([]byte{0x00, 0x00, 0xFF, 0xFF, 0xFD}))
}

func TestBuildAndParsePacketRoundTrip(t *testing.T) {
	idx := odIndex{Index: 0x6040, Subindex: 0x00}
	payload := []byte{0x0F, 0x00}

	tx := buildPacket(1, instWrite, idx, payload)

	require.True(t, len(tx) >= 11)
	assert.Equal(t, byte(0xFF), tx[0])
	assert.Equal(t, byte(0xFF), tx[1])
	assert.Equal(t, byte(0xFD), tx[2])
	assert.Equal(t, byte(1), tx[4])

	// Simulate a well-formed status response for this request: no error,
	// params echo the index/subindex prefix plus the two payload bytes.
	body := []byte{byte(idx.Index & 0xFF), byte(idx.Index >> 8), idx.Subindex}
	body = append(body, payload...)
	resp := []byte{pktHeader1, pktHeader2, pktHeader3, pktReserved, 1}
	stuffed := stuffParams(body)
	length := 1 + 1 + len(stuffed) + 2
	resp = append(resp, byte(length&0xFF), byte((length>>8)&0xFF))
	resp = append(resp, 0x55, 0x00) // status instruction, error code 0
	resp = append(resp, stuffed...)
	crc := updateCRC(0, resp)
	resp = append(resp, byte(crc&0xFF), byte(crc>>8))

	id, errCode, params, err := parsePacket(resp)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), id)
	assert.Equal(t, uint8(0), errCode)
	assert.Equal(t, body, params)
}

func TestParsePacketRejectsShortPacket(t *testing.T) {
	_, _, _, err := parsePacket([]byte{0xFF, 0xFF, 0xFD})
	assert.Error(t, err)
}

func TestParsePacketRejectsBadHeader(t *testing.T) {
	pkt := make([]byte, 11)
	pkt[0], pkt[1], pkt[2] = 0x00, 0x00, 0x00
	_, _, _, err := parsePacket(pkt)
	assert.Error(t, err)
}

func TestParsePacketRejectsBadCRC(t *testing.T) {
	idx := odIndex{Index: 0x6041, Subindex: 0x00}
	tx := buildPacket(1, instRead, idx, []byte{4})
	tx[len(tx)-1] ^= 0xFF
	_, _, _, err := parsePacket(tx)
	assert.Error(t, err)
}

func TestODIndexString(t *testing.T) {
	assert.Equal(t, "0X6040/00", odIndex{Index: 0x6040, Subindex: 0x00}.String())
}
