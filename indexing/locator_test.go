package indexing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeLocatorsRoundTrip(t *testing.T) {
	locs := []Locator{
		{Kind: LocatorInplace, CType: "application/json", Inline: []byte(`{"a":1}`)},
		{Kind: LocatorStored, CType: "image/png", Volume: 3, Offset: 1024, Size: 2048},
	}
	data := EncodeLocators(locs)
	require.Equal(t, headerMagic, data[0])
	require.Equal(t, footerMagic, data[len(data)-1])

	got, err := DecodeLocators(data)
	require.NoError(t, err)
	require.Equal(t, locs, got)
}

func TestDecodeLocatorsRejectsBadMagic(t *testing.T) {
	_, err := DecodeLocators([]byte{0x00, 0x00})
	require.Error(t, err)
}

func TestEncodeDecodeEmptyLocators(t *testing.T) {
	data := EncodeLocators(nil)
	got, err := DecodeLocators(data)
	require.NoError(t, err)
	require.Empty(t, got)
}
