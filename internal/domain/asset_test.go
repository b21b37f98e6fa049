package domain_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aurumfi/goldvault/internal/domain"
)

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		amount   int64
		decimals int
		want     string
	}{
		{1_500_000, 6, "1.5"},
		{1_000_000, 6, "1"},
		{1, 6, "0.000001"},
		{0, 6, "0"},
		{-2_250_000, 6, "-2.25"},
		{123, 0, "123"},
	}
	for _, tc := range cases {
		got := domain.FormatUnits(big.NewInt(tc.amount), tc.decimals)
		require.Equal(t, tc.want, got, "FormatUnits(%d, %d)", tc.amount, tc.decimals)
	}

	require.Equal(t, "0", domain.FormatUnits(nil, 6))
}

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     int64
	}{
		{"1.5", 6, 1_500_000},
		{"1", 6, 1_000_000},
		{"0.000001", 6, 1},
		{"-2.25", 6, -2_250_000},
		{".5", 6, 500_000},
		{"42", 0, 42},
	}
	for _, tc := range cases {
		got, err := domain.ParseUnits(tc.in, tc.decimals)
		require.NoError(t, err, "ParseUnits(%q, %d)", tc.in, tc.decimals)
		require.Equal(t, tc.want, got.Int64(), "ParseUnits(%q, %d)", tc.in, tc.decimals)
	}
}

func TestParseUnitsRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "1.0000001"} {
		_, err := domain.ParseUnits(in, 6)
		require.Error(t, err, "ParseUnits(%q)", in)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0.125", "999999.999999", "3", "0.000001"} {
		v, err := domain.ParseUnits(s, 6)
		require.NoError(t, err)
		require.Equal(t, s, domain.FormatUnits(v, 6))
	}
}
