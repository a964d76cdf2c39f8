package compiler_test

import (
	"testing"

	"github.com/aretw0/mobility/internal/compiler"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", -1},
		{"0", 0},
		{"7", 7000},
		{"0:20", 20000},
		{"1:45", 105000},
		{":30", 30000},
		{"2:", 120000},
		{"1.5", 1005},
		// The digits after '.' are raw milliseconds.
		{"0.1", 1},
		{".250", 250},
		{"1:00.001", 60001},
		{"-5", -1},
		{"9223372036854775", 9223372036854775000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := compiler.ParseTime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTime_Invalid(t *testing.T) {
	for _, in := range []string{"abc", "1:2:3", "1.2.3", "1:x"} {
		_, err := compiler.ParseTime(in)
		assert.ErrorIs(t, err, compiler.ErrBadTime, in)
	}
}

func TestParseTime_Overflow(t *testing.T) {
	for _, in := range []string{
		"9223372036854776",   // seconds
		"153722867280913:0",  // minutes
		"153722867280912:60", // minutes plus seconds
		"-9223372036854776",
	} {
		got, err := compiler.ParseTime(in)
		assert.ErrorIs(t, err, compiler.ErrBadTime, in)
		assert.Equal(t, int64(-1), got, in)
	}

	_, err := compiler.NewParser().Parse("move , +9223372036854776, , m, a, b, false")
	var perr *compiler.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Line)
}

func TestParseTimeLiteral(t *testing.T) {
	tests := []struct {
		in         string
		wantAnchor domain.Anchor
		wantMS     int64
	}{
		{"1000", domain.AnchorAbsolute, 1000000},
		{"@0:20", domain.AnchorProcStart, 20000},
		{"+3", domain.AnchorNow, 3000},
		{"^1:00", domain.AnchorPrevious, 60000},
		{"+", domain.AnchorNow, -1},
		{"", domain.AnchorAbsolute, -1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			anchor, ms, err := compiler.ParseTimeLiteral(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAnchor, anchor)
			assert.Equal(t, tt.wantMS, ms)
		})
	}
}
