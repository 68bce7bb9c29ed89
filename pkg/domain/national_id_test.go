package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "skillpass/pkg/domain-errors"
)

// TestParseNationalID_Invariants validates the format invariants enforced at
// trust boundaries: 16 numeric digits, known province code. These checks gate
// the verification pipeline's FORMAT_CHECK stage.
func TestParseNationalID_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid West Java NIK", input: "3201010101010001", wantErr: false},
		{name: "valid Aceh NIK", input: "1101014501990002", wantErr: false},
		{name: "empty", input: "", wantErr: true},
		{name: "too short", input: "320101010101001", wantErr: true},
		{name: "too long", input: "32010101010100011", wantErr: true},
		{name: "non-numeric", input: "32010101O1010001", wantErr: true},
		{name: "embedded space", input: "3201 10101010001", wantErr: true},
		{name: "unassigned province code", input: "9901010101010001", wantErr: true},
		{name: "zero province code", input: "0001010101010001", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nid, err := ParseNationalID(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.input, nid.String())
			assert.Equal(t, tc.input[:2], nid.ProvinceCode())
		})
	}
}

// FuzzParseNationalID asserts the parser never accepts malformed input:
// anything accepted must round-trip as exactly 16 digits with a known
// province code.
func FuzzParseNationalID(f *testing.F) {
	f.Add("3201010101010001")
	f.Add("")
	f.Add("abcdefghijklmnop")
	f.Add("0000000000000000")

	f.Fuzz(func(t *testing.T, input string) {
		nid, err := ParseNationalID(input)
		if err != nil {
			return
		}
		s := nid.String()
		if len(s) != 16 {
			t.Fatalf("accepted NIK with length %d", len(s))
		}
		for _, r := range s {
			if r < '0' || r > '9' {
				t.Fatalf("accepted non-numeric NIK %q", s)
			}
		}
		if !validProvinceCodes[s[:2]] {
			t.Fatalf("accepted unknown province code %q", s[:2])
		}
	})
}
