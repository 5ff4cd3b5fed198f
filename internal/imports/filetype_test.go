package imports

import (
	"errors"
	"testing"
)

func TestCheckFileType(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

	tests := []struct {
		name     string
		fileName string
		data     []byte
		wantErr  bool
	}{
		{
			name:     "comma separated csv",
			fileName: "codes.csv",
			data:     []byte("code,condition_name\nE11.9,Type 2 diabetes\n"),
			wantErr:  false,
		},
		{
			// A one-column CSV has no commas to sniff; the extension
			// fallback admits it.
			name:     "single column csv",
			fileName: "codes.csv",
			data:     []byte("code\nE11.9\nI10\n"),
			wantErr:  false,
		},
		{
			name:     "json object",
			fileName: "drug.json",
			data:     []byte(`{"generic_name": "Metformin"}`),
			wantErr:  false,
		},
		{
			name:     "json array",
			fileName: "drugs.json",
			data:     []byte(`[{"generic_name": "Metformin"}]`),
			wantErr:  false,
		},
		{
			name:     "png wearing a csv extension",
			fileName: "codes.csv",
			data:     pngHeader,
			wantErr:  true,
		},
		{
			name:     "arbitrary binary",
			fileName: "data.xlsx",
			data:     []byte{0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE},
			wantErr:  true,
		},
		{
			name:     "plain text with disallowed extension",
			fileName: "notes.txt",
			data:     []byte("just some notes\nnothing tabular\n"),
			wantErr:  true,
		},
		{
			name:     "empty file",
			fileName: "empty.csv",
			data:     nil,
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFileType(tt.fileName, tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFileType) {
					t.Errorf("err = %v, want ErrInvalidFileType", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
