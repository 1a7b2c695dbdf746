package format

import (
	"bytes"
	"errors"
	"testing"

	serrors "github.com/FocuswithJustin/sqlsalvage/core/errors"
)

func TestDecodeDatabaseHeader(t *testing.T) {
	tests := []struct {
		name    string
		setup   func() []byte
		wantErr bool
	}{
		{
			name: "valid header",
			setup: func() []byte {
				return NewDatabaseHeader(4096, 3).Serialize()
			},
		},
		{
			name: "invalid magic still decodes",
			setup: func() []byte {
				data := NewDatabaseHeader(4096, 3).Serialize()
				copy(data, "Invalid format 3\x00")
				return data
			},
		},
		{
			name: "too short",
			setup: func() []byte {
				return make([]byte, 50)
			},
			wantErr: true,
		},
		{
			name: "max page size (65536)",
			setup: func() []byte {
				return NewDatabaseHeader(65536, 1).Serialize()
			},
		},
		{
			name: "min page size (512)",
			setup: func() []byte {
				return NewDatabaseHeader(512, 1).Serialize()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.setup()
			header, err := DecodeDatabaseHeader(data)

			if tt.wantErr {
				if err == nil {
					t.Errorf("DecodeDatabaseHeader() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDatabaseHeader() unexpected error: %v", err)
			}

			// Raw fields survive a round trip, damaged or not
			if !bytes.Equal(data, header.Serialize()) {
				t.Errorf("Serialize() didn't produce same data")
			}
		})
	}
}

func TestCheckMagic(t *testing.T) {
	h := NewDatabaseHeader(4096, 1)
	if err := h.CheckMagic(); err != nil {
		t.Errorf("CheckMagic() error = %v", err)
	}

	copy(h.Magic[:], "SQLite format 2\x00")
	err := h.CheckMagic()
	if err == nil {
		t.Fatal("CheckMagic() expected error")
	}
	if got := serrors.CodeOf(err); got != serrors.CodeNotADatabase {
		t.Errorf("code = %v, want %v", got, serrors.CodeNotADatabase)
	}
}

func TestDecodePageSize(t *testing.T) {
	tests := []struct {
		raw     uint16
		want    int
		wantErr bool
	}{
		{raw: 1, want: 65536},
		{raw: 512, want: 512},
		{raw: 4096, want: 4096},
		{raw: 32768, want: 32768},
		{raw: 0, wantErr: true},
		{raw: 3, wantErr: true},
		{raw: 256, wantErr: true},
		{raw: 4000, wantErr: true},
		{raw: 65535, wantErr: true},
	}

	for _, tt := range tests {
		got, err := DecodePageSize(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("DecodePageSize(%d) expected error, got %d", tt.raw, got)
			} else if !errors.Is(err, serrors.ErrCorrupt) {
				t.Errorf("DecodePageSize(%d) error %v is not ErrCorrupt", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("DecodePageSize(%d) unexpected error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DecodePageSize(%d) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestReservedBytesValue(t *testing.T) {
	tests := []struct {
		name     string
		pageSize int
		reserved uint8
		wantErr  bool
	}{
		{"none", 4096, 0, false},
		{"typical", 4096, 32, false},
		{"max byte on large page", 4096, 255, false},
		{"exactly minimum usable", 512, 32, false},
		{"below minimum usable", 512, 33, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewDatabaseHeader(tt.pageSize, 1)
			h.ReservedSpace = tt.reserved

			got, err := h.ReservedBytesValue(tt.pageSize)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReservedBytesValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != int(tt.reserved) {
				t.Errorf("ReservedBytesValue() = %d, want %d", got, tt.reserved)
			}
		})
	}
}

func TestDeclaredPageCount(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		h := NewDatabaseHeader(4096, 12)
		got, err := h.DeclaredPageCount()
		if err != nil {
			t.Fatalf("DeclaredPageCount() error = %v", err)
		}
		if got != 12 {
			t.Errorf("DeclaredPageCount() = %d, want 12", got)
		}
	})

	t.Run("stale", func(t *testing.T) {
		h := NewDatabaseHeader(4096, 12)
		h.FileChangeCounter = 5
		if _, err := h.DeclaredPageCount(); err == nil {
			t.Error("DeclaredPageCount() expected error for stale counter")
		}
	})

	t.Run("zero", func(t *testing.T) {
		h := NewDatabaseHeader(4096, 0)
		if _, err := h.DeclaredPageCount(); err == nil {
			t.Error("DeclaredPageCount() expected error for zero size")
		}
	})
}

func TestDatabaseHeader_Validate(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*DatabaseHeader)
		want  int
	}{
		{"valid header", func(h *DatabaseHeader) {}, 0},
		{"invalid file format write version", func(h *DatabaseHeader) { h.FileFormatWrite = 99 }, 1},
		{"invalid max payload fraction", func(h *DatabaseHeader) { h.MaxPayloadFrac = 100 }, 1},
		{"invalid schema format", func(h *DatabaseHeader) { h.SchemaFormat = 99 }, 1},
		{"invalid text encoding", func(h *DatabaseHeader) { h.TextEncoding = 7 }, 1},
		{"fresh database encoding", func(h *DatabaseHeader) { h.TextEncoding = 0; h.SchemaFormat = 0 }, 0},
		{"several problems", func(h *DatabaseHeader) {
			h.FileFormatRead = 0
			h.MinPayloadFrac = 1
			h.LeafPayloadFrac = 1
		}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewDatabaseHeader(4096, 1)
			tt.setup(h)
			if got := h.Validate(); len(got) != tt.want {
				t.Errorf("Validate() = %v, want %d problems", got, tt.want)
			}
		})
	}
}

func TestIsValidPageSize(t *testing.T) {
	for _, size := range []int{512, 1024, 2048, 4096, 8192, 16384, 32768, 65536} {
		if !IsValidPageSize(size) {
			t.Errorf("IsValidPageSize(%d) = false, want true", size)
		}
	}
	for _, size := range []int{0, 1, 3, 256, 511, 513, 4000, 131072} {
		if IsValidPageSize(size) {
			t.Errorf("IsValidPageSize(%d) = true, want false", size)
		}
	}
}
