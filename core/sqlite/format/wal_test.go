package format

import (
	"encoding/binary"
	"testing"

	serrors "github.com/FocuswithJustin/sqlsalvage/core/errors"
)

func sealedHeader(magic uint32, pageSize uint32) *WalHeader {
	h := &WalHeader{
		Magic:         magic,
		Version:       WalFormatVersion,
		PageSize:      pageSize,
		CheckpointSeq: 0,
		Salt1:         0x11223344,
		Salt2:         0x55667788,
	}
	h.Seal()
	return h
}

func TestWalChecksum(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:], 1)
	binary.LittleEndian.PutUint32(data[4:], 2)
	binary.LittleEndian.PutUint32(data[8:], 3)
	binary.LittleEndian.PutUint32(data[12:], 4)

	s1, s2 := WalChecksum(binary.LittleEndian, data, 0, 0)
	if s1 != 7 || s2 != 14 {
		t.Errorf("WalChecksum() = (%d, %d), want (7, 14)", s1, s2)
	}

	// Same words read with the other order give a different sum
	b1, b2 := WalChecksum(binary.BigEndian, data, 0, 0)
	if b1 == s1 && b2 == s2 {
		t.Error("byte order had no effect on checksum")
	}

	// Chaining over halves equals one pass
	h1, h2 := WalChecksum(binary.LittleEndian, data[:8], 0, 0)
	c1, c2 := WalChecksum(binary.LittleEndian, data[8:], h1, h2)
	if c1 != s1 || c2 != s2 {
		t.Errorf("chained checksum = (%d, %d), want (%d, %d)", c1, c2, s1, s2)
	}
}

func TestDecodeWalHeader(t *testing.T) {
	tests := []struct {
		name     string
		setup    func() []byte
		wantCode serrors.Code
	}{
		{
			name:  "little endian",
			setup: func() []byte { return sealedHeader(WalMagicLE, 4096).Encode() },
		},
		{
			name:  "big endian",
			setup: func() []byte { return sealedHeader(WalMagicBE, 4096).Encode() },
		},
		{
			name:  "max page size",
			setup: func() []byte { return sealedHeader(WalMagicBE, 65536).Encode() },
		},
		{
			name:     "short",
			setup:    func() []byte { return make([]byte, 20) },
			wantCode: serrors.CodeCorrupt,
		},
		{
			name:     "bad magic",
			setup:    func() []byte { return sealedHeader(0x377f0680, 4096).Encode() },
			wantCode: serrors.CodeFormat,
		},
		{
			name: "bad version",
			setup: func() []byte {
				h := sealedHeader(WalMagicLE, 4096)
				h.Version = 3007001
				h.Seal()
				return h.Encode()
			},
			wantCode: serrors.CodeFormat,
		},
		{
			name:     "bad page size",
			setup:    func() []byte { return sealedHeader(WalMagicLE, 1000).Encode() },
			wantCode: serrors.CodeFormat,
		},
		{
			name: "checksum mismatch",
			setup: func() []byte {
				h := sealedHeader(WalMagicLE, 4096)
				h.Checksum2++
				return h.Encode()
			},
			wantCode: serrors.CodeChecksum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := DecodeWalHeader(tt.setup())
			if tt.wantCode != serrors.CodeOK {
				if err == nil {
					t.Fatal("DecodeWalHeader() expected error")
				}
				if got := serrors.CodeOf(err); got != tt.wantCode {
					t.Errorf("code = %v, want %v", got, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeWalHeader() error = %v", err)
			}
			if h.Salt1 != 0x11223344 || h.Salt2 != 0x55667788 {
				t.Errorf("salts = %x/%x", h.Salt1, h.Salt2)
			}
		})
	}
}

func TestWalHeaderByteOrder(t *testing.T) {
	if sealedHeader(WalMagicBE, 4096).ByteOrder() != binary.BigEndian {
		t.Error("WalMagicBE should use big-endian checksums")
	}
	if sealedHeader(WalMagicLE, 4096).ByteOrder() != binary.LittleEndian {
		t.Error("WalMagicLE should use little-endian checksums")
	}
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	f := &FrameHeader{Pgno: 9, Commit: 12, Salt1: 1, Salt2: 2, Checksum1: 3, Checksum2: 4}
	got, err := DecodeFrameHeader(f.Encode())
	if err != nil {
		t.Fatalf("DecodeFrameHeader() error = %v", err)
	}
	if *got != *f {
		t.Errorf("DecodeFrameHeader() = %+v, want %+v", got, f)
	}
	if !got.IsCommit() {
		t.Error("IsCommit() = false, want true")
	}

	if _, err := DecodeFrameHeader(make([]byte, 10)); err == nil {
		t.Error("DecodeFrameHeader() expected error on short input")
	}
}

func TestFrameChecksumCoversHeaderPrefix(t *testing.T) {
	page := make([]byte, 512)
	page[0] = 0xAB

	a := &FrameHeader{Pgno: 1}
	b := &FrameHeader{Pgno: 2}
	a1, a2 := FrameChecksum(binary.BigEndian, a.Encode(), page, 0, 0)
	b1, b2 := FrameChecksum(binary.BigEndian, b.Encode(), page, 0, 0)
	if a1 == b1 && a2 == b2 {
		t.Error("page number is not covered by the frame checksum")
	}

	// Salts and stored checksums are outside the covered prefix
	c := &FrameHeader{Pgno: 1, Salt1: 99, Checksum1: 42}
	c1, c2 := FrameChecksum(binary.BigEndian, c.Encode(), page, 0, 0)
	if c1 != a1 || c2 != a2 {
		t.Error("bytes past offset 8 changed the frame checksum")
	}
}
