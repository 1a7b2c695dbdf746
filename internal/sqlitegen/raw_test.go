package sqlitegen

import (
	"testing"

	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
)

func TestDatabase(t *testing.T) {
	data := Database(1024, 3)
	if len(data) != 3*1024 {
		t.Fatalf("len = %d, want %d", len(data), 3*1024)
	}

	h, err := format.DecodeDatabaseHeader(data)
	if err != nil {
		t.Fatalf("DecodeDatabaseHeader() error = %v", err)
	}
	if err := h.CheckMagic(); err != nil {
		t.Errorf("CheckMagic() error = %v", err)
	}
	if got, _ := h.DeclaredPageCount(); got != 3 {
		t.Errorf("DeclaredPageCount() = %d, want 3", got)
	}
	if data[1024] != 2 || data[2*1024+5] != 3 {
		t.Error("pages 2 and 3 not filled with their page number")
	}
}

func TestWalBuilderChecksums(t *testing.T) {
	for _, bigEndian := range []bool{false, true} {
		w := NewWal(512, bigEndian).
			Frame(1, 0, FillPage(512, 0xAA)).
			Frame(2, 2, FillPage(512, 0xBB))
		data := w.Bytes()

		hdr, err := format.DecodeWalHeader(data)
		if err != nil {
			t.Fatalf("bigEndian=%v: DecodeWalHeader() error = %v", bigEndian, err)
		}

		s1, s2 := hdr.Checksum1, hdr.Checksum2
		for i := 0; i < w.Frames(); i++ {
			off := w.FrameOffset(i)
			fh, err := format.DecodeFrameHeader(data[off:])
			if err != nil {
				t.Fatalf("DecodeFrameHeader(%d) error = %v", i, err)
			}
			page := data[off+format.WalFrameHeaderSize : off+format.WalFrameHeaderSize+512]
			s1, s2 = format.FrameChecksum(hdr.ByteOrder(), data[off:off+format.WalFrameHeaderSize], page, s1, s2)
			if fh.Checksum1 != s1 || fh.Checksum2 != s2 {
				t.Errorf("bigEndian=%v: frame %d checksum mismatch", bigEndian, i)
			}
			if fh.Salt1 != DefaultSalt1 || fh.Salt2 != DefaultSalt2 {
				t.Errorf("frame %d salts = %x/%x", i, fh.Salt1, fh.Salt2)
			}
		}
	}
}

func TestWalBuilderPadsPages(t *testing.T) {
	w := NewWal(512, false).Frame(1, 1, []byte{1, 2, 3})
	data := w.Bytes()
	want := format.WalHeaderSize + format.WalFrameHeaderSize + 512
	if len(data) != want {
		t.Errorf("len = %d, want %d", len(data), want)
	}
}
