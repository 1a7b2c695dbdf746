package sqlitegen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
)

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "real.db")
	fx, err := Create(context.Background(), path, Options{PageSize: 1024, Rows: 50})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if fx.WalPath != "" {
		t.Errorf("WalPath = %q, want none", fx.WalPath)
	}

	data, err := os.ReadFile(fx.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(data) == 0 || len(data)%1024 != 0 {
		t.Fatalf("file size %d is not a multiple of the page size", len(data))
	}
	h, err := format.DecodeDatabaseHeader(data)
	if err != nil {
		t.Fatalf("DecodeDatabaseHeader() error = %v", err)
	}
	if err := h.CheckMagic(); err != nil {
		t.Errorf("CheckMagic() error = %v", err)
	}
	if got, err := h.PageSizeValue(); err != nil || got != 1024 {
		t.Errorf("PageSizeValue() = %d, %v; want 1024", got, err)
	}

	if _, err := os.Stat(path + ".build"); !os.IsNotExist(err) {
		t.Error("scratch database left behind")
	}
}

func TestCreateKeepsWal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.db")
	fx, err := Create(context.Background(), path, Options{PageSize: 4096, Rows: 10, WalRows: 20})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if fx.WalPath != path+"-wal" {
		t.Fatalf("WalPath = %q", fx.WalPath)
	}

	data, err := os.ReadFile(fx.WalPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	hdr, err := format.DecodeWalHeader(data)
	if err != nil {
		t.Fatalf("DecodeWalHeader() error = %v", err)
	}
	if hdr.PageSize != 4096 {
		t.Errorf("wal page size = %d, want 4096", hdr.PageSize)
	}
	if len(data) < format.WalHeaderSize+format.WalFrameHeaderSize+4096 {
		t.Errorf("wal holds no frames (%d bytes)", len(data))
	}
}
