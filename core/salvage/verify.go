package salvage

import (
	"archive/tar"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
	"github.com/FocuswithJustin/sqlsalvage/internal/archive"
)

// VerifyReport lists the differences between a dump and its manifest.
type VerifyReport struct {
	Manifest   *Manifest
	Checked    int
	Mismatched []string // entries whose digest differs
	Missing    []string // manifest entries absent from the archive
	Extra      []string // archive entries absent from the manifest
}

// OK reports whether every page matched.
func (r *VerifyReport) OK() bool {
	return len(r.Mismatched) == 0 && len(r.Missing) == 0 && len(r.Extra) == 0
}

// Verify reads a dump and recomputes every page digest. An empty
// compression detects xz from the stream's magic bytes.
func Verify(r io.Reader, compression Compression) (*VerifyReport, error) {
	var ar *archive.Reader
	var err error
	switch compression {
	case "":
		ar, err = archive.NewReader(r)
	case CompressionXZ, CompressionNone:
		ar, err = archive.NewReaderCompressed(r, compression == CompressionXZ)
	default:
		return nil, errors.NewUnsupported("dump compression", string(compression))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dump: %w", err)
	}

	digests := make(map[string]string)
	var manifest *Manifest

	err = ar.Iterate(func(header *tar.Header, body io.Reader) (bool, error) {
		if header.Name == ManifestName {
			data, err := io.ReadAll(body)
			if err != nil {
				return true, fmt.Errorf("failed to read manifest: %w", err)
			}
			manifest = &Manifest{}
			if err := json.Unmarshal(data, manifest); err != nil {
				return true, errors.NewParse("json", ManifestName, err.Error())
			}
			return false, nil
		}

		h := blake3.New()
		if _, err := io.Copy(h, body); err != nil {
			return true, fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		digests[header.Name] = hex.EncodeToString(h.Sum(nil))
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	if manifest == nil {
		return nil, errors.NewNotFound("manifest", ManifestName)
	}

	report := &VerifyReport{Manifest: manifest}
	for _, page := range manifest.Pages {
		name := PageEntryName(page.Pgno)
		got, ok := digests[name]
		if !ok {
			report.Missing = append(report.Missing, name)
			continue
		}
		delete(digests, name)
		report.Checked++
		if got != page.BLAKE3 {
			report.Mismatched = append(report.Mismatched, name)
		}
	}
	for name := range digests {
		report.Extra = append(report.Extra, name)
	}
	sort.Strings(report.Extra)
	return report, nil
}
