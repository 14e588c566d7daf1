package vectorstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	indexFileName = "index.bin"
	idsFileName   = "index_ids.json"

	indexMagic   = "RCLD"
	indexVersion = uint32(2)
)

// ledgerFile is the on-disk shape of the position ledger. The generation
// ties it to the index file written in the same Save.
type ledgerFile struct {
	Generation uint32   `json:"generation"`
	IDs        []string `json:"ids"`
}

// Save persists the index and its position ledger under dir. Both files
// are staged to temp paths and swapped into place, ids first, and both
// carry the same save generation, so a crash between the two renames is
// detected as a generation mismatch on the next load even when the
// half-swapped pair agrees on count and ids.
func (x *FlatIndex) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	gen := x.gen + 1
	idsData, err := json.Marshal(ledgerFile{Generation: gen, IDs: x.ids})
	if err != nil {
		return fmt.Errorf("marshaling position ledger: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(indexMagic)
	for _, v := range []uint32{indexVersion, uint32(x.dim), uint32(len(x.ids)), gen} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("encoding index header: %w", err)
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, x.vectors); err != nil {
		return fmt.Errorf("encoding index vectors: %w", err)
	}

	idsPath := filepath.Join(dir, idsFileName)
	indexPath := filepath.Join(dir, indexFileName)
	idsTmp := idsPath + ".tmp"
	indexTmp := indexPath + ".tmp"

	if err := os.WriteFile(idsTmp, idsData, 0o644); err != nil {
		return fmt.Errorf("writing position ledger: %w", err)
	}
	if err := os.WriteFile(indexTmp, buf.Bytes(), 0o644); err != nil {
		_ = os.Remove(idsTmp)
		return fmt.Errorf("writing index: %w", err)
	}
	if err := os.Rename(idsTmp, idsPath); err != nil {
		_ = os.Remove(idsTmp)
		_ = os.Remove(indexTmp)
		return fmt.Errorf("replacing position ledger: %w", err)
	}
	if err := os.Rename(indexTmp, indexPath); err != nil {
		_ = os.Remove(indexTmp)
		return fmt.Errorf("replacing index: %w", err)
	}
	x.gen = gen
	return nil
}

// LoadFlatIndex loads a persisted index pair from dir. A missing pair
// yields an empty index; a pair that disagrees about dimension, count,
// generation, or payload length yields ErrIndexCorrupt so the caller can
// rebuild from the metadata ledger.
func LoadFlatIndex(dir string, dim int) (*FlatIndex, error) {
	x, err := NewFlatIndex(dim)
	if err != nil {
		return nil, err
	}

	indexPath := filepath.Join(dir, indexFileName)
	idsPath := filepath.Join(dir, idsFileName)

	indexData, indexErr := os.ReadFile(indexPath)
	idsData, idsErr := os.ReadFile(idsPath)
	if os.IsNotExist(indexErr) && os.IsNotExist(idsErr) {
		return x, nil
	}
	if indexErr != nil || idsErr != nil {
		return nil, fmt.Errorf("%w: index readable=%t, ledger readable=%t",
			ErrIndexCorrupt, indexErr == nil, idsErr == nil)
	}

	var lf ledgerFile
	if err := json.Unmarshal(idsData, &lf); err != nil {
		return nil, fmt.Errorf("%w: unparseable position ledger: %v", ErrIndexCorrupt, err)
	}

	headerLen := len(indexMagic) + 4*4
	if len(indexData) < headerLen || string(indexData[:len(indexMagic)]) != indexMagic {
		return nil, fmt.Errorf("%w: bad index header", ErrIndexCorrupt)
	}
	r := bytes.NewReader(indexData[len(indexMagic):])
	var version, fileDim, count, gen uint32
	for _, dst := range []*uint32{&version, &fileDim, &count, &gen} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, fmt.Errorf("%w: truncated index header: %v", ErrIndexCorrupt, err)
		}
	}
	if version != indexVersion {
		return nil, fmt.Errorf("%w: unsupported index version %d", ErrIndexCorrupt, version)
	}
	if int(fileDim) != dim {
		return nil, fmt.Errorf("%w: index dimension %d, configured %d", ErrIndexCorrupt, fileDim, dim)
	}
	if int(count) != len(lf.IDs) {
		return nil, fmt.Errorf("%w: index holds %d vectors, ledger holds %d ids", ErrIndexCorrupt, count, len(lf.IDs))
	}
	if gen != lf.Generation {
		return nil, fmt.Errorf("%w: index generation %d, ledger generation %d", ErrIndexCorrupt, gen, lf.Generation)
	}
	// Validate the payload length against the header before allocating:
	// count comes off disk and must never size an allocation on its own.
	if want := headerLen + int(count)*dim*4; len(indexData) != want {
		return nil, fmt.Errorf("%w: index is %d bytes, header promises %d", ErrIndexCorrupt, len(indexData), want)
	}

	vectors := make([]float32, int(count)*dim)
	if err := binary.Read(r, binary.LittleEndian, &vectors); err != nil {
		return nil, fmt.Errorf("%w: truncated vector data: %v", ErrIndexCorrupt, err)
	}

	x.vectors = vectors
	x.ids = lf.IDs
	x.gen = gen
	return x, nil
}
