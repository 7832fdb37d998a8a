package filestore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/pkg/e"
)

const (
	storeMagic   = "PMEMB\x00"
	storeVersion = uint16(1)

	maxStringLen = 1 << 20
	maxDim       = 1 << 16

	// заголовок: magic, version, dim, count, created
	headerSize = len(storeMagic) + 2 + 4 + 4 + 8
	crcSize    = 4
)

// Encode пишет хранилище в бинарном формате: заголовок, записи и CRC32 (IEEE) всего предыдущего.
// Хранилище, которое Decode не примет, не пишется.
func Encode(w io.Writer, store *domain.EmbeddingStore) error {
	if store.Dim <= 0 || store.Dim > maxDim {
		return fmt.Errorf("dimension %d outside supported range 1..%d", store.Dim, maxDim)
	}

	crc := crc32.NewIEEE()
	bw := bufio.NewWriter(io.MultiWriter(w, crc))
	enc := &encoder{w: bw}

	enc.raw([]byte(storeMagic))
	enc.u16(storeVersion)
	enc.u32(uint32(store.Dim))
	enc.u32(uint32(store.Count()))
	enc.u64(uint64(store.CreatedAt.UnixNano()))
	enc.str(store.Model)
	enc.str(store.BuildID)

	for i := range store.Records {
		rec := &store.Records[i]
		enc.str(rec.ID)
		enc.str(rec.Name)
		enc.str(rec.Price)
		enc.str(rec.URL)
		for _, v := range rec.Embedding {
			enc.u32(math.Float32bits(v))
		}
	}
	if enc.err != nil {
		return enc.err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	var sum [crcSize]byte
	binary.LittleEndian.PutUint32(sum[:], crc.Sum32())
	_, err := w.Write(sum[:])
	return err
}

// Decode читает хранилище. size задает полный размер данных, по нему проверяются заявленные длины
// до выделения памяти. Любое нарушение формата дает e.ErrStoreCorrupt.
func Decode(r io.Reader, size int64) (*domain.EmbeddingStore, error) {
	store, err := decode(r, size)
	if err != nil {
		return nil, e.Join(e.ErrStoreCorrupt, err)
	}
	return store, nil
}

func decode(r io.Reader, size int64) (*domain.EmbeddingStore, error) {
	if size < int64(headerSize+crcSize) {
		return nil, fmt.Errorf("file too short: %d bytes", size)
	}

	crc := crc32.NewIEEE()
	dec := &decoder{
		r:      io.TeeReader(bufio.NewReader(r), crc),
		remain: size - crcSize,
	}

	if magic := dec.raw(len(storeMagic)); dec.err == nil && string(magic) != storeMagic {
		return nil, errors.New("bad magic")
	}
	if version := dec.u16(); dec.err == nil && version != storeVersion {
		return nil, fmt.Errorf("unsupported version %d", version)
	}
	dim := int(dec.u32())
	count := int(dec.u32())
	created := int64(dec.u64())
	model := dec.str()
	buildID := dec.str()
	if dec.err != nil {
		return nil, dec.err
	}

	if dim <= 0 || dim > maxDim {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	// Каждая запись занимает минимум 4 длины строк и dim float32.
	minRecord := int64(4*4 + dim*4)
	if int64(count) > dec.remain/minRecord {
		return nil, fmt.Errorf("declared %d records do not fit into %d bytes", count, dec.remain)
	}

	store := domain.NewEmbeddingStore(dim, model, buildID, time.Unix(0, created).UTC())
	store.Records = make([]domain.ProductRecord, 0, count)

	buf := make([]byte, 4*dim)
	for i := 0; i < count; i++ {
		rec := domain.ProductRecord{
			ID:    dec.str(),
			Name:  dec.str(),
			Price: dec.str(),
			URL:   dec.str(),
		}
		dec.fill(buf)
		if dec.err != nil {
			return nil, fmt.Errorf("record #%d: %w", i, dec.err)
		}

		rec.Embedding = make([]float32, dim)
		for j := range rec.Embedding {
			rec.Embedding[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		store.Records = append(store.Records, rec)
	}

	if dec.remain != 0 {
		return nil, fmt.Errorf("%d trailing bytes after %d records", dec.remain, count)
	}

	want := crc.Sum32()
	var sum [crcSize]byte
	if _, err := io.ReadFull(dec.r, sum[:]); err != nil {
		return nil, fmt.Errorf("checksum: %w", err)
	}
	if got := binary.LittleEndian.Uint32(sum[:]); got != want {
		return nil, fmt.Errorf("checksum mismatch: stored %08x, computed %08x", got, want)
	}

	return store, nil
}

type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (enc *encoder) raw(p []byte) {
	if enc.err == nil {
		_, enc.err = enc.w.Write(p)
	}
}

func (enc *encoder) u16(v uint16) {
	binary.LittleEndian.PutUint16(enc.buf[:2], v)
	enc.raw(enc.buf[:2])
}

func (enc *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(enc.buf[:4], v)
	enc.raw(enc.buf[:4])
}

func (enc *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(enc.buf[:8], v)
	enc.raw(enc.buf[:8])
}

func (enc *encoder) str(s string) {
	if enc.err == nil && len(s) > maxStringLen {
		enc.err = fmt.Errorf("string of %d bytes exceeds limit %d", len(s), maxStringLen)
		return
	}
	enc.u32(uint32(len(s)))
	enc.raw([]byte(s))
}

// decoder запоминает первую ошибку и следит за числом оставшихся байт до контрольной суммы.
type decoder struct {
	r      io.Reader
	remain int64
	buf    [8]byte
	err    error
}

func (dec *decoder) fill(p []byte) {
	if dec.err != nil {
		return
	}
	if int64(len(p)) > dec.remain {
		dec.err = io.ErrUnexpectedEOF
		return
	}
	if _, err := io.ReadFull(dec.r, p); err != nil {
		dec.err = err
		return
	}
	dec.remain -= int64(len(p))
}

func (dec *decoder) raw(n int) []byte {
	p := make([]byte, n)
	dec.fill(p)
	return p
}

func (dec *decoder) u16() uint16 {
	dec.fill(dec.buf[:2])
	return binary.LittleEndian.Uint16(dec.buf[:2])
}

func (dec *decoder) u32() uint32 {
	dec.fill(dec.buf[:4])
	return binary.LittleEndian.Uint32(dec.buf[:4])
}

func (dec *decoder) u64() uint64 {
	dec.fill(dec.buf[:8])
	return binary.LittleEndian.Uint64(dec.buf[:8])
}

func (dec *decoder) str() string {
	n := dec.u32()
	if dec.err != nil {
		return ""
	}
	if n > maxStringLen {
		dec.err = fmt.Errorf("string length %d exceeds limit %d", n, maxStringLen)
		return ""
	}
	return string(dec.raw(int(n)))
}
