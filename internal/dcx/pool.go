package dcx

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// decoderPool recycles single-goroutine zstd decoders across payloads.
type decoderPool struct {
	decoders  sync.Pool
	maxMemory uint64
}

func newDecoderPool(maxMemory uint64) *decoderPool {
	return &decoderPool{maxMemory: maxMemory}
}

// acquire returns a decoder reading r and the func that hands it back.
func (p *decoderPool) acquire(r io.Reader) (*zstd.Decoder, func(), error) {
	if dec, ok := p.decoders.Get().(*zstd.Decoder); ok {
		if err := dec.Reset(r); err == nil {
			return dec, func() { p.put(dec) }, nil
		}
		dec.Close()
	}
	dec, err := p.open(r)
	if err != nil {
		return nil, nil, err
	}
	return dec, func() { p.put(dec) }, nil
}

func (p *decoderPool) put(dec *zstd.Decoder) {
	if err := dec.Reset(nil); err != nil {
		dec.Close()
		return
	}
	p.decoders.Put(dec)
}

func (p *decoderPool) open(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if p.maxMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxMemory))
	}
	return zstd.NewReader(r, opts...)
}
