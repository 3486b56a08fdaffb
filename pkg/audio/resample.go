package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// defaultBlockMS is the block granularity the resampler works at when the
// caller does not override it.
const defaultBlockMS = 100

// ResamplerConfig describes a PCM16 rate/channel conversion.
type ResamplerConfig struct {
	// SrcRate and DstRate are sample rates in Hz.
	SrcRate int
	DstRate int

	// SrcChannels and DstChannels are interleaved channel counts.
	// Multi-channel input is down-mixed by mean before rate conversion;
	// mono output is duplicated when DstChannels > 1.
	SrcChannels int
	DstChannels int

	// BlockMS is the conversion block size in milliseconds. Incoming bytes
	// are buffered until a whole block is available. Default 100.
	BlockMS int
}

// Resampler is a stateful, block-aligned PCM16 converter. Convert emits only
// whole blocks and keeps the remainder buffered for the next call; Flush
// drains whatever is left. Not safe for concurrent use; each stream owns its
// own Resampler.
type Resampler struct {
	cfg        ResamplerConfig
	blockBytes int
	pending    []byte
	core       resampling.Resampler // nil when SrcRate == DstRate
}

// NewResampler creates a Resampler for the given conversion. Rate conversion
// is delegated to the soxr-style resampling library; this wrapper owns block
// alignment, channel mixing, and int16 round-tripping.
func NewResampler(cfg ResamplerConfig) (*Resampler, error) {
	if cfg.SrcRate <= 0 || cfg.DstRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates %d -> %d", cfg.SrcRate, cfg.DstRate)
	}
	if cfg.SrcChannels <= 0 {
		cfg.SrcChannels = 1
	}
	if cfg.DstChannels <= 0 {
		cfg.DstChannels = 1
	}
	if cfg.BlockMS <= 0 {
		cfg.BlockMS = defaultBlockMS
	}

	r := &Resampler{
		cfg:        cfg,
		blockBytes: cfg.BlockMS * cfg.SrcRate / 1000 * BytesPerSample * cfg.SrcChannels,
	}

	if cfg.SrcRate != cfg.DstRate {
		core, err := resampling.New(&resampling.Config{
			InputRate:  float64(cfg.SrcRate),
			OutputRate: float64(cfg.DstRate),
			Channels:   1, // conversion happens on the down-mixed mono signal
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("audio: create resampler core: %w", err)
		}
		r.core = core
	}
	return r, nil
}

// Convert buffers chunk and returns the converted bytes for every complete
// block now available. Returns nil when no whole block is ready.
func (r *Resampler) Convert(chunk []byte) ([]byte, error) {
	r.pending = append(r.pending, chunk...)
	whole := len(r.pending) / r.blockBytes * r.blockBytes
	if whole == 0 {
		return nil, nil
	}
	blocks := r.pending[:whole]
	rest := make([]byte, len(r.pending)-whole)
	copy(rest, r.pending[whole:])
	r.pending = rest
	return r.process(blocks)
}

// Buffered reports how many source bytes are held back for the next whole
// block.
func (r *Resampler) Buffered() int { return len(r.pending) }

// Reset drops the buffered remainder without converting it. Used when a
// stream is cut mid-response.
func (r *Resampler) Reset() { r.pending = nil }

// Flush drains all buffered bytes regardless of block alignment. Call once at
// end of stream.
func (r *Resampler) Flush() ([]byte, error) {
	if len(r.pending) == 0 {
		return nil, nil
	}
	blocks := r.pending
	r.pending = nil
	return r.process(blocks)
}

// process converts an aligned run of source bytes: mean downmix to mono,
// rate conversion in float64 with a saturating clip to [-1, 1] before the
// return to int16, then channel duplication for multi-channel output.
func (r *Resampler) process(src []byte) ([]byte, error) {
	mono := DownmixMean(src, r.cfg.SrcChannels)

	out := mono
	if r.core != nil {
		samples := BytesToSamples(mono)
		input := make([]float64, len(samples))
		for i, s := range samples {
			input[i] = float64(s) / 32768.0
		}
		converted, err := r.core.Process(input)
		if err != nil {
			return nil, fmt.Errorf("audio: resample: %w", err)
		}
		resampled := make([]int16, len(converted))
		for i, f := range converted {
			if f > 1.0 {
				f = 1.0
			} else if f < -1.0 {
				f = -1.0
			}
			resampled[i] = int16(f * 32767.0)
		}
		out = SamplesToBytes(resampled)
	}

	return UpmixDuplicate(out, r.cfg.DstChannels), nil
}
