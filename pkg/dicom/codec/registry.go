package codec

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jpfielding/dicom.go/pkg/dicom/transfer"
)

// ErrNoCodec reports that no registered codec claims a transfer syntax.
var ErrNoCodec = errors.New("codec: no codec registered for transfer syntax")

// Registry holds codecs in registration order. Dispatch tries each codec
// claiming the syntax until one succeeds; order is the only priority.
type Registry struct {
	mu     sync.RWMutex
	codecs []Codec
	byName map[string]Codec

	// last codec name that decoded each syntax. Tried first on the next
	// frame so a multi-frame image stays on one backend; a warning fires
	// when a stream ends up split across backends anyway.
	lastDecoder map[transfer.Syntax]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:      map[string]Codec{},
		lastDecoder: map[transfer.Syntax]string{},
	}
}

// Default returns a registry with the built-in codecs registered: native
// RLE plus the JPEG family placeholders that report their availability.
func Default() *Registry {
	r := NewRegistry()
	r.Register(RLE())
	for _, c := range nativeCodecs() {
		r.Register(c)
	}
	return r
}

// Register appends a codec. Re-registering a name replaces the earlier
// entry in place so ordering stays stable.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[c.Name()]; ok {
		for i := range r.codecs {
			if r.codecs[i].Name() == c.Name() {
				r.codecs[i] = c
				break
			}
		}
	} else {
		r.codecs = append(r.codecs, c)
	}
	r.byName[c.Name()] = c
}

// Lookup returns the codec registered under name.
func (r *Registry) Lookup(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// Names lists registered codec names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.codecs))
	for i, c := range r.codecs {
		names[i] = c.Name()
	}
	return names
}

// candidates returns the codecs claiming ts, in registration order.
func (r *Registry) candidates(ts transfer.Syntax) []Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Codec
	for _, c := range r.codecs {
		for _, s := range c.TransferSyntaxes() {
			if s == ts {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// DecodeOptions steers frame dispatch.
type DecodeOptions struct {
	// Codec pins decoding to the named codec. A pinned codec that is
	// missing, unavailable, or fails is an immediate error; no fallback.
	Codec string
}

// DecodeFrame expands one compressed frame. The codec that last decoded
// this syntax is tried first so consecutive frames stay on one backend;
// otherwise candidates run in registration order until one succeeds. When
// every candidate fails the error aggregates each codec's reason.
func (r *Registry) DecodeFrame(ts transfer.Syntax, frame []byte, info PixelInfo, opts DecodeOptions) ([]byte, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	if opts.Codec != "" {
		c, ok := r.Lookup(opts.Codec)
		if !ok {
			return nil, fmt.Errorf("codec: %q is not registered", opts.Codec)
		}
		if !claims(c, ts) {
			return nil, fmt.Errorf("codec: %q does not handle %s", opts.Codec, ts.Name())
		}
		if err := c.Available(); err != nil {
			return nil, fmt.Errorf("codec: %q unavailable: %w", opts.Codec, err)
		}
		out, err := c.Decode(frame, info)
		if err != nil {
			return nil, fmt.Errorf("codec: %q: %w", opts.Codec, err)
		}
		r.noteDecoder(ts, c.Name())
		return out, nil
	}

	if name, ok := r.hintFor(ts); ok {
		if c, ok := r.Lookup(name); ok && claims(c, ts) && c.Available() == nil {
			if out, err := c.Decode(frame, info); err == nil {
				return out, nil
			}
		}
	}

	cands := r.candidates(ts)
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoCodec, ts.Name())
	}

	var failures []string
	for _, c := range cands {
		if err := c.Available(); err != nil {
			failures = append(failures, fmt.Sprintf("%s: unavailable: %v", c.Name(), err))
			continue
		}
		out, err := c.Decode(frame, info)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", c.Name(), err))
			continue
		}
		r.noteDecoder(ts, c.Name())
		return out, nil
	}
	return nil, fmt.Errorf("codec: every codec for %s failed: %s",
		ts.Name(), strings.Join(failures, "; "))
}

// EncodeFrame compresses one native frame, with the same selection rules
// as DecodeFrame.
func (r *Registry) EncodeFrame(ts transfer.Syntax, frame []byte, info PixelInfo, opts DecodeOptions) ([]byte, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	if opts.Codec != "" {
		c, ok := r.Lookup(opts.Codec)
		if !ok {
			return nil, fmt.Errorf("codec: %q is not registered", opts.Codec)
		}
		if !claims(c, ts) {
			return nil, fmt.Errorf("codec: %q does not handle %s", opts.Codec, ts.Name())
		}
		if err := c.Available(); err != nil {
			return nil, fmt.Errorf("codec: %q unavailable: %w", opts.Codec, err)
		}
		out, err := c.Encode(frame, info)
		if err != nil {
			return nil, fmt.Errorf("codec: %q: %w", opts.Codec, err)
		}
		return out, nil
	}

	cands := r.candidates(ts)
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoCodec, ts.Name())
	}
	var failures []string
	for _, c := range cands {
		if err := c.Available(); err != nil {
			failures = append(failures, fmt.Sprintf("%s: unavailable: %v", c.Name(), err))
			continue
		}
		out, err := c.Encode(frame, info)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", c.Name(), err))
			continue
		}
		return out, nil
	}
	return nil, fmt.Errorf("codec: every codec for %s failed: %s",
		ts.Name(), strings.Join(failures, "; "))
}

func (r *Registry) hintFor(ts transfer.Syntax) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.lastDecoder[ts]
	return name, ok
}

func (r *Registry) noteDecoder(ts transfer.Syntax, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.lastDecoder[ts]; ok && prev != name {
		slog.Warn("pixel frames for one syntax decoded by different codecs",
			"syntax", ts.Name(), "previous", prev, "current", name)
	}
	r.lastDecoder[ts] = name
}

func claims(c Codec, ts transfer.Syntax) bool {
	for _, s := range c.TransferSyntaxes() {
		if s == ts {
			return true
		}
	}
	return false
}
