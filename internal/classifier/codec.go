package classifier

import (
	"bytes"
	"encoding/binary"
	"io"

	"chatintent/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// magic identifies a serialized Weights blob
var magic = [4]byte{'C', 'I', 'W', '1'}

// MarshalBinary writes the three tensors in gonum's binary format, each
// prefixed with its byte length.
func (w *Weights) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(magic[:])

	for _, m := range []interface{ MarshalBinary() ([]byte, error) }{w.Embeddings, w.Head, w.Bias} {
		data, err := m.MarshalBinary()
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode weights")
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint64(len(data))); err != nil {
			return nil, errors.Wrap(err, "failed to encode weights")
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores weights written by MarshalBinary and checks that
// the tensor shapes agree.
func (w *Weights) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil || got != magic {
		return errors.Configuration("not a classifier weights file")
	}

	next := func() ([]byte, error) {
		var n uint64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		if n > uint64(r.Len()) {
			return nil, io.ErrUnexpectedEOF
		}
		blob := make([]byte, n)
		_, err := io.ReadFull(r, blob)
		return blob, err
	}

	var (
		emb, head mat.Dense
		bias      mat.VecDense
	)
	for _, m := range []interface{ UnmarshalBinary([]byte) error }{&emb, &head, &bias} {
		blob, err := next()
		if err != nil {
			return errors.Wrap(errors.WithCode(errors.CodeConfiguration, err), "truncated weights file")
		}
		if err := m.UnmarshalBinary(blob); err != nil {
			return errors.Wrap(errors.WithCode(errors.CodeConfiguration, err), "corrupt weights file")
		}
	}

	_, dim := emb.Dims()
	classes, headDim := head.Dims()
	if headDim != dim || classes != bias.Len() {
		return errors.Configuration("weights shapes disagree: embeddings dim %d, head %dx%d, bias %d", dim, classes, headDim, bias.Len())
	}

	w.Embeddings, w.Head, w.Bias = &emb, &head, &bias
	return nil
}
