package nativebind

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Serializer converts values to and from wire bytes.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Transport moves whole messages between a pool and its workers.
type Transport interface {
	// Send writes one message.
	Send(data []byte) error

	// Receive blocks until one complete message has arrived.
	Receive() ([]byte, error)

	// Close closes both directions.
	Close() error
}

// MsgpackSerializer encodes with MessagePack.
type MsgpackSerializer struct{}

func (MsgpackSerializer) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackSerializer) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// frameHeaderSize is the length prefix preceding every frame.
const frameHeaderSize = 4

// maxFrameSize bounds a single message. Job and result frames are tiny; a
// larger prefix means the stream is out of sync.
const maxFrameSize = 1 << 20

// frameClasses are the buffer capacities a framePool keeps. Job and reply
// frames fit the first class; the last holds the largest legal frame.
var frameClasses = [...]int{256, 4 << 10, 64 << 10, frameHeaderSize + maxFrameSize}

// framePool recycles outgoing frame buffers by size class. Each class is a
// buffered channel, so get and put are safe without a lock. Buffers are
// allocated on first use.
type framePool struct {
	classes [len(frameClasses)]chan []byte
}

func newFramePool(perClass int) *framePool {
	fp := &framePool{}
	for i := range fp.classes {
		fp.classes[i] = make(chan []byte, perClass)
	}
	return fp
}

// frameClass returns the smallest class holding n bytes, or -1.
func frameClass(n int) int {
	for i, size := range frameClasses {
		if n <= size {
			return i
		}
	}
	return -1
}

// get returns a buffer of length n.
func (fp *framePool) get(n int) []byte {
	i := frameClass(n)
	if i < 0 {
		return make([]byte, n)
	}
	select {
	case buf := <-fp.classes[i]:
		return buf[:n]
	default:
		return make([]byte, n, frameClasses[i])
	}
}

// put recycles buf. Buffers whose capacity is not a class size, and buffers
// arriving when their class is full, are dropped.
func (fp *framePool) put(buf []byte) {
	i := frameClass(cap(buf))
	if i < 0 || cap(buf) != frameClasses[i] {
		return
	}
	select {
	case fp.classes[i] <- buf[:0]:
	default:
	}
}

// FramedTransport sends messages as a 4-byte big-endian length followed by the
// payload. Send and Receive may be called from different goroutines; concurrent
// calls to the same one are serialized.
type FramedTransport struct {
	reader io.ReadCloser
	writer io.WriteCloser
	pool   *framePool

	sendMu sync.Mutex
	recvMu sync.Mutex
}

// NewFramedTransport wraps a reader and writer pair.
func NewFramedTransport(reader io.ReadCloser, writer io.WriteCloser) *FramedTransport {
	return &FramedTransport{
		reader: reader,
		writer: writer,
		pool:   newFramePool(2),
	}
}

func (t *FramedTransport) Send(data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("nativebind: frame of %d bytes exceeds %d", len(data), maxFrameSize)
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	// Header and payload go out in one write so a reader never sees a header
	// without its body from a concurrent writer.
	frame := t.pool.get(frameHeaderSize + len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[frameHeaderSize:], data)

	_, err := t.writer.Write(frame)
	t.pool.put(frame)
	if err != nil {
		return err
	}
	if f, ok := t.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (t *FramedTransport) Receive() ([]byte, error) {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()

	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(t.reader, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return nil, fmt.Errorf("nativebind: incoming frame of %d bytes exceeds %d", length, maxFrameSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(t.reader, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}

// Close closes the reader, then the writer, and reports the first error.
func (t *FramedTransport) Close() error {
	rerr := t.reader.Close()
	werr := t.writer.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

// codec couples a Serializer with a Transport.
type codec struct {
	s Serializer
	t Transport
}

func (c codec) send(v any) error {
	data, err := c.s.Marshal(v)
	if err != nil {
		return err
	}
	return c.t.Send(data)
}

func (c codec) receive(v any) error {
	data, err := c.t.Receive()
	if err != nil {
		return err
	}
	return c.s.Unmarshal(data, v)
}
