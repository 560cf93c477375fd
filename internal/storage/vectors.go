package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// vectors.bin layout: uint32 dims, uint32 rows, then rows*dims float32,
// all little-endian.

func writeVectors(path string, vectors [][]float32, dims int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vectors file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(dims)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(vectors))); err != nil {
		return fmt.Errorf("write row count: %w", err)
	}
	for i, vec := range vectors {
		if len(vec) != dims {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(vec), dims)
		}
		if _, err := f.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}
	return nil
}

func readVectors(path string) (dims int, vectors [][]float32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("open vectors file: %w", err)
	}
	defer f.Close()
	var d, n uint32
	if err := binary.Read(f, binary.LittleEndian, &d); err != nil {
		return 0, nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return 0, nil, fmt.Errorf("read row count: %w", err)
	}
	vectors = make([][]float32, 0, n)
	buf := make([]byte, int(d)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := readFull(f, buf); err != nil {
			return 0, nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	return int(d), vectors, nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
