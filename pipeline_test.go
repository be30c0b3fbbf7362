package pgz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"

	"github.com/go-faster/pgz/compress"
)

const testBlockSize = 1024

func randData(seed int64, n int) []byte {
	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, n)
	for i := range buf {
		// Somewhat compressible.
		buf[i] = byte(r.Intn(16))
	}
	return buf
}

// requireData is require.Equal that treats nil and empty data as equal.
func requireData(t testing.TB, expected, actual []byte) {
	t.Helper()
	if len(expected) == 0 {
		require.Empty(t, actual)
		return
	}
	require.Equal(t, expected, actual)
}

// within fails test if f does not return in time, so deadlock is reported
// instead of hanging.
func within(t testing.TB, d time.Duration, f func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("pipeline did not finish in %s", d)
	}
}

func testOptions(t testing.TB, workers int) Options {
	return Options{
		Logger:    zaptest.NewLogger(t),
		BlockSize: testBlockSize,
		Workers:   workers,
	}
}

func roundTrip(t *testing.T, data []byte, compressOpt, decompressOpt Options) []byte {
	t.Helper()
	ctx := context.Background()

	var container bytes.Buffer
	res, err := Compress(ctx, Reader(bytes.NewReader(data)), Writer(&container), compressOpt)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), res.BytesRead)
	require.Equal(t, int64(container.Len()), res.BytesWritten)

	var out bytes.Buffer
	res, err = Decompress(ctx, Reader(bytes.NewReader(container.Bytes())), Writer(&out), decompressOpt)
	require.NoError(t, err)
	require.Equal(t, int64(container.Len()), res.BytesRead)
	require.Equal(t, int64(len(data)), res.BytesWritten)

	return out.Bytes()
}

func TestRoundTrip(t *testing.T) {
	sizes := []int{
		0,
		1,
		testBlockSize - 1,
		testBlockSize,
		testBlockSize + 1,
		testBlockSize*3 + testBlockSize/2,
		testBlockSize * 100,
	}
	for _, m := range compress.MethodValues() {
		t.Run(m.String(), func(t *testing.T) {
			for _, size := range sizes {
				for _, workers := range []int{1, 2, 4, 8} {
					t.Run(fmt.Sprintf("%d/%d", size, workers), func(t *testing.T) {
						data := randData(int64(size), size)
						compressOpt := testOptions(t, workers)
						compressOpt.Method = m
						decompressOpt := testOptions(t, 9-workers)
						decompressOpt.Method = m

						requireData(t, data, roundTrip(t, data, compressOpt, decompressOpt))
					})
				}
			}
		})
	}
}

func TestCompress_Sequential(t *testing.T) {
	// Parallel output must be identical to sequential codec pass.
	data := randData(42, testBlockSize*50+17)

	w, err := compress.NewWriter(compress.Gzip, 0)
	require.NoError(t, err)
	var expected []byte
	for rest := data; len(rest) > 0; {
		n := testBlockSize
		if n > len(rest) {
			n = len(rest)
		}
		require.NoError(t, w.Compress(rest[:n]))
		expected = append(expected, w.Data...)
		rest = rest[n:]
	}

	for _, workers := range []int{1, 3, 16} {
		t.Run(fmt.Sprintf("Workers%d", workers), func(t *testing.T) {
			var out bytes.Buffer
			res, err := Compress(context.Background(), Reader(bytes.NewReader(data)), Writer(&out), testOptions(t, workers))
			require.NoError(t, err)
			require.Equal(t, 51, res.Blocks)
			require.Equal(t, expected, out.Bytes())
		})
	}
}

func TestFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	var (
		input     = filepath.Join(dir, "input.bin")
		container = filepath.Join(dir, "input.bin.gz")
		output    = filepath.Join(dir, "output.bin")
	)

	t.Run("Blocks", func(t *testing.T) {
		// 3 full blocks and partial trailing block.
		data := randData(1, DefaultBlockSize*3+DefaultBlockSize/3)
		require.NoError(t, os.WriteFile(input, data, 0o600))

		var progress []Progress
		_, err := CompressFile(ctx, input, container, Options{
			Logger:  zaptest.NewLogger(t),
			Workers: 4,
			OnProgress: func(p Progress) {
				progress = append(progress, p)
			},
		})
		require.NoError(t, err)
		require.Len(t, progress, 4)
		last := progress[len(progress)-1]
		require.Equal(t, int64(len(data)), last.Bytes)
		require.Equal(t, int64(len(data)), last.Total)
		require.Equal(t, 100, last.Percent())

		_, err = DecompressFile(ctx, container, output, Options{
			Logger:  zaptest.NewLogger(t),
			Workers: 1,
		})
		require.NoError(t, err)

		out, err := os.ReadFile(output)
		require.NoError(t, err)
		require.Equal(t, data, out)
	})
	t.Run("Empty", func(t *testing.T) {
		require.NoError(t, os.WriteFile(input, nil, 0o600))

		res, err := CompressFile(ctx, input, container, Options{Logger: zaptest.NewLogger(t)})
		require.NoError(t, err)
		require.Zero(t, res.Blocks)

		stat, err := os.Stat(container)
		require.NoError(t, err)
		require.Zero(t, stat.Size(), "container should have zero frames")

		require.NoError(t, os.WriteFile(output, []byte("garbage"), 0o600))
		_, err = DecompressFile(ctx, container, output, Options{Logger: zaptest.NewLogger(t)})
		require.NoError(t, err)

		stat, err = os.Stat(output)
		require.NoError(t, err)
		require.Zero(t, stat.Size(), "output should be truncated")
	})
	t.Run("NotFound", func(t *testing.T) {
		within(t, time.Second*10, func() {
			_, err := CompressFile(ctx, filepath.Join(dir, "missing"), container, Options{
				Logger:  zaptest.NewLogger(t),
				Workers: 4,
			})
			require.ErrorIs(t, err, os.ErrNotExist)
		})
	})
	t.Run("BadOutput", func(t *testing.T) {
		require.NoError(t, os.WriteFile(input, randData(2, DefaultBlockSize*2), 0o600))
		within(t, time.Second*10, func() {
			_, err := CompressFile(ctx, input, filepath.Join(dir, "missing", "out.gz"), Options{
				Logger:  zaptest.NewLogger(t),
				Workers: 4,
				Window:  1,
			})
			require.ErrorIs(t, err, os.ErrNotExist)
		})
	})
}

// faultyWriter fails after n writes.
type faultyWriter struct {
	n      int
	writes int
	buf    bytes.Buffer
}

var errFault = errors.New("fault")

func (w *faultyWriter) Write(p []byte) (int, error) {
	if w.writes >= w.n {
		return 0, errFault
	}
	w.writes++
	return w.buf.Write(p)
}

// faultyReader returns error instead of io.EOF.
type faultyReader struct {
	r io.Reader
}

func (r *faultyReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if errors.Is(err, io.EOF) {
		return n, errFault
	}
	return n, err
}

func TestFault(t *testing.T) {
	data := randData(3, testBlockSize*200)

	t.Run("Write", func(t *testing.T) {
		for _, window := range []int{-1, 1, 8} {
			t.Run(fmt.Sprintf("Window%d", window), func(t *testing.T) {
				w := &faultyWriter{n: 5}
				opt := testOptions(t, 4)
				opt.Window = window

				within(t, time.Second*10, func() {
					_, err := Compress(context.Background(), Reader(bytes.NewReader(data)), Writer(w), opt)
					require.ErrorIs(t, err, errFault)
					require.ErrorContains(t, err, "writer")
				})
				require.Equal(t, 5, w.writes)
			})
		}
	})
	t.Run("Read", func(t *testing.T) {
		var out bytes.Buffer
		within(t, time.Second*10, func() {
			_, err := Compress(context.Background(),
				Reader(&faultyReader{r: bytes.NewReader(data[:testBlockSize*10+5])}),
				Writer(&out),
				testOptions(t, 4),
			)
			require.ErrorIs(t, err, errFault)
			require.ErrorContains(t, err, "reader")
		})
	})
	t.Run("Open", func(t *testing.T) {
		within(t, time.Second*10, func() {
			_, err := Compress(context.Background(),
				func() (io.ReadCloser, error) { return nil, errFault },
				Writer(io.Discard),
				testOptions(t, 4),
			)
			require.ErrorIs(t, err, errFault)
		})
	})
}

func TestDecompress_Malformed(t *testing.T) {
	data := randData(4, testBlockSize*20)
	var container bytes.Buffer
	_, err := Compress(context.Background(), Reader(bytes.NewReader(data)), Writer(&container), testOptions(t, 4))
	require.NoError(t, err)

	for _, tc := range []struct {
		Name   string
		Mutate func(b []byte) []byte
	}{
		{
			Name:   "Truncated",
			Mutate: func(b []byte) []byte { return b[:len(b)-10] },
		},
		{
			Name: "Garbage",
			Mutate: func(b []byte) []byte {
				return append(b, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
			},
		},
		{
			Name: "Corrupted",
			Mutate: func(b []byte) []byte {
				// Flip byte of deflate data of the first frame.
				b[20] ^= 0xff
				return b
			},
		},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			input := tc.Mutate(append([]byte(nil), container.Bytes()...))
			within(t, time.Second*10, func() {
				_, err := Decompress(context.Background(), Reader(bytes.NewReader(input)), Writer(io.Discard), testOptions(t, 4))
				require.ErrorIs(t, err, compress.ErrMalformed)
			})
		})
	}
	t.Run("Method", func(t *testing.T) {
		// Gzip container is not a native one.
		opt := testOptions(t, 2)
		opt.Method = compress.LZ4
		within(t, time.Second*10, func() {
			_, err := Decompress(context.Background(), Reader(bytes.NewReader(container.Bytes())), Writer(io.Discard), opt)
			require.Error(t, err)
		})
	})
}

// infiniteReader never ends.
type infiniteReader struct{}

func (infiniteReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(i)
	}
	return len(p), nil
}

// blockingWriter blocks until released.
type blockingWriter struct {
	release chan struct{}
}

func (w blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	return len(p), nil
}

func TestCancel(t *testing.T) {
	t.Run("Context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		opt := testOptions(t, 4)
		opt.OnProgress = func(p Progress) {
			if p.Blocks == 100 {
				cancel()
			}
		}
		within(t, time.Second*10, func() {
			res, err := Compress(ctx, Reader(infiniteReader{}), Writer(io.Discard), opt)
			require.ErrorIs(t, err, context.Canceled)
			require.ErrorContains(t, err, "aborted")
			require.GreaterOrEqual(t, res.BytesRead, int64(100*testBlockSize))
		})
	})
	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		within(t, time.Second*10, func() {
			_, err := Compress(ctx, Reader(infiniteReader{}), Writer(io.Discard), testOptions(t, 4))
			require.ErrorIs(t, err, context.Canceled)
		})
	})
	t.Run("BlockedWorkers", func(t *testing.T) {
		// Writer is stuck, workers wait on full window, reader waits on
		// full window: cancellation must release everybody except the
		// writer, which is released by test.
		ctx, cancel := context.WithCancel(context.Background())
		w := blockingWriter{release: make(chan struct{})}
		opt := testOptions(t, 4)
		opt.Window = 2

		done := make(chan error, 1)
		go func() {
			_, err := Compress(ctx, Reader(infiniteReader{}), Writer(w), opt)
			done <- err
		}()
		time.Sleep(time.Millisecond * 50)
		cancel()
		close(w.release)

		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second * 10):
			t.Fatal("pipeline did not finish")
		}
	})
}

// slowTransform delays selected blocks and counts calls.
type slowTransform struct {
	calls *atomic.Int32
	delay func(b Block) time.Duration
	fail  func(b Block) error
}

func (s *slowTransform) Transform(b Block) (Block, error) {
	s.calls.Inc()
	if s.fail != nil {
		if err := s.fail(b); err != nil {
			return Block{}, err
		}
	}
	if s.delay != nil {
		time.Sleep(s.delay(b))
	}
	return Block{Data: append([]byte(nil), b.Data...)}, nil
}

func (s *slowTransform) Close() error { return nil }

func newTestPipeline(t *testing.T, data []byte, out io.Writer, workers int, tr func() transform) *pipeline {
	t.Helper()
	p, err := newPipeline(ModeCompress, Reader(bytes.NewReader(data)), Writer(out), testOptions(t, workers))
	require.NoError(t, err)
	p.newTransform = func() (transform, error) {
		return tr(), nil
	}
	return p
}

func TestWorkers(t *testing.T) {
	t.Run("LastClosesOutput", func(t *testing.T) {
		// First block is slow: other workers drain input and exit while it
		// is still in flight. Output must not be closed before it lands.
		const workers = 8
		data := randData(5, testBlockSize*workers)
		var (
			calls atomic.Int32
			out   bytes.Buffer
		)
		p := newTestPipeline(t, data, &out, workers, func() transform {
			return &slowTransform{
				calls: &calls,
				delay: func(b Block) time.Duration {
					if bytes.Equal(b.Data, data[:testBlockSize]) {
						return time.Millisecond * 200
					}
					return 0
				},
			}
		})
		within(t, time.Second*10, func() {
			res, err := p.run(context.Background())
			require.NoError(t, err)
			require.Equal(t, workers, res.Blocks)
		})
		require.Equal(t, data, out.Bytes())
		require.Zero(t, p.active.Load())
		require.True(t, p.out.Closed())
	})
	t.Run("MoreWorkersThanBlocks", func(t *testing.T) {
		for _, size := range []int{0, 1, testBlockSize * 3} {
			var (
				calls atomic.Int32
				out   bytes.Buffer
				data  = randData(6, size)
			)
			p := newTestPipeline(t, data, &out, 64, func() transform {
				return &slowTransform{calls: &calls}
			})
			within(t, time.Second*10, func() {
				_, err := p.run(context.Background())
				require.NoError(t, err)
			})
			requireData(t, data, out.Bytes())
			require.Equal(t, int32((size+testBlockSize-1)/testBlockSize), calls.Load())
		}
	})
	t.Run("Fault", func(t *testing.T) {
		data := randData(7, testBlockSize*100)
		var (
			calls atomic.Int32
			out   bytes.Buffer
		)
		p := newTestPipeline(t, data, &out, 4, func() transform {
			return &slowTransform{
				calls: &calls,
				fail: func(b Block) error {
					if bytes.Equal(b.Data, data[testBlockSize*10:testBlockSize*11]) {
						return errFault
					}
					return nil
				},
			}
		})
		within(t, time.Second*10, func() {
			_, err := p.run(context.Background())
			require.ErrorIs(t, err, errFault)
			require.ErrorContains(t, err, "block 10")
		})
		require.Zero(t, p.active.Load())
		require.True(t, p.out.Closed())
		require.LessOrEqual(t, out.Len(), testBlockSize*10, "blocks after failed one must not be written")
	})
	t.Run("Panic", func(t *testing.T) {
		data := randData(8, testBlockSize*10)
		p := newTestPipeline(t, data, io.Discard, 4, func() transform {
			return &slowTransform{
				calls: atomic.NewInt32(0),
				fail: func(b Block) error {
					panic("boom")
				},
			}
		})
		within(t, time.Second*10, func() {
			_, err := p.run(context.Background())
			require.ErrorContains(t, err, "boom")
		})
	})
}

func TestOptions(t *testing.T) {
	_, err := Compress(context.Background(), Reader(bytes.NewReader(nil)), Writer(io.Discard), Options{
		BlockSize: -1,
	})
	require.Error(t, err)

	_, err = Compress(context.Background(), Reader(bytes.NewReader(nil)), Writer(io.Discard), Options{
		Method: compress.Method(100),
	})
	require.Error(t, err)

	var opt Options
	opt.setDefaults()
	require.Equal(t, DefaultBlockSize, opt.BlockSize)
	require.GreaterOrEqual(t, opt.Workers, 1)
	require.Equal(t, opt.Workers*4, opt.Window)
	require.NotEmpty(t, opt.RunID)
	require.NotNil(t, opt.Logger)
}

func TestResult(t *testing.T) {
	require.Zero(t, Result{}.Ratio())
	require.Equal(t, 0.5, Result{BytesRead: 10, BytesWritten: 5}.Ratio())
	require.Equal(t, -1, Progress{Bytes: 10}.Percent())
	require.Equal(t, 50, Progress{Bytes: 5, Total: 10}.Percent())
	require.Equal(t, "compress", ModeCompress.String())
	require.Equal(t, "decompress", ModeDecompress.String())
	require.Equal(t, "Mode(9)", Mode(9).String())
}

func BenchmarkCompress(b *testing.B) {
	data := randData(9, DefaultBlockSize*16)

	for _, m := range []compress.Method{compress.Gzip, compress.LZ4, compress.ZSTD} {
		b.Run(m.String(), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))

			for i := 0; i < b.N; i++ {
				if _, err := Compress(context.Background(),
					Reader(bytes.NewReader(data)), Writer(io.Discard),
					Options{Method: m},
				); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
