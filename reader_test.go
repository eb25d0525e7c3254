/*
Copyright (c) 2013 Blake Smith <blakesmith0@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package ustar

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nonSeeker hides the Seek method of the wrapped reader.
type nonSeeker struct {
	io.Reader
}

func readFixture(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func TestReadHeader(t *testing.T) {
	f, err := os.Open("./fixtures/hello.tar")
	require.NoError(t, err)
	defer f.Close()

	reader, err := NewReader(f)
	require.NoError(t, err)
	header, err := reader.Next()
	require.NoError(t, err)

	assert.Equal(t, "hello.txt", header.Name)
	assert.Equal(t, time.Unix(1361157466, 0), header.ModTime)
	assert.Equal(t, uint32(501), header.Uid)
	assert.Equal(t, uint32(20), header.Gid)
	assert.Equal(t, uint16(0644), header.Mode)
	assert.Equal(t, int64(0), reader.HeaderOffset())

	var buf bytes.Buffer
	_, err = io.Copy(&buf, reader)
	require.NoError(t, err)
	assert.Equal(t, "Hello world!\n", buf.String())

	header, err = reader.Next()
	assert.Nil(t, header, "No files left to read")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, Terminated, reader.State())
}

func TestReadTree(t *testing.T) {
	type member struct {
		Name     string
		Typeflag TypeFlag
		Offset   int64
		Body     string
	}
	expected := []member{
		{"docs/", Directory, 0, ""},
		{"docs/a.txt", Normal, 512, "alpha\n"},
		{"docs/sub/", Directory, 1536, ""},
		{"docs/sub/b.txt", Normal, 2048, "beta beta\n"},
	}
	for _, tc := range []struct {
		Description string
		Wrap        func(io.Reader) io.Reader
	}{
		{"Seekable", func(r io.Reader) io.Reader { return r }},
		{"Streamed", func(r io.Reader) io.Reader { return nonSeeker{r} }},
	} {
		t.Run(tc.Description, func(t *testing.T) {
			f, err := os.Open("./fixtures/tree.tar")
			require.NoError(t, err)
			defer f.Close()
			reader, err := NewReader(tc.Wrap(f))
			require.NoError(t, err)

			for _, m := range expected {
				t.Run(m.Name, func(t *testing.T) {
					hdr, err := reader.Next()
					require.NoError(t, err)
					assert.Equal(t, m.Name, hdr.Name)
					assert.Equal(t, m.Typeflag, hdr.Typeflag)
					assert.Equal(t, m.Offset, reader.HeaderOffset())
					body, err := io.ReadAll(reader)
					require.NoError(t, err)
					assert.Equal(t, m.Body, string(body))
				})
			}
			hdr, err := reader.Next()
			assert.Nil(t, hdr)
			assert.ErrorIs(t, err, io.EOF)
			assert.Equal(t, Terminated, reader.State())
		})
	}
}

func TestSkipUnreadData(t *testing.T) {
	f, err := os.Open("./fixtures/tree.tar")
	require.NoError(t, err)
	defer f.Close()
	reader, err := NewReader(nonSeeker{f})
	require.NoError(t, err)

	var names []string
	for {
		hdr, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	assert.Equal(t, []string{"docs/", "docs/a.txt", "docs/sub/", "docs/sub/b.txt"}, names)
	assert.Equal(t, int64(3072+1024), reader.Offset())
}

func TestScanOffsets(t *testing.T) {
	archive, err := ScanFile("./fixtures/tree.tar")
	require.NoError(t, err)
	assert.True(t, archive.Terminated())
	require.Equal(t, 4, archive.Len())

	members := archive.Members()
	for i, tc := range []struct {
		Name        string
		HeaderStart int64
		DataStart   int64
		DataSize    int64
	}{
		{"docs/", 0, 512, 0},
		{"docs/a.txt", 512, 1024, 6},
		{"docs/sub/", 1536, 2048, 0},
		{"docs/sub/b.txt", 2048, 2560, 10},
	} {
		assert.Equal(t, tc.Name, members[i].Header.Name)
		assert.Equal(t, tc.HeaderStart, members[i].HeaderStart)
		assert.Equal(t, tc.DataStart, members[i].DataStart)
		assert.Equal(t, tc.DataSize, members[i].DataSize())
	}
}

func TestScanTermination(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("%d members", n), func(t *testing.T) {
			var buf bytes.Buffer
			writer, err := NewWriter(&buf)
			require.NoError(t, err)
			for i := 0; i < n; i++ {
				body := fmt.Sprintf("file %d\n", i)
				require.NoError(t, writer.WriteHeader(&Header{Name: fmt.Sprintf("f%d", i), Mode: 0644, Size: int64(len(body))}))
				_, err := writer.Write([]byte(body))
				require.NoError(t, err)
			}
			require.NoError(t, writer.Close())

			archive, err := Scan(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, n, archive.Len())
			assert.True(t, archive.Terminated())
		})
	}
}

func TestSingleZeroRecordThenEOF(t *testing.T) {
	b := readFixture(t, "./fixtures/hello.tar")
	data := append(append([]byte(nil), b[:1024]...), make([]byte, HEADER_BYTE_SIZE)...)

	reader, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = reader.Next()
	require.NoError(t, err)
	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, SawOneZeroBlock, reader.State())

	archive, err := Scan(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1, archive.Len())
	assert.False(t, archive.Terminated())
}

func TestMissingTrailer(t *testing.T) {
	b := readFixture(t, "./fixtures/hello.tar")
	archive, err := Scan(bytes.NewReader(b[:1024]))
	require.NoError(t, err)
	assert.Equal(t, 1, archive.Len())
	assert.False(t, archive.Terminated())
}

func TestPartialRecord(t *testing.T) {
	b := readFixture(t, "./fixtures/hello.tar")
	for _, tc := range []struct {
		Description string
		Wrap        func(io.Reader) io.Reader
	}{
		{"Seekable", func(r io.Reader) io.Reader { return r }},
		{"Streamed", func(r io.Reader) io.Reader { return nonSeeker{r} }},
	} {
		t.Run(tc.Description, func(t *testing.T) {
			_, err := Scan(tc.Wrap(bytes.NewReader(b[:1024+100])))
			assert.ErrorIs(t, err, ErrTruncated)
			assert.ErrorIs(t, err, ErrInvalidArchive)
			assert.Equal(t, KindInvalidArchive, KindOf(err))
		})
	}
}

func TestDataPastEnd(t *testing.T) {
	b := readFixture(t, "./fixtures/hello.tar")[:HEADER_BYTE_SIZE]

	reader, err := NewReader(bytes.NewReader(b))
	require.NoError(t, err)
	_, err = reader.Next()
	assert.ErrorIs(t, err, ErrTruncated)

	reader, err = NewReader(nonSeeker{bytes.NewReader(b)})
	require.NoError(t, err)
	_, err = reader.Next()
	require.NoError(t, err)
	_, err = io.ReadAll(reader)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestCorruptHeaderOffset(t *testing.T) {
	b := append([]byte(nil), readFixture(t, "./fixtures/tree.tar")...)
	b[2048] = 'X'

	_, err := Scan(bytes.NewReader(b))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksum)
	assert.Contains(t, err.Error(), "header at offset 2048")
}

func TestReadV7(t *testing.T) {
	archive, err := ScanFile("./fixtures/hello_v7.tar")
	require.NoError(t, err)
	require.Equal(t, 1, archive.Len())
	hdr := archive.Members()[0].Header
	assert.Equal(t, "hello.txt", hdr.Name)
	assert.Nil(t, hdr.Magic)

	_, err = ScanFile("./fixtures/hello_v7.tar", WithStrictMagic(true))
	assert.ErrorIs(t, err, ErrMagic)
}

func TestScanFileNotFound(t *testing.T) {
	_, err := ScanFile("./fixtures/missing.tar")
	assert.Equal(t, KindNotFound, KindOf(err))
}
