package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// LoadFile 按扩展名读取 WAV 或 MP3 文件。
func LoadFile(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开音频文件失败: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return ReadWAV(f)
	case ".mp3":
		return DecodeMP3(f)
	default:
		return nil, fmt.Errorf("不支持的音频格式: %s", filepath.Ext(path))
	}
}

// DecodeMP3 解码 MP3。go-mp3 固定输出 16bit 小端立体声。
func DecodeMP3(r io.Reader) (*Buffer, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("创建 MP3 解码器失败: %w", err)
	}
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("解码 MP3 失败: %w", err)
	}
	buf := &Buffer{Samples: BytesToFloat32(data), Channels: 2, SampleRate: dec.SampleRate()}
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	return buf, nil
}

type wavFormat struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// ReadWAV 读取 16bit PCM WAV 数据。
func ReadWAV(r io.Reader) (*Buffer, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("读取 WAV 头失败: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errors.New("不是有效的 WAV 文件")
	}

	var (
		format    *wavFormat
		chunkHead [8]byte
	)
	for {
		if _, err := io.ReadFull(r, chunkHead[:]); err != nil {
			return nil, fmt.Errorf("WAV 文件缺少 data 块: %w", err)
		}
		id := string(chunkHead[0:4])
		size := binary.LittleEndian.Uint32(chunkHead[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("读取 fmt 块失败: %w", err)
			}
			format = &wavFormat{}
			if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, format); err != nil {
				return nil, fmt.Errorf("解析 fmt 块失败: %w", err)
			}
		case "data":
			if format == nil {
				return nil, errors.New("WAV 文件 data 块出现在 fmt 块之前")
			}
			if format.AudioFormat != 1 || format.BitsPerSample != 16 {
				return nil, fmt.Errorf("仅支持 16bit PCM WAV（format=%d, bits=%d）", format.AudioFormat, format.BitsPerSample)
			}
			data := make([]byte, size)
			n, err := io.ReadFull(r, data)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("读取音频数据失败: %w", err)
			}
			buf := &Buffer{
				Samples:    BytesToFloat32(data[:n]),
				Channels:   int(format.NumChannels),
				SampleRate: int(format.SampleRate),
			}
			buf.Samples = buf.Samples[:len(buf.Samples)-len(buf.Samples)%max(buf.Channels, 1)]
			if err := buf.Validate(); err != nil {
				return nil, err
			}
			return buf, nil
		default:
			// 跳过 LIST 等无关块（块长度按偶数对齐）
			skip := int64(size + size%2)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, fmt.Errorf("跳过 %q 块失败: %w", id, err)
			}
		}
	}
}

// WriteWAV 将 Buffer 写为 16bit PCM WAV。
func WriteWAV(w io.Writer, buf *Buffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	data := Float32ToBytes(buf.Samples)
	blockAlign := uint16(buf.Channels * 2)
	format := wavFormat{
		AudioFormat:   1,
		NumChannels:   uint16(buf.Channels),
		SampleRate:    uint32(buf.SampleRate),
		ByteRate:      uint32(buf.SampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: 16,
	}

	var hdr bytes.Buffer
	hdr.WriteString("RIFF")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(36+len(data)))
	hdr.WriteString("WAVEfmt ")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(16))
	_ = binary.Write(&hdr, binary.LittleEndian, format)
	hdr.WriteString("data")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(len(data)))

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("写入 WAV 头失败: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("写入音频数据失败: %w", err)
	}
	return nil
}

// FileSource 按顺序回放音频文件，实现 Recorder 接口。
// 用于离线注册/验证以及测试，录音时长参数被忽略。
type FileSource struct {
	mu    sync.Mutex
	paths []string
	next  int
}

var _ Recorder = (*FileSource)(nil)

// NewFileSource 创建文件音源。
func NewFileSource(paths ...string) *FileSource {
	return &FileSource{paths: paths}
}

// Record 返回下一个文件的内容；文件用完后返回 io.EOF。
func (s *FileSource) Record(ctx context.Context, _ time.Duration) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.next >= len(s.paths) {
		s.mu.Unlock()
		return nil, io.EOF
	}
	path := s.paths[s.next]
	s.next++
	s.mu.Unlock()

	return LoadFile(path)
}

// Remaining 返回尚未回放的文件数。
func (s *FileSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths) - s.next
}
