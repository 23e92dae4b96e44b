// Package imagedec проверяет, что загруженные байты — настоящее изображение,
// и готовит их к отправке в модель.
package imagedec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"mind-lens/api/internal/util"
)

var ErrDecode = errors.New("image decode failed")

// modelFormats уходят в модель без перекодирования.
var modelFormats = map[string]bool{"jpeg": true, "png": true, "webp": true}

// DecodeError указывает, какой по счёту буфер не удалось декодировать.
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("image #%d: %v", e.Index+1, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Image — декодированный файл. Format — исходный формат загрузки,
// MIMEType и Data — то, что уходит в модель.
type Image struct {
	Format   string
	MIMEType string
	Width    int
	Height   int
	Data     []byte
}

// Decode декодирует буферы в том же порядке. Первый битый буфер прерывает всю операцию.
func Decode(bufs [][]byte) ([]Image, error) {
	out := make([]Image, 0, len(bufs))
	for i, b := range bufs {
		img, err := decodeOne(b)
		if err != nil {
			return nil, &DecodeError{Index: i, Err: err}
		}
		out = append(out, img)
	}
	return out, nil
}

func decodeOne(b []byte) (Image, error) {
	if len(b) == 0 {
		return Image{}, errors.New("empty file")
	}
	// полный decode ловит обрезанные файлы, у которых заголовок ещё валиден
	m, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return Image{}, err
	}
	bounds := m.Bounds()
	out := Image{
		Format:   format,
		MIMEType: util.PickMIME("", format, b),
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Data:     b,
	}
	if !modelFormats[format] {
		// gif/bmp/tiff модель не принимает: отдаём PNG
		var buf bytes.Buffer
		if err := png.Encode(&buf, m); err != nil {
			return Image{}, fmt.Errorf("re-encode %s as png: %w", format, err)
		}
		out.MIMEType = "image/png"
		out.Data = buf.Bytes()
	}
	return out, nil
}
