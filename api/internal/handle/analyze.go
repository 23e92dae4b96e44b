package handle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mind-lens/api/internal/imagedec"
)

// Analyze — POST /api/analyze (multipart: files[], persona).
// Порядок строго линейный: чтение → декодирование → модель → запись в лог → ответ.
func (h *Handle) Analyze(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || errors.Is(err, multipart.ErrMessageTooLarge) {
			return httpErr(http.StatusRequestEntityTooLarge, "upload too large", nil)
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			return httpErr(http.StatusBadRequest, "bad multipart form", err)
		}
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	persona, files := formInput(r)
	if len(files) == 0 {
		return httpErr(http.StatusUnprocessableEntity, "files: at least one image is required", nil)
	}
	if strings.TrimSpace(persona) == "" {
		return httpErr(http.StatusUnprocessableEntity, "persona is required", nil)
	}

	bufs, err := readFiles(files)
	if err != nil {
		return httpErr(http.StatusBadRequest, "cannot read upload", err)
	}

	images, err := imagedec.Decode(bufs)
	if err != nil {
		return httpErr(http.StatusBadRequest, "invalid image", err)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout(r))
	defer cancel()

	start := time.Now()
	res, err := h.engine.Analyze(ctx, persona, images)
	if err != nil {
		return err
	}
	h.log.InfoContext(r.Context(), "analysis done",
		"engine", h.engine.Name(), "model", h.engine.Model(),
		"persona", persona, "files", len(images), "took", time.Since(start))

	// запись идёт под контекстом запроса, а не под дедлайном модели
	entry, err := h.logs.Append(r.Context(), persona, res.Raw)
	if err != nil {
		return err
	}
	h.log.InfoContext(r.Context(), "analysis logged", "log_id", entry.ID)

	writeJSON(w, http.StatusOK, res.Response)
	return nil
}

func formInput(r *http.Request) (string, []*multipart.FileHeader) {
	if r.MultipartForm == nil {
		return r.FormValue("persona"), nil
	}
	var persona string
	if v := r.MultipartForm.Value["persona"]; len(v) > 0 {
		persona = v[0]
	}
	return persona, r.MultipartForm.File["files"]
}

// readFiles читает все файлы целиком в память до начала обработки.
func readFiles(files []*multipart.FileHeader) ([][]byte, error) {
	out := make([][]byte, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("file #%d %q: %w", i+1, fh.Filename, err)
		}
		b, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("file #%d %q: %w", i+1, fh.Filename, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// requestTimeout: X-Request-Timeout (сек) или ?timeoutSec= могут только сократить
// дедлайн из конфига, но не продлить его.
func (h *Handle) requestTimeout(r *http.Request) time.Duration {
	ts := r.Header.Get("X-Request-Timeout")
	if ts == "" {
		ts = r.URL.Query().Get("timeoutSec")
	}
	v, _ := strconv.Atoi(ts)
	if d := time.Duration(v) * time.Second; v > 0 && d < h.timeout {
		return d
	}
	return h.timeout
}
